package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores the bits of a float64 in a uint64 for atomic access.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all samples for exposition.
	Collect() []Sample
}

// Sample represents a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// family holds one child per label-value combination.
type family[T any] struct {
	name       string
	help       string
	labelNames []string
	newChild   func(labels map[string]string) *T

	mu       sync.RWMutex
	children map[string]*T
	order    []string
}

func (f *family[T]) child(kind string, values []string) (*T, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s %s expected %d labels, got %d",
			ErrLabelCountMismatch, kind, f.name, len(f.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	f.mu.RLock()
	c, ok := f.children[key]
	f.mu.RUnlock()
	if ok {
		return c, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok = f.children[key]; ok {
		return c, nil
	}
	labels := make(map[string]string, len(f.labelNames))
	for i, name := range f.labelNames {
		labels[name] = values[i]
	}
	c = f.newChild(labels)
	f.children[key] = c
	f.order = append(f.order, key)
	return c, nil
}

// each visits children in creation order.
func (f *family[T]) each(fn func(*T)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, key := range f.order {
		fn(f.children[key])
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	family[counterValue]
}

type counterValue struct {
	labels map[string]string
	value  atomicFloat64
}

func newCounter(name, help string, labelNames []string) *Counter {
	c := &Counter{}
	c.name, c.help, c.labelNames = name, help, labelNames
	c.children = make(map[string]*counterValue)
	c.newChild = func(labels map[string]string) *counterValue {
		return &counterValue{labels: labels}
	}
	return c
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Type returns the metric type.
func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns the child for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	cv, err := c.child("counter", values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{cv: cv}, nil
}

// Inc increments a counter without labels by 1.
func (c *Counter) Inc() error {
	return c.Add(1)
}

// Add adds delta to a counter without labels.
func (c *Counter) Add(delta float64) error {
	if delta < 0 {
		return fmt.Errorf("%w: counter %s", ErrNegativeCounterValue, c.name)
	}
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

// Collect returns all metric samples.
func (c *Counter) Collect() []Sample {
	var samples []Sample
	c.each(func(cv *counterValue) {
		samples = append(samples, Sample{Name: c.name, Labels: cv.labels, Value: cv.value.Load()})
	})
	return samples
}

// CounterVec is a counter for one label combination.
type CounterVec struct {
	cv *counterValue
}

// Inc increments the counter by 1.
func (v *CounterVec) Inc() error {
	return v.Add(1)
}

// Add adds delta to the counter.
func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.cv.value.Add(delta)
	return nil
}

// Value returns the current count.
func (v *CounterVec) Value() float64 { return v.cv.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	family[histogramValue]
	buckets []float64
}

type histogramValue struct {
	labels map[string]string
	counts []atomic.Uint64
	sum    atomicFloat64
	count  atomic.Uint64
}

func newHistogram(name, help string, buckets []float64, labelNames []string) *Histogram {
	sorted := slices.Clone(buckets)
	sort.Float64s(sorted)
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}

	h := &Histogram{buckets: sorted}
	h.name, h.help, h.labelNames = name, help, labelNames
	h.children = make(map[string]*histogramValue)
	h.newChild = func(labels map[string]string) *histogramValue {
		return &histogramValue{labels: labels, counts: make([]atomic.Uint64, len(sorted))}
	}
	return h
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Help returns the help text.
func (h *Histogram) Help() string { return h.help }

// Type returns the metric type.
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the child for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	hv, err := h.child("histogram", values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{hv: hv, buckets: h.buckets}, nil
}

// Observe records a value in a histogram without labels.
func (h *Histogram) Observe(value float64) error {
	vec, err := h.WithLabels()
	if err != nil {
		return err
	}
	vec.Observe(value)
	return nil
}

// Collect returns cumulative _bucket samples plus _sum and _count.
func (h *Histogram) Collect() []Sample {
	var samples []Sample
	h.each(func(hv *histogramValue) {
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += hv.counts[i].Load()
			labels := make(map[string]string, len(hv.labels)+1)
			for k, v := range hv.labels {
				labels[k] = v
			}
			labels["le"] = formatFloat(bound)
			samples = append(samples, Sample{Name: h.name + "_bucket", Labels: labels, Value: float64(cumulative)})
		}
		samples = append(samples,
			Sample{Name: h.name + "_sum", Labels: hv.labels, Value: hv.sum.Load()},
			Sample{Name: h.name + "_count", Labels: hv.labels, Value: float64(hv.count.Load())},
		)
	})
	return samples
}

// HistogramVec is a histogram for one label combination.
type HistogramVec struct {
	hv      *histogramValue
	buckets []float64
}

// Observe records a value.
func (v *HistogramVec) Observe(value float64) {
	i := sort.SearchFloat64s(v.buckets, value)
	if i < len(v.buckets) {
		v.hv.counts[i].Add(1)
	}
	v.hv.sum.Add(value)
	v.hv.count.Add(1)
}

// Count returns the number of observations.
func (v *HistogramVec) Count() uint64 { return v.hv.count.Load() }

// Registry holds registered metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) (*Counter, error) {
	c := newCounter(name, help, labels)
	if err := r.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewHistogram creates and registers a new histogram with the given buckets.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) (*Histogram, error) {
	h := newHistogram(name, help, buckets, labels)
	if err := r.Register(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Register adds m. Names must be unique, since duplicates produce invalid
// exposition output.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
	return nil
}

// WriteText writes every metric with samples in the Prometheus text
// exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	r.mu.RLock()
	metrics := slices.Clone(r.metrics)
	r.mu.RUnlock()

	for _, m := range metrics {
		if err := writeMetric(w, m); err != nil {
			return err
		}
	}
	return nil
}

func writeMetric(w io.Writer, m Metric) error {
	samples := m.Collect()
	if len(samples) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
	fmt.Fprintf(&sb, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			fmt.Fprintf(&sb, "%s %s\n", s.Name, formatFloat(s.Value))
		} else {
			fmt.Fprintf(&sb, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// formatLabels formats labels as key="value",key="value" sorted by key.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%g", v)
	}
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// DurationBuckets are histogram buckets for handshake durations in seconds.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
