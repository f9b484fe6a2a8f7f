package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/getmockd/wshandshake/pkg/auth"
	"github.com/getmockd/wshandshake/pkg/cli/internal/flags"
	"github.com/getmockd/wshandshake/pkg/cli/internal/output"
	"github.com/getmockd/wshandshake/pkg/cli/internal/parse"
	"github.com/getmockd/wshandshake/pkg/config"
	"github.com/getmockd/wshandshake/pkg/dialer"
	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/getmockd/wshandshake/pkg/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	dialOrigin         string
	dialUserAgent      string
	dialAcceptLanguage string
	dialHeaders        flags.Header
	dialSubprotocols   flags.StringSlice
	dialExtensions     flags.StringSlice
	dialDeflate        bool
	dialTimeout        string
	dialMaxAuthRounds  int
	dialMaxHeaderBytes int
	dialCACert         string
	dialAllowCerts     flags.StringSlice
	dialTrust          string
	dialInsecure       bool
	dialUser           string
	dialPrompt         bool
	dialMetrics        bool
)

var dialCmd = &cobra.Command{
	Use:   "dial [url]",
	Short: "Perform a WebSocket opening handshake",
	Long: `Perform a WebSocket opening handshake and report the outcome.

Every request sent and every response received is printed. On success the
negotiated subprotocol and extension are shown and the connection is closed.
The exit status is 2 when the handshake fails.

The URL may also come from the configuration file or WSH_URL.`,
	Example: `  # Basic handshake
  wshandshake dial ws://localhost:8080/ws

  # Offer subprotocols and permessage-deflate
  wshandshake dial wss://example.com/chat -p chat -p superchat --deflate

  # Answer an auth challenge, deciding certificate problems interactively
  wshandshake dial wss://internal.example/ws --user alice:secret --prompt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDial,
}

func init() {
	rootCmd.AddCommand(dialCmd)

	f := dialCmd.Flags()
	f.StringVar(&dialOrigin, "origin", "", "Origin header value")
	f.StringVar(&dialUserAgent, "user-agent", "", "User-Agent header value")
	f.StringVar(&dialAcceptLanguage, "accept-language", "", "Accept-Language header value")
	f.VarP(&dialHeaders, "header", "H", "Extra request header as \"Name: value\" (repeatable)")
	f.VarP(&dialSubprotocols, "subprotocol", "p", "Subprotocol to offer (repeatable)")
	f.Var(&dialExtensions, "extension", "Raw Sec-WebSocket-Extensions offer (repeatable)")
	f.BoolVar(&dialDeflate, "deflate", false, "Offer permessage-deflate with client_max_window_bits")
	f.StringVar(&dialTimeout, "timeout", "", "Overall handshake timeout (default 4m0s)")
	f.IntVar(&dialMaxAuthRounds, "max-auth-rounds", 0, "Number of 401 responses answered with credentials (default 1)")
	f.IntVar(&dialMaxHeaderBytes, "max-header-bytes", 0, "Largest accepted response head in bytes")
	f.StringVar(&dialCACert, "ca-cert", "", "PEM file with the root certificates to trust")
	f.Var(&dialAllowCerts, "allow-cert", "PEM leaf certificate accepted without verification (repeatable)")
	f.StringVar(&dialTrust, "trust", "", "Expression deciding untrusted certificates, e.g. 'selfSigned && host == \"localhost\"'")
	f.BoolVar(&dialInsecure, "insecure", false, "Proceed past every certificate problem")
	f.StringVarP(&dialUser, "user", "u", "", "Credentials as user:password for the first auth challenge")
	f.BoolVar(&dialPrompt, "prompt", false, "Ask interactively for credentials and certificate decisions")
	f.BoolVar(&dialMetrics, "metrics", false, "Print handshake metrics in Prometheus text format to stderr")

	dialCmd.MarkFlagsMutuallyExclusive("insecure", "trust")
}

// dialReport is the JSON shape of a dial result.
type dialReport struct {
	URL         string                    `json:"url"`
	Result      dialer.Result             `json:"result"`
	Subprotocol string                    `json:"subprotocol,omitempty"`
	Extension   *handshake.Agreement      `json:"extension,omitempty"`
	Error       *errorReport              `json:"error,omitempty"`
	Requests    []*handshake.RequestInfo  `json:"requests"`
	Responses   []*handshake.ResponseInfo `json:"responses"`
}

type errorReport struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func runDial(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDialFlags(cmd, cfg, args); err != nil {
		return err
	}

	log, closeLog, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	opts, err := cfg.DialOptions(log)
	if err != nil {
		return err
	}

	if dialUser != "" {
		if name, pass, ok := parse.KeyValue(dialUser, ':'); ok {
			opts.URL.User = url.UserPassword(name, pass)
		} else {
			opts.URL.User = url.User(dialUser)
		}
	}
	if dialInsecure {
		opts.Trust = func(context.Context, *dialer.CertificateInfo) bool { return true }
	}
	if dialPrompt {
		if opts.Trust == nil {
			opts.Trust = promptTrust(cmd.ErrOrStderr())
		}
		base := opts.Credentials
		if base == nil {
			base = auth.URLStore{}
		}
		opts.Credentials = auth.Chain{base, promptCredentials()}
	}

	var reg *metrics.Registry
	if dialMetrics {
		reg = metrics.NewRegistry()
		rec, err := metrics.NewHandshake(reg)
		if err != nil {
			return err
		}
		opts.Recorder = rec
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := dialer.DialOutcome(ctx, opts)
	if out.Stream != nil {
		defer out.Stream.Close()
	}

	report := newDialReport(opts.URL, out)
	if err := printResult(cmd, report, func() { printDialText(cmd.OutOrStdout(), report) }); err != nil {
		return err
	}
	if reg != nil {
		if err := reg.WriteText(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}
	if report.Error != nil {
		if !jsonOutput {
			fmt.Fprintln(cmd.ErrOrStderr(), report.Error.Message)
		}
		return &exitError{code: exitCodeHandshake}
	}
	return nil
}

// applyDialFlags overlays explicitly set dial flags onto cfg.
func applyDialFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 1 {
		cfg.URL = args[0]
		cfg.Set("url", config.SourceFlag)
	}

	f := cmd.Flags()
	setString := func(flag, key string, src string, dst *string) {
		if f.Changed(flag) {
			*dst = src
			cfg.Set(key, config.SourceFlag)
		}
	}
	setString("origin", "origin", dialOrigin, &cfg.Origin)
	setString("user-agent", "userAgent", dialUserAgent, &cfg.UserAgent)
	setString("accept-language", "acceptLanguage", dialAcceptLanguage, &cfg.AcceptLanguage)
	setString("timeout", "timeout", dialTimeout, &cfg.Timeout)
	setString("ca-cert", "caCertFile", dialCACert, &cfg.CACertFile)
	setString("trust", "trust", dialTrust, &cfg.Trust)

	for _, h := range dialHeaders.StringSlice {
		name, value, ok := parse.Header(h)
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		cfg.Headers = append(cfg.Headers, config.Header{Name: name, Value: value})
		cfg.Set("headers", config.SourceFlag)
	}
	if f.Changed("subprotocol") {
		cfg.Subprotocols = dialSubprotocols
		cfg.Set("subprotocols", config.SourceFlag)
	}
	if f.Changed("extension") {
		cfg.Extensions = dialExtensions
		cfg.Set("extensions", config.SourceFlag)
	}
	if f.Changed("allow-cert") {
		cfg.AllowedCertFiles = dialAllowCerts
		cfg.Set("allowedCertFiles", config.SourceFlag)
	}
	if f.Changed("deflate") {
		cfg.Deflate = dialDeflate
		cfg.Set("deflate", config.SourceFlag)
	}
	if f.Changed("max-auth-rounds") {
		if dialMaxAuthRounds < 1 {
			return errors.New("--max-auth-rounds must be at least 1")
		}
		cfg.MaxAuthRounds = dialMaxAuthRounds
		cfg.Set("maxAuthRounds", config.SourceFlag)
	}
	if f.Changed("max-header-bytes") {
		cfg.MaxHeaderBytes = dialMaxHeaderBytes
		cfg.Set("maxHeaderBytes", config.SourceFlag)
	}
	return nil
}

func newDialReport(u *url.URL, out *dialer.Outcome) *dialReport {
	r := &dialReport{
		URL:       redact(u),
		Requests:  out.Requests,
		Responses: out.Responses,
	}
	switch {
	case out.Stream != nil:
		r.Result = dialer.ResultConnected
		r.Subprotocol = out.Stream.Subprotocol()
		r.Extension = out.Stream.Extension()
	case out.Err == nil || errors.Is(out.Err, context.Canceled):
		r.Result = dialer.ResultIncomplete
		r.Error = &errorReport{Kind: "cancelled", Message: "Handshake cancelled"}
	default:
		r.Result = dialer.ResultFailed
		r.Error = &errorReport{Kind: handshake.KindOf(out.Err).String(), Message: out.Err.Error()}
	}
	return r
}

func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

func printDialText(w io.Writer, r *dialReport) {
	for i, req := range r.Requests {
		fmt.Fprintf(w, "> GET %s HTTP/1.1\n", req.URL.RequestURI())
		for _, f := range req.Headers {
			fmt.Fprintf(w, "> %s: %s\n", f.Name, f.Value)
		}
		fmt.Fprintln(w, ">")
		if i < len(r.Responses) {
			resp := r.Responses[i]
			fmt.Fprintf(w, "< HTTP/1.1 %d %s\n", resp.StatusCode, resp.StatusText)
			for _, f := range resp.Headers {
				fmt.Fprintf(w, "< %s: %s\n", f.Name, f.Value)
			}
			fmt.Fprintln(w, "<")
		}
	}

	if r.Error != nil {
		fmt.Fprintf(w, "Handshake failed (%s)\n", kindTitle(r.Error.Kind))
		return
	}

	fmt.Fprintf(w, "Connected to %s\n", r.URL)
	tw := output.Table(w)
	if r.Subprotocol != "" {
		fmt.Fprintf(tw, "  subprotocol:\t%s\n", r.Subprotocol)
	}
	if r.Extension != nil {
		fmt.Fprintf(tw, "  extension:\t%s\n", r.Extension.String())
		d := r.Extension.Deflate
		if d.ServerMaxWindowBits != 0 {
			fmt.Fprintf(tw, "  server_max_window_bits:\t%d\n", d.ServerMaxWindowBits)
		}
		if d.ClientMaxWindowBits != 0 {
			fmt.Fprintf(tw, "  client_max_window_bits:\t%d\n", d.ClientMaxWindowBits)
		}
		if d.ServerNoContextTakeover {
			fmt.Fprintf(tw, "  server_no_context_takeover:\tyes\n")
		}
		if d.ClientNoContextTakeover {
			fmt.Fprintf(tw, "  client_no_context_takeover:\tyes\n")
		}
	}
	_ = tw.Flush()
}

// kindTitle turns "accept_mismatch" into "Accept Mismatch".
func kindTitle(kind string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(kind, "_", " "))
}
