package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bmatcuk/doublestar/v4"
)

// Query describes what credentials are needed for.
type Query struct {
	URL    *url.URL
	Scheme string
	Realm  string
}

// Store supplies credentials for a challenge.
type Store interface {
	Lookup(ctx context.Context, q Query) (Credentials, bool)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, q Query) (Credentials, bool)

// Lookup calls f.
func (f StoreFunc) Lookup(ctx context.Context, q Query) (Credentials, bool) { return f(ctx, q) }

// URLStore returns the user info embedded in the target URL.
type URLStore struct{}

// Lookup returns the URL's user info, if any.
func (URLStore) Lookup(_ context.Context, q Query) (Credentials, bool) {
	if q.URL == nil || q.URL.User == nil {
		return Credentials{}, false
	}
	pass, _ := q.URL.User.Password()
	return Credentials{Username: q.URL.User.Username(), Password: pass}, true
}

// Entry is a configured credential set.
type Entry struct {
	// Host is a glob matched against host:port and then the bare host name,
	// for example "*.example.com".
	Host string `yaml:"host" json:"host"`

	// Realm restricts the entry to one realm when non-empty.
	Realm string `yaml:"realm,omitempty" json:"realm,omitempty"`

	Credentials `yaml:",inline"`
}

// StaticStore matches a fixed list of entries. The first match wins.
type StaticStore struct {
	entries []Entry
}

// NewStaticStore validates the entries' host patterns.
func NewStaticStore(entries []Entry) (*StaticStore, error) {
	for _, e := range entries {
		if e.Host == "" || !doublestar.ValidatePattern(e.Host) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, e.Host)
		}
	}
	return &StaticStore{entries: append([]Entry(nil), entries...)}, nil
}

// Lookup returns the first entry matching the query's host and realm.
func (s *StaticStore) Lookup(_ context.Context, q Query) (Credentials, bool) {
	if q.URL == nil {
		return Credentials{}, false
	}
	for _, e := range s.entries {
		if e.Realm != "" && e.Realm != q.Realm {
			continue
		}
		if hostMatch(e.Host, q.URL.Host) || hostMatch(e.Host, q.URL.Hostname()) {
			return e.Credentials, true
		}
	}
	return Credentials{}, false
}

func hostMatch(pattern, host string) bool {
	ok, err := doublestar.Match(pattern, host)
	return err == nil && ok
}

// Chain consults stores in order and returns the first hit.
type Chain []Store

// Lookup implements Store.
func (c Chain) Lookup(ctx context.Context, q Query) (Credentials, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if creds, ok := s.Lookup(ctx, q); ok {
			return creds, true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Credentials{}, false
}
