package provider

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// Per-call deadlines. Unary covers a full completion, Stream covers the
// entire streamed body, Probe bounds availability checks.
const (
	UnaryTimeout  = 60 * time.Second
	StreamTimeout = 120 * time.Second
	ProbeTimeout  = 2 * time.Second
)

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching. Set forceHTTP2 to true for remote HTTPS APIs, false
// for local HTTP/1.1 servers (e.g. Ollama).
func NewTransport(resolver *dnscache.Resolver, forceHTTP2 bool) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   forceHTTP2,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// Clients bundles the three HTTP clients an adapter needs. All three share
// one transport so connection pools are reused across call kinds.
type Clients struct {
	Unary  *http.Client
	Stream *http.Client
	Probe  *http.Client
}

// NewClients builds the client bundle over a shared transport.
func NewClients(resolver *dnscache.Resolver, forceHTTP2 bool) Clients {
	t := NewTransport(resolver, forceHTTP2)
	return Clients{
		Unary:  &http.Client{Transport: t, Timeout: UnaryTimeout},
		Stream: &http.Client{Transport: t, Timeout: StreamTimeout},
		Probe:  &http.Client{Transport: t, Timeout: ProbeTimeout},
	}
}
