package one

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout of the default transport. Zero
// disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithNamespace sets the prefix added to every method name. Defaults to
// "one".
func WithNamespace(ns string) Option {
	return func(c *Client) {
		c.namespace = ns
	}
}

// WithTLS configures HTTPS for the default transport.
func WithTLS(cfg TLSConfig) Option {
	return func(c *Client) {
		c.tls = &cfg
	}
}

// WithHTTPTransport sets the round tripper used by the default transport.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.roundTripper = rt
	}
}

// WithTransport replaces the XML-RPC transport entirely, e.g. with a
// fixture harness. The endpoint passed to NewClient is then unused.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger receiving one event per call. The session is
// never logged.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics registers call counters and latency histograms with reg.
// Several clients may share one registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}
