package one

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	oaclient "github.com/go-openapi/runtime/client"
	"github.com/kolo/xmlrpc"
	pkgerrors "github.com/pkg/errors"
)

// maxErrorBodySize limits how much of a non-200 HTTP body is kept in the
// error message.
const maxErrorBodySize = 4096

// Transport performs one XML-RPC call and returns the API envelope.
//
// The method name is already namespaced and params already hold the session
// and cast values. Errors returned by a Transport are transport-level
// failures (network, HTTP, XML-RPC fault); API failures are reported through
// the envelope.
type Transport interface {
	Invoke(ctx context.Context, method string, params []any) (Envelope, error)
}

// TransportFunc adapts an ordinary function to [Transport].
type TransportFunc func(ctx context.Context, method string, params []any) (Envelope, error)

// Invoke calls f.
func (f TransportFunc) Invoke(ctx context.Context, method string, params []any) (Envelope, error) {
	return f(ctx, method, params)
}

// TLSConfig configures the HTTPS connection to the endpoint. Paths point to
// PEM files.
type TLSConfig struct {
	CA                 string `toml:"ca"`
	Certificate        string `toml:"certificate"`
	Key                string `toml:"key"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// TransportConfig configures an [XMLRPCTransport].
type TransportConfig struct {
	// Timeout bounds each call, from dial to the end of the response body.
	// Zero means no timeout.
	Timeout time.Duration

	// TLS is applied to the default HTTP transport. Ignored when
	// RoundTripper is set.
	TLS *TLSConfig

	// RoundTripper replaces the default HTTP transport.
	RoundTripper http.RoundTripper

	// UserAgent is sent with every request.
	UserAgent string
}

// XMLRPCTransport is the [Transport] talking to a live endpoint over HTTP.
//
// The timeout lives in the transport's own http.Client and dialer, so two
// clients with different timeouts never affect each other or the rest of the
// process.
type XMLRPCTransport struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewXMLRPCTransport returns a transport posting calls to endpoint, e.g.
// "https://frontend:2633/RPC2".
func NewXMLRPCTransport(endpoint string, cfg TransportConfig) (*XMLRPCTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, newError(KindGeneric, fmt.Sprintf("invalid endpoint %q", endpoint), 0, err)
	}

	rt := cfg.RoundTripper
	if rt == nil {
		rt, err = newHTTPTransport(cfg)
		if err != nil {
			return nil, err
		}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &XMLRPCTransport{
		endpoint:  endpoint,
		userAgent: ua,
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

func newHTTPTransport(cfg TransportConfig) (*http.Transport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Timeout > 0 {
		base.DialContext = (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		base.ResponseHeaderTimeout = cfg.Timeout
	}
	if cfg.TLS != nil {
		tlsCfg, err := oaclient.TLSClientAuth(oaclient.TLSClientOptions{
			Certificate:        cfg.TLS.Certificate,
			Key:                cfg.TLS.Key,
			CA:                 cfg.TLS.CA,
			ServerName:         cfg.TLS.ServerName,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		})
		if err != nil {
			return nil, newError(KindGeneric, "invalid TLS configuration", 0, err)
		}
		base.TLSClientConfig = tlsCfg
	}
	return base, nil
}

// Invoke encodes the call, posts it and decodes the response array.
//
// XML-RPC faults are returned as *[Fault]. Other failures carry a stack
// trace, printable with %+v.
func (t *XMLRPCTransport) Invoke(ctx context.Context, method string, params []any) (Envelope, error) {
	body, err := xmlrpc.EncodeMethodCall(method, params...)
	if err != nil {
		return Envelope{}, pkgerrors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Envelope{}, pkgerrors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Envelope{}, pkgerrors.WithStack(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return Envelope{}, pkgerrors.Errorf("unexpected HTTP status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, pkgerrors.Wrap(err, "read response")
	}

	response := xmlrpc.Response(data)
	if err := response.Err(); err != nil {
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return Envelope{}, &Fault{Code: fault.Code, Message: fault.String}
		}
		return Envelope{}, pkgerrors.Wrap(err, "decode fault")
	}

	var raw []any
	if err := response.Unmarshal(&raw); err != nil {
		return Envelope{}, pkgerrors.Wrap(err, "decode response")
	}
	return ParseEnvelope(raw)
}
