package one

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/privaz/one-go/entity"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultNamespace = "one"
	defaultUserAgent = "one-go/" + Version
)

// Client is the OpenNebula XML-RPC API client.
//
// A Client holds the session for its whole lifetime and issues one blocking
// call at a time per invocation of [Client.Call]. Sharing a Client between
// goroutines is safe, but the order of calls is then up to the caller.
type Client struct {
	session   string
	namespace string
	timeout   time.Duration
	userAgent string

	tls          *TLSConfig
	roundTripper http.RoundTripper
	transport    Transport

	logger     zerolog.Logger
	registerer prometheus.Registerer
	metrics    *metrics
}

// NewClient creates a client for the API at endpoint authenticated with
// session ("user:password" or a login token).
//
//	client, err := one.NewClient("https://frontend:2633/RPC2", "oneadmin:secret",
//	    one.WithTimeout(time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pool, err := client.CallNode(ctx, "hostpool.info")
func NewClient(endpoint, session string, opts ...Option) (*Client, error) {
	c := &Client{
		session:   session,
		namespace: defaultNamespace,
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		t, err := NewXMLRPCTransport(endpoint, TransportConfig{
			Timeout:      c.timeout,
			TLS:          c.tls,
			RoundTripper: c.roundTripper,
			UserAgent:    c.userAgent,
		})
		if err != nil {
			return nil, err
		}
		c.transport = t
	}

	if c.registerer != nil {
		m, err := registerMetrics(c.registerer)
		if err != nil {
			return nil, newError(KindGeneric, "cannot register metrics", 0, err)
		}
		c.metrics = m
	}

	return c, nil
}

// Call invokes method (without the namespace prefix, e.g. "host.info") with
// params and returns its result.
//
// Params go through [Cast]; the session is sent as the first parameter. The
// result is an *[entity.Node] when the server answers with a document, or
// the scalar payload otherwise (int64, bool, string).
//
//	_, err := client.Call(ctx, "host.update", 3, map[string]any{"LABELS": "SSD"}, 1)
func (c *Client) Call(ctx context.Context, method string, params ...any) (any, error) {
	name := c.namespace + "." + method

	wire := make([]any, 0, len(params)+1)
	wire = append(wire, c.session)
	for i, p := range params {
		v, err := Cast(p)
		if err != nil {
			var castErr *Error
			if errors.As(err, &castErr) {
				castErr.Method = name
				castErr.Message = fmt.Sprintf("param %d: %s", i, castErr.Message)
			}
			c.observe(name, time.Now(), err)
			return nil, err
		}
		wire = append(wire, v)
	}

	start := time.Now()
	env, err := c.transport.Invoke(ctx, name, wire)
	if err != nil {
		err = transportError(name, err)
		c.observe(name, start, err)
		return nil, err
	}

	result, err := Interpret(env)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			apiErr.Method = name
		}
	}
	c.observe(name, start, err)
	return result, err
}

// transportError re-raises a transport failure as a generic client error.
// Client errors produced below the gateway are passed through.
func transportError(method string, err error) error {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return err
	}
	e := &Error{Kind: KindGeneric, Message: err.Error(), Method: method, Cause: err}
	var fault *Fault
	if errors.As(err, &fault) {
		e.Code = fault.Code
		e.Message = fault.Message
	}
	return e
}

func (c *Client) observe(method string, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := outcomeOf(err)

	ev := c.logger.Debug()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str("method", method).Dur("elapsed", elapsed).Str("outcome", outcome).Msg("xml-rpc call")

	if c.metrics != nil {
		c.metrics.observe(method, outcome, elapsed)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "transport"
}

// CallNode is [Client.Call] for methods answering with a document, such as
// the info methods.
func (c *Client) CallNode(ctx context.Context, method string, params ...any) (*entity.Node, error) {
	return callAs[*entity.Node](ctx, c, method, params)
}

// CallString is [Client.Call] for methods answering with a string.
func (c *Client) CallString(ctx context.Context, method string, params ...any) (string, error) {
	return callAs[string](ctx, c, method, params)
}

// CallBool is [Client.Call] for methods answering with a boolean.
func (c *Client) CallBool(ctx context.Context, method string, params ...any) (bool, error) {
	return callAs[bool](ctx, c, method, params)
}

// CallInt is [Client.Call] for methods answering with an integer, typically
// the id of an allocated object.
func (c *Client) CallInt(ctx context.Context, method string, params ...any) (int, error) {
	res, err := c.Call(ctx, method, params...)
	if err != nil {
		return 0, err
	}
	n, err := toInt(res)
	if err != nil {
		return 0, unexpectedResult(c.namespace+"."+method, "integer", res)
	}
	return n, nil
}

func callAs[T any](ctx context.Context, c *Client, method string, params []any) (T, error) {
	var zero T
	res, err := c.Call(ctx, method, params...)
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, unexpectedResult(c.namespace+"."+method, fmt.Sprintf("%T", zero), res)
	}
	return v, nil
}

func unexpectedResult(method, want string, got any) error {
	return &Error{
		Kind:    KindGeneric,
		Method:  method,
		Message: fmt.Sprintf("unexpected result: want %s, got %T", want, got),
	}
}
