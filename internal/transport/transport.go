// Package transport sends inference requests over HTTP and captures timing.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Request is a single outbound request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a fully read response with timing.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Elapsed is the time from send until the body was fully read.
	Elapsed time.Duration

	// TTFB is the time from send until the first response byte.
	TTFB time.Duration
}

// Transport performs a request. Implementations must be safe for concurrent use.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Error is returned when no response could be obtained.
type Error struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request to %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config contains HTTP client configuration.
type Config struct {
	// Timeout bounds the whole request including reading the body.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	DisableCompression  bool
	InsecureSkipVerify  bool
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// HTTPTransport is a Transport backed by a shared net/http client so all
// virtual users pool connections.
type HTTPTransport struct {
	client *http.Client
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// NewHTTPTransport creates a transport from cfg.
func NewHTTPTransport(cfg Config, opts ...Option) *HTTPTransport {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
	}
	if cfg.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed test targets
	}

	t := &HTTPTransport{
		client: &http.Client{
			Transport: base,
			Timeout:   cfg.Timeout,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do executes req and reads the full body.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{URL: req.URL, Err: err}
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &Error{URL: req.URL, Timeout: isTimeout(err), Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{URL: req.URL, Timeout: isTimeout(err), Err: fmt.Errorf("reading body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Elapsed:    time.Since(start),
	}
	if !firstByte.IsZero() {
		resp.TTFB = firstByte.Sub(start)
	}
	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Transport = (*HTTPTransport)(nil)
