package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/inferload/inferload/internal/transport"
)

// Config describes the target and the request shape.
type Config struct {
	URL      string
	Protocol Protocol
	APIKey   string
	Headers  map[string]string
	Body     BodyConfig

	// Checks run in order. Nil means DefaultCheckSpecs for the protocol.
	Checks []Check
}

// Executor performs one request-response cycle per call. It holds no mutable
// state and is shared by all virtual users.
type Executor struct {
	url       string
	protocol  Protocol
	body      BodyConfig
	headers   map[string]string
	checks    []Check
	transport transport.Transport
}

// NewExecutor validates cfg and binds it to t.
func NewExecutor(cfg Config, t transport.Transport) (*Executor, error) {
	if cfg.URL == "" {
		return nil, errors.New("target URL is required")
	}
	if t == nil {
		return nil, errors.New("transport is required")
	}
	protocol, err := ParseProtocol(string(cfg.Protocol))
	if err != nil {
		return nil, err
	}

	checks := cfg.Checks
	if checks == nil {
		checks, err = BuildChecks(DefaultCheckSpecs(protocol, cfg.Body.Stream))
		if err != nil {
			return nil, err
		}
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if protocol == ProtocolChat && cfg.Body.Stream {
		headers["Accept"] = "text/event-stream"
	}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	for k, v := range cfg.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	return &Executor{
		url:       cfg.URL,
		protocol:  protocol,
		body:      cfg.Body,
		headers:   headers,
		checks:    checks,
		transport: t,
	}, nil
}

// Checks returns the configured checks in evaluation order.
func (e *Executor) Checks() []Check {
	return e.checks
}

// Execute sends payload and classifies the response. Failures of any kind are
// reported in the Outcome; Execute never panics on a bad body.
func (e *Executor) Execute(ctx context.Context, payload Payload) Outcome {
	outcome := Outcome{StartedAt: time.Now()}

	body, err := BuildBody(e.protocol, e.body, payload.Prompt)
	if err != nil {
		outcome.Reason = ReasonValidation
		outcome.Error = fmt.Sprintf("building request body: %v", err)
		return outcome
	}

	resp, err := e.transport.Do(ctx, &transport.Request{
		Method:  http.MethodPost,
		URL:     e.url,
		Headers: e.headers,
		Body:    body,
	})
	if err != nil {
		outcome.Duration = time.Since(outcome.StartedAt)
		outcome.Reason = ReasonTransport
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Duration = resp.Elapsed
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(outcome.StartedAt)
	}
	outcome.TTFB = resp.TTFB
	outcome.StatusCode = resp.StatusCode
	outcome.BytesReceived = len(resp.Body)

	checked := NewResponse(e.protocol, e.body.Stream, resp.StatusCode, resp.Body)
	if usage := checked.Usage(); usage != nil {
		outcome.Usage = *usage
	}

	for _, check := range e.checks {
		if err := check.Check(checked); err != nil {
			outcome.Reason = ReasonValidation
			outcome.Check = check.Name()
			outcome.Error = err.Error()

			var cerr *CheckError
			if errors.As(err, &cerr) {
				outcome.Reason = cerr.Reason
				outcome.Error = cerr.Message
			}
			return outcome
		}
	}

	outcome.Success = true
	return outcome
}
