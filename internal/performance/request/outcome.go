// Package request builds inference requests, sends them through a transport,
// and classifies each response into an Outcome.
package request

import "time"

// FailureReason classifies why an iteration did not succeed.
type FailureReason string

const (
	// ReasonNone marks a successful outcome.
	ReasonNone FailureReason = ""

	// ReasonTransport means no response was obtained (connection error, timeout).
	ReasonTransport FailureReason = "transport-error"

	// ReasonValidation means a response arrived but failed a check.
	ReasonValidation FailureReason = "validation-failure"

	// ReasonSchemaParse means the body was not valid JSON.
	ReasonSchemaParse FailureReason = "schema-parse-error"
)

// AllReasons lists failure reasons in report order.
var AllReasons = []FailureReason{ReasonTransport, ReasonValidation, ReasonSchemaParse}

// Payload is one sampled input.
type Payload struct {
	// Index is the position of the prompt in the corpus.
	Index int

	Prompt string
}

// Usage is the token accounting reported by the server.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}

// Outcome is the immutable result of one request-response cycle.
type Outcome struct {
	// Tag is the concurrency label, stamped by the virtual user.
	Tag string `json:"tag"`

	// VU is the id of the virtual user that issued the request.
	VU int `json:"vu"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	TTFB      time.Duration `json:"ttfb,omitempty"`

	StatusCode int  `json:"statusCode,omitempty"`
	Success    bool `json:"success"`

	Reason FailureReason `json:"reason,omitempty"`

	// Check names the first failing check.
	Check string `json:"check,omitempty"`

	Error string `json:"error,omitempty"`

	Usage Usage `json:"usage"`

	BytesReceived int `json:"bytesReceived"`
}

// Failed reports whether the outcome carries a failure reason.
func (o Outcome) Failed() bool {
	return !o.Success
}
