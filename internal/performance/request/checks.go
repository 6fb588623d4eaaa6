package request

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/inferload/inferload/pkg/jsonpath"
	"github.com/inferload/inferload/pkg/jsonschema"
)

// CheckError is returned by a failing check.
type CheckError struct {
	Reason  FailureReason
	Check   string
	Message string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Check, e.Message, e.Reason)
}

func validationFailure(check, format string, args ...interface{}) *CheckError {
	return &CheckError{Reason: ReasonValidation, Check: check, Message: fmt.Sprintf(format, args...)}
}

func parseFailure(check string, err error) *CheckError {
	return &CheckError{Reason: ReasonSchemaParse, Check: check, Message: err.Error()}
}

// Response is a received response as seen by checks. The body is decoded at
// most once, on first use, and shared by all checks of the iteration.
type Response struct {
	StatusCode int
	Body       []byte

	protocol Protocol
	stream   bool

	decoded   bool
	embedding *EmbeddingResponse
	chat      *ChatResponse
	decodeErr error
}

// NewResponse wraps a status and body for checking.
func NewResponse(protocol Protocol, stream bool, status int, body []byte) *Response {
	return &Response{StatusCode: status, Body: body, protocol: protocol, stream: stream}
}

func (r *Response) decode() {
	if r.decoded {
		return
	}
	r.decoded = true
	switch {
	case r.protocol == ProtocolChat && r.stream:
		r.chat, r.decodeErr = ParseChatStream(r.Body)
	case r.protocol == ProtocolChat:
		r.chat, r.decodeErr = ParseChat(r.Body)
	default:
		r.embedding, r.decodeErr = ParseEmbedding(r.Body)
	}
}

// Embedding returns the decoded embeddings body.
func (r *Response) Embedding() (*EmbeddingResponse, error) {
	if r.protocol == ProtocolChat {
		return nil, errors.New("not an embeddings response")
	}
	r.decode()
	return r.embedding, r.decodeErr
}

// Chat returns the decoded chat body.
func (r *Response) Chat() (*ChatResponse, error) {
	if r.protocol != ProtocolChat {
		return nil, errors.New("not a chat response")
	}
	r.decode()
	return r.chat, r.decodeErr
}

// Usage returns the reported usage, or nil when absent or undecodable.
func (r *Response) Usage() *Usage {
	r.decode()
	switch {
	case r.decodeErr != nil:
		return nil
	case r.embedding != nil:
		return r.embedding.Usage
	case r.chat != nil:
		return r.chat.Usage
	}
	return nil
}

func (r *Response) mismatches() []string {
	r.decode()
	switch {
	case r.embedding != nil:
		return r.embedding.Mismatches
	case r.chat != nil:
		return r.chat.Mismatches
	}
	return nil
}

func (r *Response) serverError() *APIError {
	r.decode()
	switch {
	case r.embedding != nil:
		return r.embedding.Error
	case r.chat != nil:
		return r.chat.Error
	}
	return nil
}

// Check is one response predicate. Checks run in order; the first error decides
// the outcome's failure reason.
type Check interface {
	Name() string
	Check(resp *Response) error
}

// StatusCheck requires an exact status code.
type StatusCheck struct {
	Want int
}

func (c StatusCheck) Name() string { return fmt.Sprintf("status is %d", c.Want) }

func (c StatusCheck) Check(resp *Response) error {
	if resp.StatusCode != c.Want {
		return validationFailure(c.Name(), "got status %d", resp.StatusCode)
	}
	return nil
}

// EmbeddingCheck requires a non-empty data[0].embedding.
type EmbeddingCheck struct{}

func (EmbeddingCheck) Name() string { return "has embedding data" }

func (c EmbeddingCheck) Check(resp *Response) error {
	body, err := resp.Embedding()
	if err != nil {
		return parseFailure(c.Name(), err)
	}
	if body.Error != nil {
		return validationFailure(c.Name(), "%v", body.Error)
	}
	if m, ok := hasMismatch(body.Mismatches, "$", "data", "data[0]", "data[0].embedding"); ok {
		return validationFailure(c.Name(), "%s has an unexpected type", m)
	}
	if len(body.Data) == 0 {
		return validationFailure(c.Name(), "data is empty")
	}
	if body.Data[0].Embedding == nil || body.Data[0].Embedding.Len == 0 {
		return validationFailure(c.Name(), "data[0].embedding is empty")
	}
	return nil
}

// UsageCheck requires a usage block. It is a default only for chat; embeddings
// servers commonly omit usage.
type UsageCheck struct{}

func (UsageCheck) Name() string { return "response contains usage" }

func (c UsageCheck) Check(resp *Response) error {
	resp.decode()
	if resp.decodeErr != nil {
		return parseFailure(c.Name(), resp.decodeErr)
	}
	if apiErr := resp.serverError(); apiErr != nil {
		return validationFailure(c.Name(), "%v", apiErr)
	}
	if m, ok := hasMismatch(resp.mismatches(), "$", "usage"); ok {
		return validationFailure(c.Name(), "%s has an unexpected type", m)
	}
	if resp.Usage() == nil {
		return validationFailure(c.Name(), "usage is missing")
	}
	return nil
}

// ChatContentCheck requires non-empty assistant content.
type ChatContentCheck struct{}

func (ChatContentCheck) Name() string { return "has completion content" }

func (c ChatContentCheck) Check(resp *Response) error {
	body, err := resp.Chat()
	if err != nil {
		return parseFailure(c.Name(), err)
	}
	if body.Error != nil {
		return validationFailure(c.Name(), "%v", body.Error)
	}
	if m, ok := hasMismatch(body.Mismatches, "$", "choices", "choices[0]", "choices[0].message", "choices[0].delta"); ok {
		return validationFailure(c.Name(), "%s has an unexpected type", m)
	}
	if body.Content() == "" {
		return validationFailure(c.Name(), "choices[0].message.content is empty")
	}
	return nil
}

// JSONPath conditions.
const (
	ConditionExists   = "exists"
	ConditionNonEmpty = "not-empty"
	ConditionEquals   = "equals"
)

// JSONPathCheck evaluates a condition on a value in the raw body.
type JSONPathCheck struct {
	Path      string
	Condition string
	Value     string
}

func (c JSONPathCheck) Name() string {
	if c.Condition == ConditionEquals {
		return fmt.Sprintf("%s equals %q", c.Path, c.Value)
	}
	return fmt.Sprintf("%s %s", c.Path, c.condition())
}

func (c JSONPathCheck) condition() string {
	if c.Condition == "" {
		return ConditionExists
	}
	return c.Condition
}

func (c JSONPathCheck) Check(resp *Response) error {
	switch c.condition() {
	case ConditionNonEmpty:
		ok, err := jsonpath.NonEmpty(resp.Body, c.Path)
		if err != nil {
			return c.lookupFailure(err)
		}
		if !ok {
			return validationFailure(c.Name(), "value is empty")
		}
	case ConditionEquals:
		got, err := jsonpath.Extract(resp.Body, c.Path)
		if err != nil {
			return c.lookupFailure(err)
		}
		if got != c.Value {
			return validationFailure(c.Name(), "got %q", got)
		}
	default:
		if _, err := jsonpath.Lookup(resp.Body, c.Path); err != nil {
			return c.lookupFailure(err)
		}
	}
	return nil
}

func (c JSONPathCheck) lookupFailure(err error) error {
	if errors.Is(err, jsonpath.ErrInvalidJSON) {
		return parseFailure(c.Name(), err)
	}
	return validationFailure(c.Name(), "%v", err)
}

// SchemaCheck validates the body against a compiled JSON schema.
type SchemaCheck struct {
	schema *jsonschema.Schema
}

// NewSchemaCheck compiles schema once for all virtual users.
func NewSchemaCheck(schema string) (*SchemaCheck, error) {
	compiled, err := jsonschema.Compile(schema)
	if err != nil {
		return nil, err
	}
	return &SchemaCheck{schema: compiled}, nil
}

func (*SchemaCheck) Name() string { return "matches schema" }

func (c *SchemaCheck) Check(resp *Response) error {
	err := c.schema.Validate(resp.Body)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jsonschema.ErrInvalidJSON):
		return parseFailure(c.Name(), err)
	default:
		return validationFailure(c.Name(), "%v", err)
	}
}

// Check types accepted in configuration.
const (
	CheckStatus      = "status"
	CheckEmbedding   = "embedding"
	CheckUsage       = "usage"
	CheckChatContent = "chat-content"
	CheckJSONPath    = "jsonpath"
	CheckSchema      = "schema"
)

// CheckSpec is the declarative form of a check.
type CheckSpec struct {
	Type      string `json:"type" yaml:"type"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Schema    string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// DefaultCheckSpecs returns the checks applied when none are configured.
func DefaultCheckSpecs(protocol Protocol, stream bool) []CheckSpec {
	specs := []CheckSpec{{Type: CheckStatus, Value: "200"}}
	switch {
	case protocol == ProtocolChat && stream:
		// streams report usage only when the server is asked to
		return append(specs, CheckSpec{Type: CheckChatContent})
	case protocol == ProtocolChat:
		return append(specs, CheckSpec{Type: CheckUsage}, CheckSpec{Type: CheckChatContent})
	default:
		return append(specs, CheckSpec{Type: CheckEmbedding})
	}
}

// BuildChecks turns specs into checks, compiling schemas once.
func BuildChecks(specs []CheckSpec) ([]Check, error) {
	checks := make([]Check, 0, len(specs))
	for i, spec := range specs {
		check, err := buildCheck(spec)
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		checks = append(checks, check)
	}
	return checks, nil
}

func buildCheck(spec CheckSpec) (Check, error) {
	switch spec.Type {
	case CheckStatus:
		want := 200
		if spec.Value != "" {
			n, err := strconv.Atoi(spec.Value)
			if err != nil || n < 100 || n > 599 {
				return nil, fmt.Errorf("invalid status value %q", spec.Value)
			}
			want = n
		}
		return StatusCheck{Want: want}, nil
	case CheckEmbedding:
		return EmbeddingCheck{}, nil
	case CheckUsage:
		return UsageCheck{}, nil
	case CheckChatContent:
		return ChatContentCheck{}, nil
	case CheckJSONPath:
		if spec.Path == "" {
			return nil, errors.New("jsonpath check requires path")
		}
		switch spec.Condition {
		case "", ConditionExists, ConditionNonEmpty, ConditionEquals:
		default:
			return nil, fmt.Errorf("unknown jsonpath condition %q", spec.Condition)
		}
		return JSONPathCheck{Path: spec.Path, Condition: spec.Condition, Value: spec.Value}, nil
	case CheckSchema:
		if spec.Schema == "" {
			return nil, errors.New("schema check requires schema")
		}
		return NewSchemaCheck(spec.Schema)
	}
	return nil, fmt.Errorf("unknown check type %q", spec.Type)
}
