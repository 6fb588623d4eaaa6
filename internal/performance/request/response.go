package request

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmptyStream is returned when a streamed body carries no data events.
	ErrEmptyStream = errors.New("stream contained no data events")

	// ErrMalformedBody is returned when a body is not JSON at all.
	ErrMalformedBody = errors.New("body is not valid JSON")
)

// Vector is an embedding that may arrive as a float array or a base64 string.
type Vector struct {
	// Len is the number of dimensions.
	Len int
}

// UnmarshalJSON accepts [floats...] or a base64 string of little-endian float32s.
func (v *Vector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		v.Len = 0
		return nil
	case len(data) > 0 && data[0] == '[':
		var floats []float64
		if err := json.Unmarshal(data, &floats); err != nil {
			return err
		}
		v.Len = len(floats)
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("embedding is not valid base64: %w", err)
		}
		v.Len = len(raw) / 4
		return nil
	}
	return fmt.Errorf("embedding has unexpected JSON type")
}

// APIError is an error object returned by the server in the body.
type APIError struct {
	Message string          `json:"message"`
	Type    string          `json:"type,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Code) > 0 {
		return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}

// EmbeddingData is one entry of an embeddings response.
type EmbeddingData struct {
	Index     int     `json:"index"`
	Embedding *Vector `json:"embedding"`
}

// EmbeddingResponse is the /v1/embeddings response body.
type EmbeddingResponse struct {
	Object string          `json:"object,omitempty"`
	Model  string          `json:"model,omitempty"`
	Data   []EmbeddingData `json:"data"`
	Usage  *Usage          `json:"usage"`
	Error  *APIError       `json:"error,omitempty"`

	// Mismatches names fields that were present with an unexpected JSON type.
	Mismatches []string `json:"-"`
}

// ChatChoice is one completion choice. Streams populate Delta, full responses Message.
type ChatChoice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Delta        *Message `json:"delta,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

// ChatResponse is the /v1/chat/completions response body, or a stream folded into one.
type ChatResponse struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage"`
	Error   *APIError    `json:"error,omitempty"`

	// Mismatches names fields that were present with an unexpected JSON type.
	Mismatches []string `json:"-"`
}

// Content returns the first choice's message content.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return r.Choices[0].Message.Content
}

// fieldDecoder decodes a body one field at a time. A field with the wrong JSON
// type is left at its zero value and recorded, so checks can report it as a
// validation failure instead of failing the whole body.
type fieldDecoder struct {
	mismatches []string
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeField stores raw into dst when it decodes cleanly. Absent and null
// fields are not mismatches.
func decodeField[T any](d *fieldDecoder, name string, raw json.RawMessage, dst *T) bool {
	if isAbsent(raw) {
		return false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		d.mismatches = append(d.mismatches, name)
		return false
	}
	*dst = v
	return true
}

func (d *fieldDecoder) object(name string, raw json.RawMessage) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	decodeField(d, name, raw, &fields)
	return fields
}

// apiError accepts an error object or a bare error string.
func (d *fieldDecoder) apiError(raw json.RawMessage) *APIError {
	var msg string
	if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '"' && decodeField(d, "error", t, &msg) {
		return &APIError{Message: msg}
	}
	var e *APIError
	decodeField(d, "error", raw, &e)
	return e
}

func hasMismatch(mismatches []string, names ...string) (string, bool) {
	for _, m := range mismatches {
		for _, n := range names {
			if m == n {
				return m, true
			}
		}
	}
	return "", false
}

// ParseEmbedding decodes an embeddings body. Only a body that is not JSON is
// an error; type mismatches are recorded in Mismatches.
func ParseEmbedding(body []byte) (*EmbeddingResponse, error) {
	if !json.Valid(body) {
		return nil, ErrMalformedBody
	}

	var d fieldDecoder
	resp := &EmbeddingResponse{}
	top := d.object("$", body)
	decodeField(&d, "object", top["object"], &resp.Object)
	decodeField(&d, "model", top["model"], &resp.Model)
	decodeField(&d, "usage", top["usage"], &resp.Usage)
	resp.Error = d.apiError(top["error"])

	var items []json.RawMessage
	decodeField(&d, "data", top["data"], &items)
	for i, item := range items {
		name := fmt.Sprintf("data[%d]", i)
		fields := d.object(name, item)
		var e EmbeddingData
		decodeField(&d, name+".index", fields["index"], &e.Index)
		decodeField(&d, name+".embedding", fields["embedding"], &e.Embedding)
		resp.Data = append(resp.Data, e)
	}

	resp.Mismatches = d.mismatches
	return resp, nil
}

// ParseChat decodes a chat completion body the same way as ParseEmbedding.
func ParseChat(body []byte) (*ChatResponse, error) {
	if !json.Valid(body) {
		return nil, ErrMalformedBody
	}
	var d fieldDecoder
	resp := decodeChat(&d, body)
	resp.Mismatches = d.mismatches
	return resp, nil
}

func decodeChat(d *fieldDecoder, data []byte) *ChatResponse {
	resp := &ChatResponse{}
	top := d.object("$", data)
	decodeField(d, "id", top["id"], &resp.ID)
	decodeField(d, "model", top["model"], &resp.Model)
	decodeField(d, "usage", top["usage"], &resp.Usage)
	resp.Error = d.apiError(top["error"])

	var choices []json.RawMessage
	decodeField(d, "choices", top["choices"], &choices)
	for i, raw := range choices {
		name := fmt.Sprintf("choices[%d]", i)
		fields := d.object(name, raw)
		var c ChatChoice
		decodeField(d, name+".index", fields["index"], &c.Index)
		decodeField(d, name+".message", fields["message"], &c.Message)
		decodeField(d, name+".delta", fields["delta"], &c.Delta)
		decodeField(d, name+".finish_reason", fields["finish_reason"], &c.FinishReason)
		resp.Choices = append(resp.Choices, c)
	}
	return resp
}

// ParseChatStream folds a server-sent event stream of chat chunks into a single
// response. Content deltas are concatenated, the last usage block wins, and an
// in-band error object stops parsing and is returned on the response.
func ParseChatStream(body []byte) (*ChatResponse, error) {
	out := &ChatResponse{}
	var d fieldDecoder
	var content bytes.Buffer
	var finish string
	events := 0

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			// event:, id:, retry: fields carry nothing we need
			continue
		}
		data = bytes.TrimSpace(data)
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}
		events++

		if !json.Valid(data) {
			return nil, fmt.Errorf("stream event %d: %w", events, ErrMalformedBody)
		}
		chunk := decodeChat(&d, data)
		if chunk.Error != nil {
			out.Error = chunk.Error
			out.Mismatches = d.mismatches
			return out, nil
		}
		if out.ID == "" {
			out.ID = chunk.ID
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.Usage = chunk.Usage
		}
		if len(chunk.Choices) > 0 {
			c := chunk.Choices[0]
			if c.Delta != nil {
				content.WriteString(c.Delta.Content)
			} else if c.Message != nil {
				content.WriteString(c.Message.Content)
			}
			if c.FinishReason != "" {
				finish = c.FinishReason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if events == 0 {
		return nil, ErrEmptyStream
	}

	out.Choices = []ChatChoice{{
		Message:      &Message{Role: "assistant", Content: content.String()},
		FinishReason: finish,
	}}
	out.Mismatches = d.mismatches
	return out, nil
}
