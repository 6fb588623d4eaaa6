package request

import (
	"encoding/json"
	"fmt"
)

// Protocol selects the request body and response shape.
type Protocol string

const (
	ProtocolEmbeddings Protocol = "embeddings"
	ProtocolChat       Protocol = "chat"
)

// ParseProtocol validates a protocol name. Empty means embeddings.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case "", ProtocolEmbeddings:
		return ProtocolEmbeddings, nil
	case ProtocolChat:
		return ProtocolChat, nil
	}
	return "", fmt.Errorf("unknown protocol %q (expected embeddings or chat)", s)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// BodyConfig holds the request body parameters. Zero values are omitted from
// the wire body so servers apply their own defaults.
type BodyConfig struct {
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Embeddings
	InputType            string `json:"inputType,omitempty" yaml:"inputType,omitempty"`
	EncodingFormat       string `json:"encodingFormat,omitempty" yaml:"encodingFormat,omitempty"`
	Dimensions           int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Truncate             string `json:"truncate,omitempty" yaml:"truncate,omitempty"`
	TruncatePromptTokens int    `json:"truncatePromptTokens,omitempty" yaml:"truncatePromptTokens,omitempty"`

	// Chat
	Temperature *float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Stream      bool      `json:"stream,omitempty" yaml:"stream,omitempty"`
	System      string    `json:"system,omitempty" yaml:"system,omitempty"`
	History     []Message `json:"history,omitempty" yaml:"history,omitempty"`
}

type embeddingRequest struct {
	Model                string `json:"model,omitempty"`
	Input                string `json:"input"`
	InputType            string `json:"input_type,omitempty"`
	EncodingFormat       string `json:"encoding_format,omitempty"`
	Dimensions           int    `json:"dimensions,omitempty"`
	Truncate             string `json:"truncate,omitempty"`
	TruncatePromptTokens int    `json:"truncate_prompt_tokens,omitempty"`
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// BuildBody encodes the wire body for prompt.
func BuildBody(protocol Protocol, cfg BodyConfig, prompt string) ([]byte, error) {
	switch protocol {
	case ProtocolEmbeddings, "":
		return json.Marshal(embeddingRequest{
			Model:                cfg.Model,
			Input:                prompt,
			InputType:            cfg.InputType,
			EncodingFormat:       cfg.EncodingFormat,
			Dimensions:           cfg.Dimensions,
			Truncate:             cfg.Truncate,
			TruncatePromptTokens: cfg.TruncatePromptTokens,
		})
	case ProtocolChat:
		return json.Marshal(chatRequest{
			Model:       cfg.Model,
			Messages:    chatMessages(cfg, prompt),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Stream:      cfg.Stream,
		})
	}
	return nil, fmt.Errorf("unknown protocol %q", protocol)
}

// chatMessages orders system prompt, fixed history, then the sampled prompt.
func chatMessages(cfg BodyConfig, prompt string) []Message {
	msgs := make([]Message, 0, len(cfg.History)+2)
	if cfg.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: cfg.System})
	}
	msgs = append(msgs, cfg.History...)
	return append(msgs, Message{Role: "user", Content: prompt})
}
