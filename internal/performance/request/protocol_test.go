package request

import (
	"encoding/json"
	"testing"
)

func TestBuildBody_Embeddings(t *testing.T) {
	cfg := BodyConfig{
		Model:          "nvidia/llama-3.2-nv-embedqa-1b-v2",
		InputType:      "query",
		EncodingFormat: "float",
		Dimensions:     384,
		Truncate:       "NONE",
	}

	body, err := BuildBody(ProtocolEmbeddings, cfg, "hello")
	if err != nil {
		t.Fatalf("BuildBody() error: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}

	want := map[string]interface{}{
		"model":           "nvidia/llama-3.2-nv-embedqa-1b-v2",
		"input":           "hello",
		"input_type":      "query",
		"encoding_format": "float",
		"dimensions":      float64(384),
		"truncate":        "NONE",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["truncate_prompt_tokens"]; ok {
		t.Error("zero truncate_prompt_tokens should be omitted")
	}
}

func TestBuildBody_Chat(t *testing.T) {
	temp := 0.8
	cfg := BodyConfig{
		Model:       "llama",
		Temperature: &temp,
		MaxTokens:   2048,
		System:      "be brief",
		History: []Message{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi"},
		},
	}

	body, err := BuildBody(ProtocolChat, cfg, "question")
	if err != nil {
		t.Fatalf("BuildBody() error: %v", err)
	}

	var got chatRequest
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}

	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("len(messages) = %d, want %d", len(got.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("messages[%d].role = %s, want %s", i, got.Messages[i].Role, role)
		}
	}
	if last := got.Messages[3].Content; last != "question" {
		t.Errorf("last message = %q, want the prompt", last)
	}
	if got.Temperature == nil || *got.Temperature != 0.8 {
		t.Errorf("temperature = %v, want 0.8", got.Temperature)
	}
	if got.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d, want 2048", got.MaxTokens)
	}
	if got.Stream {
		t.Error("stream should default to false")
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"", ProtocolEmbeddings, false},
		{"embeddings", ProtocolEmbeddings, false},
		{"chat", ProtocolChat, false},
		{"completions", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProtocol(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseProtocol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
