// Package mockserver is an in-process inference endpoint for smoke tests and
// local load runs. It speaks the OpenAI-compatible embeddings and chat
// completions wire formats with configurable latency and error injection.
package mockserver

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/logging"
	"github.com/inferload/inferload/internal/performance/request"
)

// Defaults applied by New.
const (
	DefaultDimensions = 8
	DefaultModel      = "mock-model"
	DefaultMaxTokens  = 16

	maxBodyBytes = 4 << 20
)

// Config controls the mock server's behavior.
type Config struct {
	// Latency is added before every response.
	Latency time.Duration

	// Jitter adds a uniform random delay in [0, Jitter).
	Jitter time.Duration

	// ErrorRate is the fraction of requests answered with ErrorStatus.
	ErrorRate float64

	// ErrorStatus defaults to 500.
	ErrorStatus int

	// Dimensions is the embedding length when the request does not set one.
	Dimensions int

	// Model is reported when the request does not name one.
	Model string

	// MaxTokens caps chat replies when the request does not.
	MaxTokens int

	// ChunkDelay is slept between streamed chat chunks.
	ChunkDelay time.Duration

	// Seed makes error injection and jitter reproducible. Zero picks a random seed.
	Seed uint64

	Logger *zap.Logger
}

// Server serves the mock endpoints.
type Server struct {
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	requests atomic.Int64
	failures atomic.Int64
	last     atomic.Pointer[[]byte]
}

// New builds a server, filling in defaults.
func New(cfg Config) *Server {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.ErrorStatus == 0 {
		cfg.ErrorStatus = http.StatusInternalServerError
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Server{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).With(zap.String("component", "mockserver")),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Requests returns how many inference requests were received.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Failures returns how many requests were answered with an injected error.
func (s *Server) Failures() int64 { return s.failures.Load() }

// LastRequest returns the body of the most recent inference request.
func (s *Server) LastRequest() []byte {
	if p := s.last.Load(); p != nil {
		return *p
	}
	return nil
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "healthy")
	})
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5*time.Second + s.cfg.Latency + s.cfg.Jitter + time.Duration(s.cfg.MaxTokens)*s.cfg.ChunkDelay,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	s.logger.Info("mock server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("latency", s.cfg.Latency),
		zap.Float64("errorRate", s.cfg.ErrorRate))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mock server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("mock server stopped", zap.Int64("requests", s.Requests()))
	return nil
}

type embeddingRequest struct {
	Model          string          `json:"model"`
	Input          json.RawMessage `json:"input"`
	EncodingFormat string          `json:"encoding_format"`
	Dimensions     int             `json:"dimensions"`
}

type embeddingData struct {
	Object    string      `json:"object"`
	Index     int         `json:"index"`
	Embedding interface{} `json:"embedding"`
}

type embeddingResponse struct {
	Object string          `json:"object"`
	Model  string          `json:"model"`
	Data   []embeddingData `json:"data"`
	Usage  request.Usage   `json:"usage"`
}

type chatRequest struct {
	Model     string            `json:"model"`
	Messages  []request.Message `json:"messages"`
	MaxTokens int               `json:"max_tokens"`
	Stream    bool              `json:"stream"`
}

type chatChoice struct {
	Index        int              `json:"index"`
	Message      *request.Message `json:"message,omitempty"`
	Delta        *request.Message `json:"delta,omitempty"`
	FinishReason *string          `json:"finish_reason"`
}

type chatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []chatChoice   `json:"choices"`
	Usage   *request.Usage `json:"usage,omitempty"`
}

// begin counts the request, captures its body and applies latency and error
// injection. It returns false when the response has already been written.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	s.requests.Add(1)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return nil, false
	}
	s.last.Store(&body)

	delay, fail := s.roll()
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-r.Context().Done():
			t.Stop()
			return nil, false
		}
	}
	if fail {
		s.failures.Add(1)
		writeError(w, s.cfg.ErrorStatus, "server_error", "injected failure")
		return nil, false
	}
	return body, true
}

func (s *Server) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.cfg.Latency
	if s.cfg.Jitter > 0 {
		delay += time.Duration(s.rng.Int64N(int64(s.cfg.Jitter)))
	}
	return delay, s.cfg.ErrorRate > 0 && s.rng.Float64() < s.cfg.ErrorRate
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	body, ok := s.begin(w, r)
	if !ok {
		return
	}

	var req embeddingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	inputs, err := decodeInputs(req.Input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	dims := req.Dimensions
	if dims <= 0 {
		dims = s.cfg.Dimensions
	}
	resp := embeddingResponse{
		Object: "list",
		Model:  s.model(req.Model),
		Data:   make([]embeddingData, len(inputs)),
	}
	for i, in := range inputs {
		vec := vectorFor(in, dims)
		var emb interface{} = vec
		if req.EncodingFormat == "base64" {
			emb = encodeBase64(vec)
		}
		resp.Data[i] = embeddingData{Object: "embedding", Index: i, Embedding: emb}
		resp.Usage.PromptTokens += countTokens(in)
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, ok := s.begin(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > s.cfg.MaxTokens {
		maxTokens = s.cfg.MaxTokens
	}
	words := reply(req.Messages[len(req.Messages)-1].Content, maxTokens)

	usage := request.Usage{CompletionTokens: len(words)}
	for _, m := range req.Messages {
		usage.PromptTokens += countTokens(m.Content)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	id := "chatcmpl-" + uuid.NewString()
	model := s.model(req.Model)
	stop := "stop"
	if len(words) == maxTokens {
		stop = "length"
	}

	if !req.Stream {
		writeJSON(w, http.StatusOK, chatResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   model,
			Choices: []chatChoice{{
				Message:      &request.Message{Role: "assistant", Content: strings.Join(words, " ")},
				FinishReason: &stop,
			}},
			Usage: &usage,
		})
		return
	}

	s.stream(w, r, id, model, words, stop, usage)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, id, model string, words []string, stop string, usage request.Usage) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	created := time.Now().Unix()
	send := func(chunk chatResponse) error {
		chunk.ID, chunk.Object, chunk.Created, chunk.Model = id, "chat.completion.chunk", created, model
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	for i, word := range words {
		content := word
		if i > 0 {
			content = " " + word
		}
		delta := &request.Message{Content: content}
		if i == 0 {
			delta.Role = "assistant"
		}
		if err := send(chatResponse{Choices: []chatChoice{{Delta: delta}}}); err != nil {
			return
		}
		if s.cfg.ChunkDelay > 0 {
			select {
			case <-time.After(s.cfg.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
	}
	if err := send(chatResponse{
		Choices: []chatChoice{{Delta: &request.Message{}, FinishReason: &stop}},
		Usage:   &usage,
	}); err != nil {
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) model(requested string) string {
	if requested != "" {
		return requested
	}
	return s.cfg.Model
}

// decodeInputs accepts a single string or a list of strings.
func decodeInputs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("input is required")
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("input must be a string or a list of strings")
	}
	if len(many) == 0 {
		return nil, errors.New("input must not be empty")
	}
	return many, nil
}

// vectorFor derives a stable unit-length vector from the input text.
func vectorFor(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// encodeBase64 packs little-endian float32s the way base64 embeddings are sent.
func encodeBase64(vec []float32) string {
	raw := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func countTokens(s string) int {
	return len(strings.Fields(s))
}

func reply(prompt string, maxTokens int) []string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		words = []string{"ok"}
	}
	if len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return words
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, typ, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    typ,
			"code":    status,
		},
	})
}
