// Package report renders a finished run. Every format is a rendering of the
// same engine.Result, and sinks are written concurrently by Publish.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inferload/inferload/internal/logging"
	"github.com/inferload/inferload/internal/performance/engine"
)

// Format names a report format.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatHTML    Format = "html"
)

// maxConcurrentSinks bounds how many sinks Publish writes at once.
const maxConcurrentSinks = 4

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatConsole, FormatJSON, FormatYAML, FormatHTML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (expected console, json, yaml or html)", s)
	}
}

// FormatFromPath infers a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer report format from %q", path)
	}
	return ParseFormat(ext)
}

// Sink receives a finished run.
type Sink interface {
	Name() string
	Write(ctx context.Context, result *engine.Result) error
}

// Renderer writes a result in one format.
type Renderer func(w io.Writer, result *engine.Result) error

// RendererFor returns the renderer for a file format.
func RendererFor(f Format) (Renderer, error) {
	switch f {
	case FormatJSON:
		return WriteJSON, nil
	case FormatYAML:
		return WriteYAML, nil
	case FormatHTML:
		return WriteHTML, nil
	case FormatConsole:
		return func(w io.Writer, r *engine.Result) error {
			return NewSummary(w, nil).Print(r)
		}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", f)
	}
}

// FileSink renders a result to a path. "-" writes to stdout.
type FileSink struct {
	Format Format
	Path   string
	render Renderer
	stdout io.Writer
}

// NewFileSink builds a sink for path. An empty format is inferred from the
// extension.
func NewFileSink(format Format, path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("report path is required")
	}
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	render, err := RendererFor(format)
	if err != nil {
		return nil, err
	}
	return &FileSink{Format: format, Path: path, render: render, stdout: os.Stdout}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string {
	return fmt.Sprintf("%s:%s", s.Format, s.Path)
}

// Write implements Sink.
func (s *FileSink) Write(ctx context.Context, result *engine.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Path == "-" {
		return s.render(s.stdout, result)
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := s.render(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Publish writes result to every sink concurrently. A failing sink does not
// stop the others; all failures are logged and returned joined.
func Publish(ctx context.Context, logger *zap.Logger, result *engine.Result, sinks ...Sink) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	logger = logging.OrNop(logger).With(zap.String("component", "report"))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSinks)
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		g.Go(func() error {
			if err := sink.Write(gctx, result); err != nil {
				logger.Error("report sink failed", zap.String("sink", sink.Name()), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				mu.Unlock()
				return nil
			}
			logger.Debug("report written", zap.String("sink", sink.Name()))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
