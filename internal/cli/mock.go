package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/mockserver"
)

func newMockCmd(a *app) *cobra.Command {
	var (
		addr string
		cfg  mockserver.Config
	)
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve a mock embeddings and chat-completions endpoint",
		Long: `Serve /v1/embeddings and /v1/chat/completions with configurable latency
and error injection, for trying configurations without a real model server.

  inferload mock --addr :8080 --latency 20ms --jitter 10ms --error-rate 0.01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg.Logger = a.log()
			srv := mockserver.New(cfg)
			fmt.Fprintf(a.stdout, "mock server listening on %s (latency %s, error rate %.2f%%)\n",
				addr, cfg.Latency, cfg.ErrorRate*100)

			err := srv.ListenAndServe(ctx, addr)
			a.log().Info("mock server stopped",
				zap.Int64("requests", srv.Requests()),
				zap.Int64("failures", srv.Failures()))
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&addr, "addr", ":8080", "Listen address")
	fl.DurationVar(&cfg.Latency, "latency", 0, "Base latency added to every response")
	fl.DurationVar(&cfg.Jitter, "jitter", 0, "Uniform random extra latency")
	fl.Float64Var(&cfg.ErrorRate, "error-rate", 0, "Fraction of requests answered with --error-status")
	fl.IntVar(&cfg.ErrorStatus, "error-status", 500, "Status code for injected errors")
	fl.IntVar(&cfg.Dimensions, "dimensions", mockserver.DefaultDimensions, "Embedding length")
	fl.StringVar(&cfg.Model, "model", mockserver.DefaultModel, "Model reported when the request names none")
	fl.IntVar(&cfg.MaxTokens, "max-tokens", mockserver.DefaultMaxTokens, "Cap on chat reply tokens")
	fl.DurationVar(&cfg.ChunkDelay, "chunk-delay", 0, "Delay between streamed chat chunks")
	fl.Uint64Var(&cfg.Seed, "seed", 0, "Seed for jitter and error injection (0 = random)")
	return cmd
}
