package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/performance"
	"github.com/inferload/inferload/internal/performance/executor"
	"github.com/inferload/inferload/internal/performance/request"
	"github.com/inferload/inferload/internal/transport"
)

// Protocol returns the target protocol; embeddings when unset or invalid.
func (c *TestConfig) Protocol() request.Protocol {
	p, err := request.ParseProtocol(c.Target.Protocol)
	if err != nil {
		return request.ProtocolEmbeddings
	}
	return p
}

// ExecutorConfig converts the load section into an executor configuration.
func (c *TestConfig) ExecutorConfig(logger *zap.Logger) *executor.Config {
	cfg := &executor.Config{
		Name:             c.Name,
		Type:             executor.Type(c.Load.Executor),
		VUs:              c.Load.VUs,
		Duration:         time.Duration(c.Load.Duration),
		StartVUs:         c.Load.StartVUs,
		GracefulRampDown: c.Load.GracePeriod(),
		Tick:             time.Duration(c.Load.Tick),
		TagFormat:        c.Metrics.TagFormat,
		Logger:           logger,
	}
	for _, s := range c.Load.Stages {
		cfg.Stages = append(cfg.Stages, executor.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     s.Name,
		})
	}
	return cfg
}

// GracePeriod returns the drain window, DefaultGracefulRampDown when unset.
func (l *LoadSection) GracePeriod() time.Duration {
	if l.GracefulRampDown == nil {
		return DefaultGracefulRampDown
	}
	return time.Duration(*l.GracefulRampDown)
}

// Pacing converts the pacing block. A missing block means no pacing.
func (c *TestConfig) Pacing() performance.Pacing {
	p := c.Load.Pacing
	if p == nil {
		return performance.Pacing{Type: performance.PacingNone}
	}
	out := performance.Pacing{
		Type:     performance.PacingType(p.Type),
		Duration: time.Duration(p.Duration),
		Min:      time.Duration(p.Min),
		Max:      time.Duration(p.Max),
	}
	if out.Type == "" {
		out.Type = performance.PacingNone
	}
	return out
}

// TransportConfig returns HTTP client settings sized for the peak VU count.
func (c *TestConfig) TransportConfig() transport.Config {
	tc := transport.DefaultConfig()
	tc.Timeout = c.Target.Timeout.GetDuration(DefaultTimeout)
	tc.InsecureSkipVerify = c.Target.InsecureSkipVerify
	tc.MaxConnsPerHost = c.Target.MaxConnsPerHost

	// one idle connection per VU avoids reconnect churn at steady state
	peak := c.ExecutorConfig(nil).Timeline().MaxTarget()
	if peak > tc.MaxIdleConnsPerHost {
		tc.MaxIdleConnsPerHost = peak
	}
	if peak > tc.MaxIdleConns {
		tc.MaxIdleConns = peak
	}
	return tc
}

// RequestConfig returns the executor settings for the target; checks are
// built separately so schema compilation errors surface once.
func (c *TestConfig) RequestConfig(checks []request.Check) request.Config {
	return request.Config{
		URL:      c.Target.URL,
		Protocol: c.Protocol(),
		APIKey:   c.Target.APIKey,
		Headers:  c.Target.Headers,
		Body:     c.Body,
		Checks:   checks,
	}
}
