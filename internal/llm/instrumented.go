package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Instrumented logs and measures every call to the wrapped synthesizer.
type Instrumented struct {
	next   Synthesizer
	logger *zap.Logger
}

// NewInstrumented wraps next.
func NewInstrumented(next Synthesizer, logger *zap.Logger) *Instrumented {
	return &Instrumented{next: next, logger: utils.OrNop(logger)}
}

func (s *Instrumented) Name() string { return s.next.Name() }

func (s *Instrumented) Synthesize(ctx context.Context, req *SynthesisRequest) (string, error) {
	start := time.Now()
	text, err := s.next.Synthesize(ctx, req)
	elapsed := time.Since(start)

	provider := s.next.Name()
	metrics.SynthesisDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		metrics.SynthesisRequestsTotal.WithLabelValues(provider, "error").Inc()
		s.logger.Warn("synthesis failed",
			zap.String("provider", provider),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", err
	}
	metrics.SynthesisRequestsTotal.WithLabelValues(provider, "ok").Inc()
	s.logger.Debug("synthesis finished",
		zap.String("provider", provider),
		zap.Int("documents", len(req.Documents)),
		zap.Duration("elapsed", elapsed))
	return text, nil
}
