package infra

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/port"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ============================================================
// ResilientCompleter: bulkhead + circuit breaker + retry
// ============================================================
//
//	Complete ─► bulkhead slot ─► breaker ─► RetryWithBackoff(provider)
//
// 429, 5xx and network failures are retried; other 4xx come back wrapped in
// resilience.Permanent from the provider and fail on the first attempt.

// ResilientCompleter decorates a provider Completer.
type ResilientCompleter struct {
	next     port.Completer
	name     string
	cb       *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	cfg      resilience.Config
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewResilientCompleter wraps next. name labels the breaker, metrics and errors.
func NewResilientCompleter(
	next port.Completer,
	name string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ResilientCompleter {
	return &ResilientCompleter{
		next:     next,
		name:     name,
		cb:       cb,
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Complete runs the request with the configured protections.
func (c *ResilientCompleter) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	ctx, span := tracer.Start(ctx, "ResilientCompleter.Complete")
	defer span.End()

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	start := time.Now()
	attempts := 0
	result, err := c.cb.Execute(func() (any, error) {
		var out *domain.Completion
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			attempts++
			var callErr error
			out, callErr = c.next.Complete(ctx, req)
			return callErr
		})
		return out, err
	})
	c.metrics.RecordRequestDuration("llm", time.Since(start))

	if err != nil {
		span.RecordError(err)
		c.metrics.IncrExternalError(c.name)
		c.logger.Warn("language model call failed",
			zap.String("provider", c.name),
			zap.Int("attempts", attempts),
			zap.Bool("json_mode", req.JSONMode),
			zap.Error(err),
		)
		switch {
		case resilience.IsBreakerOpen(err):
			return nil, &maindomain.ErrCircuitOpen{Service: c.name}
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, &maindomain.ErrExternalService{Service: c.name, Err: err}
		}
	}

	out := result.(*domain.Completion)
	c.metrics.RecordTokens(out.PromptTokens, out.CompletionTokens)
	return out, nil
}
