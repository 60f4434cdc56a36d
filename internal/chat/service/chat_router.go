package service

import (
	"context"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// chatTracer is the OpenTelemetry tracer for the chat module.
var chatTracer = otel.Tracer("chat/service")

// ============================================================
// ChatStrategy: one per intent (or group of intents)
// ============================================================

// ChatStrategy handles the intents it claims and returns the reply text.
//
// A strategy turns adapter and validation failures into localized replies;
// the error return is reserved for timeouts and context cancellation.
type ChatStrategy interface {
	CanHandle(intent domain.Intent) bool
	Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error)
}

// ============================================================
// IntentRouter
// ============================================================

// IntentRouter dispatches a classified message to the first strategy that
// accepts its intent. Unclaimed intents go straight to reply generation.
type IntentRouter struct {
	strategies []ChatStrategy
	responder  *Responder
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewIntentRouter creates a router. Order matters: the first match wins.
func NewIntentRouter(strategies []ChatStrategy, responder *Responder, metrics *observability.Metrics, logger *zap.Logger) *IntentRouter {
	return &IntentRouter{
		strategies: strategies,
		responder:  responder,
		metrics:    metrics,
		logger:     logger,
	}
}

// Route returns the final reply for chatCtx.
func (r *IntentRouter) Route(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "IntentRouter.Route")
	defer span.End()

	intent := chatCtx.Classification.Intent
	for _, strategy := range r.strategies {
		if strategy.CanHandle(intent) {
			r.logger.Debug("delegating to strategy", zap.String("intent", string(intent)))
			return strategy.Handle(ctx, chatCtx)
		}
	}

	r.logger.Debug("no strategy matched, using reply generation", zap.String("intent", string(intent)))
	if r.metrics != nil {
		r.metrics.IncrHandlerOutcome(string(intent), "replied")
	}
	return r.responder.GenerateFinalAnswer(ctx, baseReply(chatCtx))
}

// baseReply is the ReplyRequest shared by every strategy.
func baseReply(chatCtx *domain.ChatContext) ReplyRequest {
	return ReplyRequest{
		Intent:   chatCtx.Classification.Intent,
		Language: chatCtx.Lang(),
		Message:  chatCtx.Message,
		History:  chatCtx.History,
		Params:   chatCtx.Classification.Parameters,
	}
}
