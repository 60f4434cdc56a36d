package service

import (
	"context"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
)

// ============================================================
// ReturnsStrategy: returns_exchange
// ============================================================

// ReturnsStrategy sends the returns portal link once; follow-ups go through
// reply generation without repeating it.
type ReturnsStrategy struct {
	returnsURL string
	responder  *Responder
	metrics    *observability.Metrics
}

// NewReturnsStrategy creates the returns_exchange strategy.
func NewReturnsStrategy(returnsURL string, responder *Responder, metrics *observability.Metrics) *ReturnsStrategy {
	return &ReturnsStrategy{returnsURL: returnsURL, responder: responder, metrics: metrics}
}

func (s *ReturnsStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentReturnsExchange
}

func (s *ReturnsStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "ReturnsStrategy.Handle")
	defer span.End()

	if !chatCtx.Params().ReturnsWebsiteSent {
		s.metrics.IncrHandlerOutcome(string(domain.IntentReturnsExchange), "link_sent")
		return replyReturnsLink.format(chatCtx.Lang(), s.returnsURL), nil
	}

	req := baseReply(chatCtx)
	req.Instruction = "The returns portal link (" + s.returnsURL + ") was already shared in this conversation. " +
		"Do not repeat it; answer the follow-up question briefly."
	s.metrics.IncrHandlerOutcome(string(domain.IntentReturnsExchange), "replied")
	return s.responder.GenerateFinalAnswer(ctx, req)
}

// ============================================================
// ConversationEndStrategy: conversation_end
// ============================================================

// ConversationEndStrategy returns the fixed closing line.
type ConversationEndStrategy struct {
	metrics *observability.Metrics
}

// NewConversationEndStrategy creates the conversation_end strategy.
func NewConversationEndStrategy(metrics *observability.Metrics) *ConversationEndStrategy {
	return &ConversationEndStrategy{metrics: metrics}
}

func (s *ConversationEndStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentConversationEnd
}

func (s *ConversationEndStrategy) Handle(_ context.Context, chatCtx *domain.ChatContext) (string, error) {
	s.metrics.IncrHandlerOutcome(string(domain.IntentConversationEnd), "closed")
	return replyClosing.in(chatCtx.Lang()), nil
}
