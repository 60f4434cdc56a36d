package service

import (
	"context"
	"sync"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// OrderTrackingStrategy: order_tracking
// ============================================================

// OrderTrackingStrategy validates the order and lets the model describe
// its fulfillment state.
type OrderTrackingStrategy struct {
	gate      *orderGate
	responder *Responder
	metrics   *observability.Metrics
}

// NewOrderTrackingStrategy creates the order_tracking strategy.
func NewOrderTrackingStrategy(commerce port.CommerceClient, responder *Responder, metrics *observability.Metrics, logger *zap.Logger) *OrderTrackingStrategy {
	return &OrderTrackingStrategy{
		gate:      newOrderGate(commerce, metrics, logger),
		responder: responder,
		metrics:   metrics,
	}
}

func (s *OrderTrackingStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentOrderTracking
}

func (s *OrderTrackingStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "OrderTrackingStrategy.Handle")
	defer span.End()

	order, reply, err := s.gate.resolve(ctx, chatCtx)
	if order == nil {
		return reply, err
	}

	req := baseReply(chatCtx)
	req.Order = order
	s.metrics.IncrHandlerOutcome(string(domain.IntentOrderTracking), "replied")
	return s.responder.GenerateFinalAnswer(ctx, req)
}

// ============================================================
// OtherOrderStrategy: other-order
// ============================================================

// OtherOrderStrategy answers free-form questions about one order.
type OtherOrderStrategy struct {
	gate      *orderGate
	responder *Responder
	metrics   *observability.Metrics
}

// NewOtherOrderStrategy creates the other-order strategy.
func NewOtherOrderStrategy(commerce port.CommerceClient, responder *Responder, metrics *observability.Metrics, logger *zap.Logger) *OtherOrderStrategy {
	return &OtherOrderStrategy{
		gate:      newOrderGate(commerce, metrics, logger),
		responder: responder,
		metrics:   metrics,
	}
}

func (s *OtherOrderStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentOtherOrder
}

func (s *OtherOrderStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "OtherOrderStrategy.Handle")
	defer span.End()

	if !chatCtx.Params().HasOrderInfo() {
		s.metrics.IncrHandlerOutcome(string(domain.IntentOtherOrder), "missing_info")
		return replyOtherOrderNeedsInfo.in(chatCtx.Lang()), nil
	}

	order, reply, err := s.gate.resolve(ctx, chatCtx)
	if order == nil {
		return reply, err
	}

	req := baseReply(chatCtx)
	req.Order = order
	s.metrics.IncrHandlerOutcome(string(domain.IntentOtherOrder), "replied")
	return s.responder.GenerateFinalAnswer(ctx, req)
}

// ============================================================
// DeliveryIssueStrategy: delivery_issue
// ============================================================

// DeliveryIssueStrategy handles "marked delivered but never arrived".
// The support mailbox is notified best-effort while the reply is generated.
type DeliveryIssueStrategy struct {
	gate           *orderGate
	responder      *Responder
	mailer         port.Mailer
	supportMailbox string
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// NewDeliveryIssueStrategy creates the delivery_issue strategy.
func NewDeliveryIssueStrategy(
	commerce port.CommerceClient,
	mailer port.Mailer,
	supportMailbox string,
	responder *Responder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DeliveryIssueStrategy {
	return &DeliveryIssueStrategy{
		gate:           newOrderGate(commerce, metrics, logger),
		responder:      responder,
		mailer:         mailer,
		supportMailbox: supportMailbox,
		metrics:        metrics,
		logger:         logger,
	}
}

func (s *DeliveryIssueStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentDeliveryIssue
}

func (s *DeliveryIssueStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "DeliveryIssueStrategy.Handle")
	defer span.End()

	order, reply, err := s.gate.resolve(ctx, chatCtx)
	if order == nil {
		return reply, err
	}

	params := chatCtx.Params()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.notifySupport(ctx, params.OrderNumber, params.Email)
	}()

	req := baseReply(chatCtx)
	req.Order = order
	answer, err := s.responder.GenerateFinalAnswer(ctx, req)
	wg.Wait()

	s.metrics.IncrHandlerOutcome(string(domain.IntentDeliveryIssue), "replied")
	return answer, err
}

// notifySupport never fails the turn.
func (s *DeliveryIssueStrategy) notifySupport(ctx context.Context, orderNumber, email string) {
	if s.mailer == nil || s.supportMailbox == "" {
		return
	}
	err := s.mailer.Send(ctx, &maindomain.Email{
		To:            s.supportMailbox,
		Kind:          maindomain.MailDeliveryIssue,
		OrderNumber:   orderNumber,
		CustomerEmail: email,
	})
	if err != nil {
		s.logger.Warn("delivery issue notification failed",
			zap.String("order_number", orderNumber),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("mailer")
	}
}
