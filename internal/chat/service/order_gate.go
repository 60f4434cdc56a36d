package service

import (
	"context"
	"errors"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"go.uber.org/zap"
)

// orderGate validates the order number + e-mail pair shared by every
// order-scoped intent.
type orderGate struct {
	commerce port.CommerceClient
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func newOrderGate(commerce port.CommerceClient, metrics *observability.Metrics, logger *zap.Logger) *orderGate {
	return &orderGate{commerce: commerce, metrics: metrics, logger: logger}
}

// validateOrder looks the order up and checks its contact e-mail.
// Validation failures are values; the error is reserved for adapter failures.
func (g *orderGate) validateOrder(ctx context.Context, orderNumber, email string) (maindomain.OrderLookupResult, error) {
	order, err := g.commerce.FindOrder(ctx, normalizeOrderNumber(orderNumber))
	if err != nil {
		return maindomain.OrderLookupResult{}, err
	}
	if order == nil {
		return maindomain.OrderLookupResult{Failure: maindomain.OrderLookupInvalidOrderNumber}, nil
	}
	if !order.ContactMatches(email) {
		return maindomain.OrderLookupResult{Failure: maindomain.OrderLookupEmailMismatch}, nil
	}
	return maindomain.OrderLookupResult{Order: order}, nil
}

// resolve returns the validated order, or the reply that ends the turn.
// On success the order is recorded on chatCtx for the ticket update.
func (g *orderGate) resolve(ctx context.Context, chatCtx *domain.ChatContext) (*maindomain.Order, string, error) {
	params := chatCtx.Params()
	lang := chatCtx.Lang()
	intent := string(chatCtx.Classification.Intent)

	if !params.HasOrderInfo() {
		g.outcome(intent, "missing_info")
		return nil, replyNoOrderInfo.in(lang), nil
	}

	res, err := g.validateOrder(ctx, params.OrderNumber, params.Email)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", &maindomain.ErrTimeout{Operation: "order_lookup"}
		}
		g.logger.Error("order lookup failed",
			zap.String("order_number", params.OrderNumber),
			zap.Error(err),
		)
		g.outcome(intent, "adapter_error")
		return nil, replyGeneric.in(lang), nil
	}

	switch res.Failure {
	case maindomain.OrderLookupInvalidOrderNumber:
		g.outcome(intent, "invalid_order")
		return nil, replyInvalidOrderNumber.in(lang), nil
	case maindomain.OrderLookupEmailMismatch:
		g.outcome(intent, "email_mismatch")
		return nil, replyEmailMismatch.in(lang), nil
	}

	chatCtx.ResolvedOrder = res.Order
	return res.Order, "", nil
}

func (g *orderGate) outcome(intent, outcome string) {
	if g.metrics != nil {
		g.metrics.IncrHandlerOutcome(intent, outcome)
	}
}
