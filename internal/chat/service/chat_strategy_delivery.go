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

// ============================================================
// ChangeDeliveryStrategy: change_delivery
// ============================================================
//
// States, re-entered from scratch on every turn:
//
//	NEED_ORDER_INFO ─► ORDER_VALIDATED ─► AWAITING_NEW_ADDRESS
//	    ─► AWAITING_CONFIRMATION ─► CONFIRMED ─► APPLIED
//
// Confirmation is decided by the Classifier (turn adjacency). Shipped orders
// additionally require an outbound call to the carrier before the mutation.

// ChangeDeliveryStrategy moves an order to a new shipping address.
type ChangeDeliveryStrategy struct {
	gate          *orderGate
	commerce      port.CommerceClient
	geocoder      port.Geocoder
	telephony     port.Telephony
	poller        *CallPoller
	carrierNumber string
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewChangeDeliveryStrategy creates the change_delivery strategy.
func NewChangeDeliveryStrategy(
	commerce port.CommerceClient,
	geocoder port.Geocoder,
	telephony port.Telephony,
	poller *CallPoller,
	carrierNumber string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ChangeDeliveryStrategy {
	return &ChangeDeliveryStrategy{
		gate:          newOrderGate(commerce, metrics, logger),
		commerce:      commerce,
		geocoder:      geocoder,
		telephony:     telephony,
		poller:        poller,
		carrierNumber: carrierNumber,
		metrics:       metrics,
		logger:        logger,
	}
}

func (s *ChangeDeliveryStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentChangeDelivery
}

func (s *ChangeDeliveryStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "ChangeDeliveryStrategy.Handle")
	defer span.End()

	order, reply, err := s.gate.resolve(ctx, chatCtx)
	if order == nil {
		return reply, err
	}
	return s.HandleResolved(ctx, chatCtx, order)
}

// HandleResolved runs the address flow for an already validated order.
// UpdateOrderStrategy enters here for update_type=shipping_address.
func (s *ChangeDeliveryStrategy) HandleResolved(ctx context.Context, chatCtx *domain.ChatContext, order *maindomain.Order) (string, error) {
	params := chatCtx.Params()
	lang := chatCtx.Lang()

	// AWAITING_NEW_ADDRESS
	if params.NewDeliveryInfo == "" {
		s.outcome("awaiting_address")
		return replyAskAddress.in(lang), nil
	}

	validation, err := s.geocoder.ValidateAddress(ctx, params.NewDeliveryInfo)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "address_validation"}
		}
		s.logger.Error("address validation failed",
			zap.String("order_number", params.OrderNumber),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("geocoder")
		s.outcome("adapter_error")
		return replyGeneric.in(lang), nil
	}
	if validation == nil || validation.FormattedAddress == "" {
		s.outcome("invalid_address")
		return replyInvalidAddress.in(lang), nil
	}
	if validation.MultipleCandidates() {
		s.outcome("awaiting_choice")
		return addressCandidatesPrompt(lang, validation.Candidates), nil
	}

	// AWAITING_CONFIRMATION
	if !params.DeliveryAddressConfirmed {
		s.outcome("awaiting_confirmation")
		return addressConfirmPrompt(lang, validation.FormattedAddress), nil
	}

	// CONFIRMED
	formatted := validation.FormattedAddress
	if order.Shipped() {
		if reply, err := s.callCarrier(ctx, order, formatted, lang); reply != "" || err != nil {
			return reply, err
		}
	}

	// APPLIED
	contact := maindomain.ContactInfo{
		FirstName: order.ShippingAddress.FirstName,
		LastName:  order.ShippingAddress.LastName,
		Phone:     order.ShippingAddress.Phone,
	}
	if err := s.commerce.UpdateShippingAddress(ctx, order.GraphQLID(), formatted, contact); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "address_update"}
		}
		s.logger.Error("shipping address update failed",
			zap.String("order_number", params.OrderNumber),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("commerce")
		s.outcome("adapter_error")
		return replyGeneric.in(lang), nil
	}

	s.logger.Info("shipping address updated",
		zap.String("order_number", params.OrderNumber),
		zap.Bool("shipped", order.Shipped()),
	)
	s.outcome("applied")
	return replyAddressUpdated.format(lang, formatted), nil
}

// callCarrier places the carrier call and waits for it. A non-empty reply
// or an error ends the turn without touching the order.
func (s *ChangeDeliveryStrategy) callCarrier(ctx context.Context, order *maindomain.Order, formatted string, lang domain.Language) (string, error) {
	prompt := carrierCallPrompt(order.TrackingNumber(), formatted)
	sid, err := s.telephony.PlaceCall(ctx, s.carrierNumber, prompt, callOpeningLine.in(lang))
	if err != nil {
		s.logger.Error("outbound call failed",
			zap.String("order", order.Name),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("telephony")
		s.outcome("call_failed")
		return replyCallFailed.in(lang), nil
	}

	s.logger.Info("outbound call placed", zap.String("call_sid", sid), zap.String("order", order.Name))
	if _, err := s.poller.Wait(ctx, sid); err != nil {
		return "", &maindomain.ErrTimeout{Operation: "call_status"}
	}
	return "", nil
}

func (s *ChangeDeliveryStrategy) outcome(outcome string) {
	s.metrics.IncrHandlerOutcome(string(domain.IntentChangeDelivery), outcome)
}

// ============================================================
// UpdateOrderStrategy: update_order
// ============================================================

// Values of the update_type slot.
const (
	UpdateTypeShippingAddress = "shipping_address"
	UpdateTypeProduct         = "product"
)

// UpdateOrderStrategy asks what to change and delegates address changes.
type UpdateOrderStrategy struct {
	gate       *orderGate
	delivery   *ChangeDeliveryStrategy
	responder  *Responder
	returnsURL string
	metrics    *observability.Metrics
}

// NewUpdateOrderStrategy creates the update_order strategy.
func NewUpdateOrderStrategy(
	commerce port.CommerceClient,
	delivery *ChangeDeliveryStrategy,
	responder *Responder,
	returnsURL string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *UpdateOrderStrategy {
	return &UpdateOrderStrategy{
		gate:       newOrderGate(commerce, metrics, logger),
		delivery:   delivery,
		responder:  responder,
		returnsURL: returnsURL,
		metrics:    metrics,
	}
}

func (s *UpdateOrderStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentUpdateOrder
}

func (s *UpdateOrderStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "UpdateOrderStrategy.Handle")
	defer span.End()

	order, reply, err := s.gate.resolve(ctx, chatCtx)
	if order == nil {
		return reply, err
	}

	lang := chatCtx.Lang()
	switch chatCtx.Params().UpdateType {
	case "":
		req := baseReply(chatCtx)
		req.Order = order
		req.Instruction = "Ask the customer, in one short sentence, what they want to update in the order. Suggested wording: " +
			instructionAskUpdateType.in(lang)
		s.metrics.IncrHandlerOutcome(string(domain.IntentUpdateOrder), "ask_update_type")
		return s.responder.GenerateFinalAnswer(ctx, req)
	case UpdateTypeShippingAddress:
		return s.delivery.HandleResolved(ctx, chatCtx, order)
	case UpdateTypeProduct:
		s.metrics.IncrHandlerOutcome(string(domain.IntentUpdateOrder), "product_redirect")
		return replyProductChange.format(lang, s.returnsURL), nil
	default:
		req := baseReply(chatCtx)
		req.Order = order
		s.metrics.IncrHandlerOutcome(string(domain.IntentUpdateOrder), "replied")
		return s.responder.GenerateFinalAnswer(ctx, req)
	}
}
