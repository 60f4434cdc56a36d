// Package service: the support chat pipeline.
//
// ============================================================
// ARCHITECTURE: Classifier + Strategy routing
// ============================================================
//
// ChatService is the orchestrator behind POST /v1/chat. Per message:
//  1. Validate the request and resolve the ticket (create, or load history)
//  2. Admin takeover? store the user line and stop
//  3. Classifier: LLM (temperature 0, JSON) + deterministic history rules
//  4. IntentRouter: first ChatStrategy accepting the intent produces the reply
//  5. Persist both lines best-effort, fill ticket order info once known
//  6. Return {response, updatedTicket}
//
// Strategies:
//   - OrderTracking / OtherOrder / DeliveryIssue
//   - ChangeDelivery (address state machine, carrier call) / UpdateOrder
//   - ProductSizing / Restock / PromoCode
//   - InvoiceRequest / Returns / ConversationEnd
//   - anything else: reply generation with no auxiliary data
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxMessageLength bounds a single inbound message.
const maxMessageLength = 4000

// Timeouts bounds each stage of one chat turn.
type Timeouts struct {
	Classify time.Duration
	Request  time.Duration
}

// ============================================================
// ChatService: the conversation session
// ============================================================

// ChatService runs one chat turn end to end.
type ChatService struct {
	classifier *Classifier
	router     *IntentRouter
	tickets    port.TicketStore
	timeouts   Timeouts
	metrics    *observability.Metrics
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewChatService wires the session.
func NewChatService(
	classifier *Classifier,
	router *IntentRouter,
	tickets port.TicketStore,
	timeouts Timeouts,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		classifier: classifier,
		router:     router,
		tickets:    tickets,
		timeouts:   timeouts,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// ProcessMessage is the entry point of POST /v1/chat.
func (s *ChatService) ProcessMessage(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.ProcessMessage")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("chat", time.Since(start)) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if s.timeouts.Request > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeouts.Request)
		defer cancel()
	}

	ticket, history, created := s.resolveTicket(ctx, req)
	span.SetAttributes(attribute.String("chat.ticket_id", ticket.ID))

	if ticket.Admin {
		s.appendMessage(ctx, ticket.ID, maindomain.SenderUser, req.Message)
		s.metrics.IncrRequest("admin_takeover")
		s.logger.Info("admin takeover, skipping assistant", zap.String("ticket_id", ticket.ID))
		return &domain.ChatResponse{AdminTakeover: true}, nil
	}

	classification, err := s.classify(ctx, req.Message, history)
	if err != nil {
		s.metrics.IncrRequest("timeout")
		return nil, err
	}

	s.logger.Info("chat message classified",
		zap.String("ticket_id", ticket.ID),
		zap.String("intent", string(classification.Intent)),
		zap.String("language", string(classification.Language)),
		zap.Int("history_length", len(history)),
	)

	chatCtx := &domain.ChatContext{
		TicketID:       ticket.ID,
		Message:        req.Message,
		History:        history,
		Classification: classification,
	}

	reply, err := s.router.Route(ctx, chatCtx)
	if err != nil {
		return nil, s.routeError(ctx, err)
	}

	s.appendMessage(ctx, ticket.ID, maindomain.SenderUser, req.Message)
	s.appendMessage(ctx, ticket.ID, maindomain.SenderAssistant, reply)

	resp := &domain.ChatResponse{Response: reply}
	if updated := s.applyOrderInfo(ctx, ticket, chatCtx); updated != nil {
		resp.UpdatedTicket = updated
	} else if created {
		resp.UpdatedTicket = ticket
	}

	s.metrics.IncrRequest("success")
	return resp, nil
}

// classify bounds the classifier by the classify timeout. The classifier
// itself degrades to the default; only a deadline is surfaced here.
func (s *ChatService) classify(ctx context.Context, message string, history []domain.ConversationTurn) (domain.ClassifiedMessage, error) {
	cctx := ctx
	if s.timeouts.Classify > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeouts.Classify)
		defer cancel()
	}
	cm := s.classifier.Classify(cctx, message, history)
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return domain.ClassifiedMessage{}, &maindomain.ErrTimeout{Operation: "classification"}
	}
	return cm, nil
}

func (s *ChatService) routeError(ctx context.Context, err error) error {
	var timeout *maindomain.ErrTimeout
	switch {
	case errors.As(err, &timeout):
		s.metrics.IncrRequest("timeout")
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.metrics.IncrRequest("timeout")
		return &maindomain.ErrTimeout{Operation: "request"}
	default:
		s.metrics.IncrRequest("error")
		s.logger.Error("chat routing failed", zap.Error(err))
		return err
	}
}

// ============================================================
// Tickets
// ============================================================

// resolveTicket returns the ticket for this turn, the dialogue history and
// whether the ticket was created now.
func (s *ChatService) resolveTicket(ctx context.Context, req *domain.ChatRequest) (*maindomain.Ticket, []domain.ConversationTurn, bool) {
	if req.CurrentTicket == nil || req.CurrentTicket.ID == "" {
		return s.createTicket(ctx), req.Context, true
	}

	if len(req.Context) == 0 {
		ticket, history, err := s.loadTicketWithHistory(ctx, req.CurrentTicket.ID)
		if err == nil {
			return ticket, history, false
		}
		s.logger.Warn("ticket history unavailable, continuing without it",
			zap.String("ticket_id", req.CurrentTicket.ID),
			zap.Error(err),
		)
		return req.CurrentTicket, nil, false
	}

	// The store is the source of truth for the admin flag.
	ticket, err := s.tickets.GetTicket(ctx, req.CurrentTicket.ID)
	if err != nil {
		s.logger.Warn("ticket lookup failed, using caller copy",
			zap.String("ticket_id", req.CurrentTicket.ID),
			zap.Error(err),
		)
		return req.CurrentTicket, req.Context, false
	}
	return ticket, req.Context, false
}

// loadTicketWithHistory reads the ticket and its messages concurrently.
func (s *ChatService) loadTicketWithHistory(ctx context.Context, ticketID string) (*maindomain.Ticket, []domain.ConversationTurn, error) {
	var (
		ticket   *maindomain.Ticket
		messages []maindomain.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticket, err = s.tickets.GetTicket(gctx, ticketID)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = s.tickets.ListMessages(gctx, ticketID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ticket, historyFromMessages(messages), nil
}

// historyFromMessages maps stored lines to dialogue turns. Admin replies
// read as assistant turns.
func historyFromMessages(messages []maindomain.Message) []domain.ConversationTurn {
	history := make([]domain.ConversationTurn, 0, len(messages))
	for _, m := range messages {
		role := domain.RoleAssistant
		if m.Sender == maindomain.SenderUser {
			role = domain.RoleUser
		}
		history = append(history, domain.ConversationTurn{Role: role, Content: m.Text})
	}
	return history
}

func (s *ChatService) createTicket(ctx context.Context) *maindomain.Ticket {
	now := s.now()
	ticket := &maindomain.Ticket{
		ID:        s.newID(),
		Status:    maindomain.TicketStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.tickets.CreateTicket(ctx, ticket)
	if err != nil {
		s.logger.Error("ticket creation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return ticket
	}
	return stored
}

// applyOrderInfo fills order number, e-mail and name the first time an
// order is validated. Returns nil when the ticket does not change.
func (s *ChatService) applyOrderInfo(ctx context.Context, ticket *maindomain.Ticket, chatCtx *domain.ChatContext) *maindomain.Ticket {
	order := chatCtx.ResolvedOrder
	if order == nil || ticket.OrderNumber != "" {
		return nil
	}
	params := chatCtx.Params()
	number := order.Name
	if number == "" {
		number = "#" + normalizeOrderNumber(params.OrderNumber)
	}
	info := maindomain.OrderInfo{
		OrderNumber:  number,
		Email:        params.Email,
		CustomerName: order.CustomerName(),
	}

	updated, err := s.tickets.UpdateTicketOrderInfo(ctx, ticket.ID, info)
	if err != nil {
		s.logger.Warn("ticket order info update failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err),
		)
		proposed := *ticket
		proposed.OrderNumber = info.OrderNumber
		proposed.Email = info.Email
		proposed.Name = info.CustomerName
		proposed.UpdatedAt = s.now()
		return &proposed
	}
	return updated
}

// appendMessage stores one line; failures never affect the reply.
func (s *ChatService) appendMessage(ctx context.Context, ticketID, sender, text string) {
	_, err := s.tickets.AddMessage(ctx, &maindomain.Message{
		ID:        s.newID(),
		TicketID:  ticketID,
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("message not stored",
			zap.String("ticket_id", ticketID),
			zap.String("sender", sender),
			zap.Error(err),
		)
	}
}

// ============================================================
// Validation
// ============================================================

func validateRequest(req *domain.ChatRequest) error {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return &maindomain.ErrValidation{Field: "message", Message: "message is required"}
	}
	if len(req.Message) > maxMessageLength {
		return &maindomain.ErrValidation{Field: "message", Message: "message is too long"}
	}
	for _, turn := range req.Context {
		switch turn.Role {
		case domain.RoleUser, domain.RoleAssistant:
		default:
			return &maindomain.ErrValidation{Field: "context", Message: "each context item needs role user or assistant"}
		}
	}
	return nil
}
