package service

import (
	"context"
	"strings"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ticketTracer = otel.Tracer("service/tickets")

const maxAgentReplyLength = 4000

// TicketService backs the operator endpoints: reading a conversation,
// taking it over from the assistant and answering as a human agent.
type TicketService struct {
	store  port.TicketStore
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// NewTicketService creates the service.
func NewTicketService(store port.TicketStore, logger *zap.Logger) *TicketService {
	return &TicketService{
		store:  store,
		logger: logger,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, span := ticketTracer.Start(ctx, "TicketService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	if id == "" {
		return nil, &domain.ErrValidation{Field: "ticketId", Message: "ticket id is required"}
	}
	return s.store.GetTicket(ctx, id)
}

// Messages returns the conversation in chronological order.
func (s *TicketService) Messages(ctx context.Context, id string) ([]domain.Message, error) {
	ctx, span := ticketTracer.Start(ctx, "TicketService.Messages")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	if id == "" {
		return nil, &domain.ErrValidation{Field: "ticketId", Message: "ticket id is required"}
	}
	if _, err := s.store.GetTicket(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Takeover hands the conversation to a human; the assistant stops replying.
func (s *TicketService) Takeover(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.setAdmin(ctx, id, true)
}

// Release gives the conversation back to the assistant.
func (s *TicketService) Release(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.setAdmin(ctx, id, false)
}

func (s *TicketService) setAdmin(ctx context.Context, id string, admin bool) (*domain.Ticket, error) {
	ctx, span := ticketTracer.Start(ctx, "TicketService.SetAdmin")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id), attribute.Bool("ticket.admin", admin))

	t, err := s.store.SetAdmin(ctx, id, admin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket admin flag changed", zap.String("ticket_id", id), zap.Bool("admin", admin))
	return t, nil
}

// Reply stores a human agent message. The ticket must be taken over first.
func (s *TicketService) Reply(ctx context.Context, id string, req *domain.AgentReplyRequest) (*domain.Message, error) {
	ctx, span := ticketTracer.Start(ctx, "TicketService.Reply")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "text is required"}
	}
	if len(text) > maxAgentReplyLength {
		return nil, &domain.ErrValidation{Field: "text", Message: "text is too long"}
	}

	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Admin {
		return nil, &domain.ErrConflict{Message: "ticket is not taken over by an agent"}
	}

	return s.store.AddMessage(ctx, &domain.Message{
		ID:        s.newID(),
		TicketID:  id,
		Sender:    domain.SenderAdmin,
		Text:      text,
		CreatedAt: s.now(),
	})
}
