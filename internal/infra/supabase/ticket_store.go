package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Tickets & messages: via PostgREST (implements port.TicketStore)
// ============================================================

type ticketRow struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Admin       bool      `json:"admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r ticketRow) toDomain() *domain.Ticket {
	return &domain.Ticket{
		ID:          r.ID,
		OrderNumber: r.OrderNumber,
		Email:       r.Email,
		Name:        r.Name,
		Status:      r.Status,
		Admin:       r.Admin,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type messageRow struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		TicketID:  r.TicketID,
		Sender:    r.Sender,
		Text:      r.Text,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// TicketStore persists tickets and messages in Supabase.
type TicketStore struct {
	*Client
	now func() time.Time
}

// NewTicketStore creates a ticket store over client.
func NewTicketStore(client *Client) *TicketStore {
	return &TicketStore{
		Client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

func (s *TicketStore) CreateTicket(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTicket")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticket.ID))

	if ticket.ID == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "ticket id is required"}
	}
	row := ticketRow{
		ID:          ticket.ID,
		OrderNumber: ticket.OrderNumber,
		Email:       ticket.Email,
		Name:        ticket.Name,
		Status:      ticket.Status,
		Admin:       ticket.Admin,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
	if row.Status == "" {
		row.Status = domain.TicketStatusOpen
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}

	var rows []ticketRow
	if err := s.doPost(ctx, "tickets", row, &rows); err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return nil, &domain.ErrConflict{Message: "ticket already exists: " + ticket.ID}
		}
		return nil, err
	}
	if len(rows) == 0 {
		return row.toDomain(), nil
	}
	return rows[0].toDomain(), nil
}

func (s *TicketStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTicket")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	var rows []ticketRow
	if err := s.doGet(ctx, "tickets?"+eq("id", id)+"&limit=1", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: id}
	}
	return rows[0].toDomain(), nil
}

func (s *TicketStore) UpdateTicketOrderInfo(ctx context.Context, id string, info domain.OrderInfo) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTicketOrderInfo")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id))

	patch := map[string]any{
		"order_number": info.OrderNumber,
		"email":        info.Email,
	}
	if info.CustomerName != "" {
		patch["name"] = info.CustomerName
	}
	return s.patchTicket(ctx, id, patch)
}

func (s *TicketStore) SetAdmin(ctx context.Context, id string, admin bool) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SetAdmin")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", id), attribute.Bool("ticket.admin", admin))

	return s.patchTicket(ctx, id, map[string]any{"admin": admin})
}

func (s *TicketStore) patchTicket(ctx context.Context, id string, patch map[string]any) (*domain.Ticket, error) {
	patch["updated_at"] = s.now()

	var rows []ticketRow
	if err := s.doPatch(ctx, "tickets?"+eq("id", id), patch, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: id}
	}
	return rows[0].toDomain(), nil
}

func (s *TicketStore) AddMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AddMessage")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", msg.TicketID))

	// PostgREST answers an FK violation with 409; look the ticket up first so
	// a missing ticket is reported as not found.
	if _, err := s.GetTicket(ctx, msg.TicketID); err != nil {
		return nil, err
	}

	row := messageRow{
		ID:        msg.ID,
		TicketID:  msg.TicketID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}

	var rows []messageRow
	if err := s.doPost(ctx, "messages", row, &rows); err != nil {
		s.logger.Warn("supabase: message insert failed",
			zap.String("ticket_id", msg.TicketID),
			zap.Error(err),
		)
		return nil, err
	}
	out := row.toDomain()
	if len(rows) > 0 {
		out = rows[0].toDomain()
	}
	return &out, nil
}

// ListMessages returns the ticket messages oldest first.
func (s *TicketStore) ListMessages(ctx context.Context, ticketID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticketID))

	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}

	var rows []messageRow
	path := fmt.Sprintf("messages?%s&order=created_at.asc", eq("ticket_id", ticketID))
	if err := s.doGet(ctx, path, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Ping checks PostgREST answers for the tickets table.
func (s *TicketStore) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	var rows []struct {
		ID string `json:"id"`
	}
	return s.doGet(ctx, "tickets?select=id&limit=1", &rows)
}
