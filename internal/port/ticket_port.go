package port

import (
	"context"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
)

// TicketStore persists support tickets and their messages.
// Implemented by the memory, Supabase and Postgres adapters.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateTicketOrderInfo(ctx context.Context, id string, info domain.OrderInfo) (*domain.Ticket, error)
	SetAdmin(ctx context.Context, id string, admin bool) (*domain.Ticket, error)

	AddMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	ListMessages(ctx context.Context, ticketID string) ([]domain.Message, error)

	Ping(ctx context.Context) error
}

// RateLimiter is an atomic check-and-increment over a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (domain.RateDecision, error)
}
