// Package memory provides an in-process ticket store.
// Used for local development, the CLI and tests; state is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/google/uuid"
)

// TicketStore keeps tickets and messages in maps guarded by one RWMutex.
type TicketStore struct {
	mu       sync.RWMutex
	tickets  map[string]domain.Ticket
	messages map[string][]domain.Message
	now      func() time.Time
}

// NewTicketStore creates an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets:  make(map[string]domain.Ticket),
		messages: make(map[string][]domain.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *TicketStore) CreateTicket(_ context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if ticket.ID == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "ticket id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticket.ID]; ok {
		return nil, &domain.ErrConflict{Message: "ticket already exists: " + ticket.ID}
	}
	t := *ticket
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = domain.TicketStatusOpen
	}
	s.tickets[t.ID] = t
	return &t, nil
}

func (s *TicketStore) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: id}
	}
	return &t, nil
}

func (s *TicketStore) UpdateTicketOrderInfo(_ context.Context, id string, info domain.OrderInfo) (*domain.Ticket, error) {
	return s.update(id, func(t *domain.Ticket) {
		t.OrderNumber = info.OrderNumber
		t.Email = info.Email
		if info.CustomerName != "" {
			t.Name = info.CustomerName
		}
	})
}

func (s *TicketStore) SetAdmin(_ context.Context, id string, admin bool) (*domain.Ticket, error) {
	return s.update(id, func(t *domain.Ticket) { t.Admin = admin })
}

func (s *TicketStore) update(id string, mutate func(*domain.Ticket)) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: id}
	}
	mutate(&t)
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return &t, nil
}

func (s *TicketStore) AddMessage(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[msg.TicketID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: msg.TicketID}
	}
	m := *msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.messages[m.TicketID] = append(s.messages[m.TicketID], m)
	return &m, nil
}

// ListMessages returns the ticket messages oldest first.
func (s *TicketStore) ListMessages(_ context.Context, ticketID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: ticketID}
	}
	out := make([]domain.Message, len(s.messages[ticketID]))
	copy(out, s.messages[ticketID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *TicketStore) Ping(context.Context) error { return nil }
