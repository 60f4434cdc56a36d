// Package storetest holds the behavior every port.TicketStore implementation
// must show. Adapter test packages call Run with a constructor for a fresh,
// empty store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the ticket store suite against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) port.TicketStore) {
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("MessagesOldestFirst", func(t *testing.T) { testMessagesOrder(t, newStore(t)) })
	t.Run("EmptyConversation", func(t *testing.T) { testEmptyConversation(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func testLifecycle(t *testing.T, s port.TicketStore) {
	ctx := context.Background()

	created, err := s.CreateTicket(ctx, &domain.Ticket{ID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", created.ID)
	assert.Equal(t, domain.TicketStatusOpen, created.Status)
	assert.False(t, created.Admin)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = s.CreateTicket(ctx, &domain.Ticket{ID: "t-1"})
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)

	_, err = s.CreateTicket(ctx, &domain.Ticket{})
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)

	updated, err := s.UpdateTicketOrderInfo(ctx, "t-1", domain.OrderInfo{
		OrderNumber:  "#1234",
		Email:        "ana@example.com",
		CustomerName: "Ana Pérez",
	})
	require.NoError(t, err)
	assert.Equal(t, "#1234", updated.OrderNumber)
	assert.Equal(t, "ana@example.com", updated.Email)
	assert.Equal(t, "Ana Pérez", updated.Name)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	admin, err := s.SetAdmin(ctx, "t-1", true)
	require.NoError(t, err)
	assert.True(t, admin.Admin)
	assert.Equal(t, "#1234", admin.OrderNumber)

	got, err := s.GetTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, got.Admin)
	assert.Equal(t, "Ana Pérez", got.Name)

	released, err := s.SetAdmin(ctx, "t-1", false)
	require.NoError(t, err)
	assert.False(t, released.Admin)
}

func testNotFound(t *testing.T, s port.TicketStore) {
	ctx := context.Background()
	var nf *domain.ErrNotFound

	_, err := s.GetTicket(ctx, "missing")
	assert.ErrorAs(t, err, &nf)

	_, err = s.UpdateTicketOrderInfo(ctx, "missing", domain.OrderInfo{OrderNumber: "#1"})
	assert.ErrorAs(t, err, &nf)

	_, err = s.SetAdmin(ctx, "missing", true)
	assert.ErrorAs(t, err, &nf)

	_, err = s.AddMessage(ctx, &domain.Message{TicketID: "missing", Sender: domain.SenderUser, Text: "hi"})
	assert.ErrorAs(t, err, &nf)

	_, err = s.ListMessages(ctx, "missing")
	assert.ErrorAs(t, err, &nf)
}

func testMessagesOrder(t *testing.T, s port.TicketStore) {
	ctx := context.Background()
	_, err := s.CreateTicket(ctx, &domain.Ticket{ID: "t-2"})
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	inserts := []domain.Message{
		{ID: "m-2", TicketID: "t-2", Sender: domain.SenderAssistant, Text: "¿Número de pedido?", CreatedAt: base.Add(time.Second)},
		{ID: "m-1", TicketID: "t-2", Sender: domain.SenderUser, Text: "¿Dónde está mi pedido?", CreatedAt: base},
		{ID: "m-3", TicketID: "t-2", Sender: domain.SenderAdmin, Text: "Hola, soy Marta", CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range inserts {
		stored, err := s.AddMessage(ctx, &inserts[i])
		require.NoError(t, err)
		assert.Equal(t, inserts[i].ID, stored.ID)
	}

	generated, err := s.AddMessage(ctx, &domain.Message{TicketID: "t-2", Sender: domain.SenderUser, Text: "gracias", CreatedAt: base.Add(3 * time.Second)})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)

	msgs, err := s.ListMessages(ctx, "t-2")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "m-1", msgs[0].ID)
	assert.Equal(t, "m-2", msgs[1].ID)
	assert.Equal(t, "m-3", msgs[2].ID)
	assert.Equal(t, domain.SenderAdmin, msgs[2].Sender)
	assert.Equal(t, "gracias", msgs[3].Text)
	assert.True(t, msgs[0].CreatedAt.Equal(base))
}

func testEmptyConversation(t *testing.T, s port.TicketStore) {
	ctx := context.Background()
	_, err := s.CreateTicket(ctx, &domain.Ticket{ID: "t-3"})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "t-3")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}
