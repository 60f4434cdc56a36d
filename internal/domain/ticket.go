package domain

import "time"

// ============================================================
// Tickets & messages
// ============================================================

// Ticket statuses.
const (
	TicketStatusOpen   = "open"
	TicketStatusClosed = "closed"
)

// Message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderAdmin     = "admin"
)

// Ticket is one support conversation. OrderNumber/Email are filled the first
// time an order is validated during the conversation. Admin=true means a
// human agent took the conversation over.
type Ticket struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Admin       bool      `json:"admin"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is a single persisted chat line attached to a ticket.
type Message struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// OrderInfo is the ticket delta written once an order is identified.
type OrderInfo struct {
	OrderNumber  string
	Email        string
	CustomerName string
}
