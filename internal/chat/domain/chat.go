// Package domain defines the types of the support chat pipeline:
// the POST /v1/chat contract, the classification produced for every
// inbound message and the context handed to each intent strategy.
//
// Flow:
//  1. Caller sends {message, context, currentTicket}
//  2. Classifier turns message + history into a ClassifiedMessage
//  3. IntentRouter picks the strategy for the intent
//  4. Strategy calls the adapters it needs and produces the reply
//  5. Session returns {response, updatedTicket}
package domain

import (
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
)

// ============================================================
// Intents & language
// ============================================================

// Intent is the closed set of things a customer can ask for.
type Intent string

const (
	IntentOrderTracking   Intent = "order_tracking"
	IntentReturnsExchange Intent = "returns_exchange"
	IntentDeliveryIssue   Intent = "delivery_issue"
	IntentChangeDelivery  Intent = "change_delivery"
	IntentProductSizing   Intent = "product_sizing"
	IntentUpdateOrder     Intent = "update_order"
	IntentOtherOrder      Intent = "other-order"
	IntentRestock         Intent = "restock"
	IntentConversationEnd Intent = "conversation_end"
	IntentPromoCode       Intent = "promo_code"
	IntentInvoiceRequest  Intent = "invoice_request"
	IntentOtherGeneral    Intent = "other-general"
)

// Intents lists every intent in the order the classifier prompt enumerates them.
var Intents = []Intent{
	IntentOrderTracking,
	IntentReturnsExchange,
	IntentDeliveryIssue,
	IntentChangeDelivery,
	IntentProductSizing,
	IntentUpdateOrder,
	IntentOtherOrder,
	IntentRestock,
	IntentConversationEnd,
	IntentPromoCode,
	IntentInvoiceRequest,
	IntentOtherGeneral,
}

// ParseIntent maps a raw label to a known intent.
func ParseIntent(s string) (Intent, bool) {
	for _, in := range Intents {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

// Language is the detected language of the customer message.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageSpanish Language = "Spanish"
)

// ============================================================
// Conversation
// ============================================================

// Conversation roles accepted in the request context.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationTurn is one line of dialogue history.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ============================================================
// Classification
// ============================================================

// ClassifiedMessage is the structured reading of one inbound message.
type ClassifiedMessage struct {
	Intent     Intent     `json:"intent"`
	Parameters Parameters `json:"parameters"`
	Language   Language   `json:"language"`
}

// DefaultClassification is returned whenever classification cannot succeed.
func DefaultClassification() ClassifiedMessage {
	return ClassifiedMessage{
		Intent:   IntentOtherGeneral,
		Language: LanguageEnglish,
	}
}

// ============================================================
// POST /v1/chat contract
// ============================================================

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message       string             `json:"message"`
	Context       []ConversationTurn `json:"context"`
	CurrentTicket *maindomain.Ticket `json:"currentTicket,omitempty"`
}

// ChatResponse is returned on 200.
type ChatResponse struct {
	Response      string             `json:"response"`
	UpdatedTicket *maindomain.Ticket `json:"updatedTicket,omitempty"`
	AdminTakeover bool               `json:"adminTakeover,omitempty"`
}

// ============================================================
// Strategy context
// ============================================================

// ChatContext carries everything a strategy needs for one message.
// Built by the Session before routing.
type ChatContext struct {
	TicketID       string
	Message        string
	History        []ConversationTurn
	Classification ClassifiedMessage

	// ResolvedOrder is set by the order gate once order number and e-mail
	// were validated during this turn. The Session uses it to fill the ticket.
	ResolvedOrder *maindomain.Order
}

// Params is a shortcut for the classification parameters.
func (c *ChatContext) Params() *Parameters {
	return &c.Classification.Parameters
}

// Lang is a shortcut for the detected language.
func (c *ChatContext) Lang() Language {
	return c.Classification.Language
}

// ============================================================
// Language model
// ============================================================

// LLMMessage is one message sent to the language model.
type LLMMessage struct {
	Role    string
	Content string
}

// CompletionRequest is a provider-neutral completion call.
type CompletionRequest struct {
	Messages    []LLMMessage
	Temperature float32
	// JSONMode asks the provider for a single JSON object.
	JSONMode bool
}

// Completion is the text returned by the model plus token usage.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
