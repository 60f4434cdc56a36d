package service_test

import (
	"context"
	"strings"
	"sync"

	chatdomain "github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
)

// --- Mocks ---

// fakeLLM answers JSON-mode calls from the classification script and every
// other call with reply.
type fakeLLM struct {
	mu             sync.Mutex
	classification []string
	reply          string
	err            error
	calls          []*chatdomain.CompletionRequest
}

func (m *fakeLLM) Complete(ctx context.Context, req *chatdomain.CompletionRequest) (*chatdomain.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	if !req.JSONMode {
		return &chatdomain.Completion{Text: m.reply, PromptTokens: 10, CompletionTokens: 5}, nil
	}
	if len(m.classification) == 0 {
		return &chatdomain.Completion{Text: "{}"}, nil
	}
	text := m.classification[0]
	if len(m.classification) > 1 {
		m.classification = m.classification[1:]
	}
	return &chatdomain.Completion{Text: text, PromptTokens: 20, CompletionTokens: 8}, nil
}

func (m *fakeLLM) callCount(jsonMode bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.JSONMode == jsonMode {
			n++
		}
	}
	return n
}

func (m *fakeLLM) lastCall() *chatdomain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// blockingLLM waits for the context to end.
type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ *chatdomain.CompletionRequest) (*chatdomain.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type addressUpdate struct {
	orderID string
	address string
	contact domain.ContactInfo
}

type fakeCommerce struct {
	mu sync.Mutex

	orders   map[string]*domain.Order
	products map[string]*domain.Product
	titles   []string
	code     string

	findOrderErr      error
	findProductErr    error
	updateErr         error
	createCustomerErr error
	discountErr       error

	findOrderCalls   int
	findProductCalls int
	updates          []addressUpdate
	customers        []string
	notes            []string
	titleCalls       int
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		orders:   make(map[string]*domain.Order),
		products: make(map[string]*domain.Product),
		code:     "SAVEAB12C",
	}
}

func (m *fakeCommerce) FindOrder(_ context.Context, orderNumber string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findOrderCalls++
	if m.findOrderErr != nil {
		return nil, m.findOrderErr
	}
	return m.orders[strings.TrimPrefix(orderNumber, "#")], nil
}

func (m *fakeCommerce) FindProduct(_ context.Context, name string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findProductCalls++
	if m.findProductErr != nil {
		return nil, m.findProductErr
	}
	return m.products[strings.ToLower(name)], nil
}

func (m *fakeCommerce) UpdateShippingAddress(_ context.Context, orderID, formatted string, contact domain.ContactInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, addressUpdate{orderID: orderID, address: formatted, contact: contact})
	return m.updateErr
}

func (m *fakeCommerce) CreateCustomer(_ context.Context, email, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers = append(m.customers, email)
	m.notes = append(m.notes, note)
	return m.createCustomerErr
}

func (m *fakeCommerce) CreateDiscountCode(context.Context) (string, error) {
	if m.discountErr != nil {
		return "", m.discountErr
	}
	return m.code, nil
}

func (m *fakeCommerce) ListActiveProductTitles(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleCalls++
	return m.titles, nil
}

type fakeGeocoder struct {
	result *domain.AddressValidation
	err    error
	calls  int
}

func (m *fakeGeocoder) ValidateAddress(_ context.Context, _ string) (*domain.AddressValidation, error) {
	m.calls++
	return m.result, m.err
}

type fakeTelephony struct {
	mu         sync.Mutex
	sid        string
	placeErr   error
	status     domain.CallStatus
	placed     int
	lastPrompt string
	lastNumber string
}

func (m *fakeTelephony) PlaceCall(_ context.Context, toNumber, prompt, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed++
	m.lastPrompt = prompt
	m.lastNumber = toNumber
	if m.placeErr != nil {
		return "", m.placeErr
	}
	return m.sid, nil
}

func (m *fakeTelephony) GetCallStatus(context.Context, string) (domain.CallStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []*domain.Email
}

func (m *fakeMailer) Send(_ context.Context, email *domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return m.err
}

type fakeRenderer struct {
	out      []byte
	err      error
	rendered *domain.Invoice
}

func (m *fakeRenderer) Render(inv *domain.Invoice) ([]byte, error) {
	m.rendered = inv
	return m.out, m.err
}

// --- Fixtures ---

func unshippedOrder() *domain.Order {
	return &domain.Order{
		ID:             1001,
		AdminGraphQLID: "gid://shopify/Order/1001",
		Name:           "#1234",
		ContactEmail:   "a@b.com",
		TotalPrice:     "121.00",
		ShippingAddress: domain.Address{
			FirstName: "Ana",
			LastName:  "Pérez",
			Phone:     "+34600000000",
		},
		BillingAddress: domain.Address{
			Name:     "Ana Pérez",
			Address1: "Calle Mayor 1",
			City:     "Madrid",
			Province: "Madrid",
			Zip:      "28013",
		},
		Customer: domain.Customer{FirstName: "Ana", LastName: "Pérez"},
		LineItems: []domain.LineItem{
			{Title: "Without Shame Crewneck", Quantity: 1, Price: "121.00"},
		},
	}
}

func shippedOrder() *domain.Order {
	o := unshippedOrder()
	o.Fulfillments = []domain.Fulfillment{{ID: 1, TrackingNumber: "0082800082909720118884"}}
	return o
}

func classificationJSON(intent string, params map[string]any) string {
	var b strings.Builder
	b.WriteString(`{"intent":"` + intent + `","parameters":{`)
	first := true
	for k, v := range params {
		if !first {
			b.WriteString(",")
		}
		first = false
		b.WriteString(`"` + k + `":`)
		switch t := v.(type) {
		case bool:
			if t {
				b.WriteString("true")
			} else {
				b.WriteString("false")
			}
		default:
			b.WriteString(`"` + v.(string) + `"`)
		}
	}
	b.WriteString(`},"language":"English"}`)
	return b.String()
}
