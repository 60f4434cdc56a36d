// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
)

// CommerceClient is the store backend (orders, products, customers, discounts).
//
// FindOrder and FindProduct return (nil, nil) when nothing matches; an error
// always means the backend could not be queried.
type CommerceClient interface {
	FindOrder(ctx context.Context, orderNumber string) (*domain.Order, error)
	FindProduct(ctx context.Context, name string) (*domain.Product, error)
	UpdateShippingAddress(ctx context.Context, orderID, formattedAddress string, contact domain.ContactInfo) error
	// CreateCustomer returns *domain.ErrDuplicate when the e-mail is taken.
	CreateCustomer(ctx context.Context, email, note string) error
	CreateDiscountCode(ctx context.Context) (string, error)
	ListActiveProductTitles(ctx context.Context) ([]string, error)
}

// Geocoder normalizes a free-text address into formatted candidates.
type Geocoder interface {
	ValidateAddress(ctx context.Context, address string) (*domain.AddressValidation, error)
}

// Telephony places outbound voice calls through the call bridge.
type Telephony interface {
	PlaceCall(ctx context.Context, toNumber, prompt, openingLine string) (string, error)
	GetCallStatus(ctx context.Context, callSID string) (domain.CallStatus, error)
}

// Mailer sends templated transactional e-mail.
type Mailer interface {
	Send(ctx context.Context, email *domain.Email) error
}

// InvoiceRenderer turns an invoice record into a binary document.
type InvoiceRenderer interface {
	Render(inv *domain.Invoice) ([]byte, error)
}
