package domain

import (
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Commerce entities (Shopify Admin REST shapes)
// ============================================================

// Order is a store order as returned by the commerce backend.
type Order struct {
	ID                int64         `json:"id"`
	AdminGraphQLID    string        `json:"admin_graphql_api_id"`
	Name              string        `json:"name"`
	ContactEmail      string        `json:"contact_email"`
	Email             string        `json:"email"`
	TotalPrice        string        `json:"total_price"`
	SubtotalPrice     string        `json:"subtotal_price"`
	Currency          string        `json:"currency"`
	FinancialStatus   string        `json:"financial_status"`
	FulfillmentStatus string        `json:"fulfillment_status"`
	CreatedAt         time.Time     `json:"created_at"`
	ShippingAddress   Address       `json:"shipping_address"`
	BillingAddress    Address       `json:"billing_address"`
	Customer          Customer      `json:"customer"`
	LineItems         []LineItem    `json:"line_items"`
	Fulfillments      []Fulfillment `json:"fulfillments"`
}

// Shipped reports whether the order has at least one fulfillment record.
func (o *Order) Shipped() bool {
	return len(o.Fulfillments) > 0
}

// GraphQLID returns the Admin GraphQL global id of the order.
func (o *Order) GraphQLID() string {
	if o.AdminGraphQLID != "" {
		return o.AdminGraphQLID
	}
	return "gid://shopify/Order/" + strconv.FormatInt(o.ID, 10)
}

// TrackingNumber returns the tracking number of the first fulfillment.
func (o *Order) TrackingNumber() string {
	for _, f := range o.Fulfillments {
		if f.TrackingNumber != "" {
			return f.TrackingNumber
		}
	}
	return ""
}

// ContactMatches compares the order contact e-mail case-insensitively.
func (o *Order) ContactMatches(email string) bool {
	contact := o.ContactEmail
	if contact == "" {
		contact = o.Email
	}
	if contact == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(contact), strings.TrimSpace(email))
}

// CustomerName joins first and last name, falling back to the shipping name.
func (o *Order) CustomerName() string {
	name := strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
	if name != "" {
		return name
	}
	if o.ShippingAddress.Name != "" {
		return o.ShippingAddress.Name
	}
	return strings.TrimSpace(o.ShippingAddress.FirstName + " " + o.ShippingAddress.LastName)
}

// Address is a postal address attached to an order.
type Address struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Name         string `json:"name"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	Phone        string `json:"phone"`
}

// Customer is the buyer attached to an order.
type Customer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// LineItem is one purchased product line.
type LineItem struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	VariantID    int64  `json:"variant_id"`
	Title        string `json:"title"`
	VariantTitle string `json:"variant_title"`
	SKU          string `json:"sku"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
}

// Fulfillment is a shipment of (part of) an order.
type Fulfillment struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	ShipmentStatus  string `json:"shipment_status"`
	TrackingCompany string `json:"tracking_company"`
	TrackingNumber  string `json:"tracking_number"`
	TrackingURL     string `json:"tracking_url"`
}

// Product is a catalog product with its variants.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle"`
	ProductType string    `json:"product_type"`
	Status      string    `json:"status"`
	Variants    []Variant `json:"variants"`
}

// Variant is a purchasable option of a product (one size).
type Variant struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// ContactInfo is kept on the shipping address when it is replaced.
type ContactInfo struct {
	FirstName string
	LastName  string
	Phone     string
}

// ============================================================
// Order validation outcome
// ============================================================

// OrderLookupFailure distinguishes the two ways an order+email pair fails.
type OrderLookupFailure string

const (
	OrderLookupOK                 OrderLookupFailure = ""
	OrderLookupInvalidOrderNumber OrderLookupFailure = "invalid_order_number"
	OrderLookupEmailMismatch      OrderLookupFailure = "email_mismatch"
)

// OrderLookupResult is the value produced by validating an order+email pair.
type OrderLookupResult struct {
	Order   *Order
	Failure OrderLookupFailure
}

// Valid reports whether the pair resolved to an order.
func (r OrderLookupResult) Valid() bool {
	return r.Failure == OrderLookupOK && r.Order != nil
}

// ============================================================
// Geocoding
// ============================================================

// AddressValidation is the geocoder verdict for a free-text address.
type AddressValidation struct {
	FormattedAddress string   `json:"formattedAddress"`
	Candidates       []string `json:"candidates"`
}

// MultipleCandidates reports whether the user has to pick one address.
func (a *AddressValidation) MultipleCandidates() bool {
	return len(a.Candidates) > 1
}

// ============================================================
// Outbound calls
// ============================================================

// CallStatus is the state reported by the outbound-call bridge.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
	CallStatusUnknown    CallStatus = "unknown"
)

// IsTerminal reports whether the call will not change state anymore.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	}
	return false
}

// CallSession tracks one outbound call while it is being polled.
type CallSession struct {
	CallSID   string
	Status    CallStatus
	StartTime time.Time
	EndTime   time.Time
}
