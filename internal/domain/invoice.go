package domain

import "time"

// ============================================================
// Invoices
// ============================================================

// InvoiceTaxRate is the Spanish VAT rate applied to every order.
const InvoiceTaxRate = 0.21

// Invoice is the structured record rendered to PDF for invoice_request.
type Invoice struct {
	Number   string
	Date     time.Time
	Customer InvoiceParty
	Lines    []InvoiceLine
	Subtotal float64
	Tax      float64
	Total    float64
}

// InvoiceParty is the billing block of an invoice.
type InvoiceParty struct {
	Name        string
	AddressLine string
	CityLine    string // "city, province, zip"
	Phone       string
}

// InvoiceLine is one line item: quantity x unit price.
type InvoiceLine struct {
	Title     string
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

// ============================================================
// Transactional e-mail
// ============================================================

// MailKind selects the template used by the mailer.
type MailKind string

const (
	// MailDeliveryIssue asks the support mailbox for a proof of delivery.
	MailDeliveryIssue MailKind = "delivery_issue"
	// MailInvoice carries the invoice PDF to the customer.
	MailInvoice MailKind = "invoice"
)

// Email is a templated message handed to the mailer.
type Email struct {
	To            string
	Kind          MailKind
	OrderNumber   string
	CustomerEmail string
	Attachment    *Attachment
}

// Attachment is a binary file sent with an e-mail.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// ============================================================
// Rate limiting
// ============================================================

// RateDecision is the verdict of one check-and-increment on a limiter key.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}
