package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// Invoice math
// ============================================================

// ComputeInvoiceTotals removes VAT from a tax-inclusive total. The subtotal
// is rounded to cents first; tax and total are derived from it.
func ComputeInvoiceTotals(taxInclusive float64) (subtotal, tax, total float64) {
	subtotal = round2(taxInclusive / (1 + maindomain.InvoiceTaxRate))
	tax = round2(maindomain.InvoiceTaxRate * subtotal)
	total = round2(subtotal + tax)
	return subtotal, tax, total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildInvoice maps an order to the invoice record.
func BuildInvoice(order *maindomain.Order, number string) *maindomain.Invoice {
	billing := order.BillingAddress
	name := billing.Name
	if name == "" {
		name = strings.TrimSpace(billing.FirstName + " " + billing.LastName)
	}
	if name == "" {
		name = order.CustomerName()
	}

	inv := &maindomain.Invoice{
		Number: number,
		Date:   order.CreatedAt,
		Customer: maindomain.InvoiceParty{
			Name:        name,
			AddressLine: billing.Address1,
			CityLine:    joinNonEmpty(", ", billing.City, billing.Province, billing.Zip),
			Phone:       billing.Phone,
		},
	}
	for _, item := range order.LineItems {
		price := parseAmount(item.Price)
		inv.Lines = append(inv.Lines, maindomain.InvoiceLine{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: price,
			LineTotal: round2(price * float64(item.Quantity)),
		})
	}
	inv.Subtotal, inv.Tax, inv.Total = ComputeInvoiceTotals(parseAmount(order.TotalPrice))
	return inv
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ============================================================
// InvoiceRequestStrategy: invoice_request
// ============================================================

// InvoiceRequestStrategy renders the order invoice and e-mails it to the customer.
type InvoiceRequestStrategy struct {
	gate     *orderGate
	renderer port.InvoiceRenderer
	mailer   port.Mailer
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewInvoiceRequestStrategy creates the invoice_request strategy.
func NewInvoiceRequestStrategy(
	commerce port.CommerceClient,
	renderer port.InvoiceRenderer,
	mailer port.Mailer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *InvoiceRequestStrategy {
	return &InvoiceRequestStrategy{
		gate:     newOrderGate(commerce, metrics, logger),
		renderer: renderer,
		mailer:   mailer,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *InvoiceRequestStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentInvoiceRequest
}

func (s *InvoiceRequestStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "InvoiceRequestStrategy.Handle")
	defer span.End()

	order, reply, err := s.gate.resolve(ctx, chatCtx)
	if order == nil {
		return reply, err
	}

	params := chatCtx.Params()
	lang := chatCtx.Lang()

	number := order.Name
	if number == "" {
		number = "#" + normalizeOrderNumber(params.OrderNumber)
	}
	inv := BuildInvoice(order, number)

	pdf, err := s.renderer.Render(inv)
	if err != nil {
		s.logger.Error("invoice render failed", zap.String("order", number), zap.Error(err))
		s.outcome("render_error")
		return replyInvoiceFailed.in(lang), nil
	}

	err = s.mailer.Send(ctx, &maindomain.Email{
		To:          params.Email,
		Kind:        maindomain.MailInvoice,
		OrderNumber: number,
		Attachment: &maindomain.Attachment{
			Name:        "invoice-" + normalizeOrderNumber(number) + ".pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "invoice_send"}
		}
		s.logger.Error("invoice e-mail failed", zap.String("order", number), zap.Error(err))
		s.metrics.IncrExternalError("mailer")
		s.outcome("send_error")
		return replyInvoiceFailed.in(lang), nil
	}

	s.outcome("sent")
	return replyInvoiceSent.in(lang), nil
}

func (s *InvoiceRequestStrategy) outcome(outcome string) {
	s.metrics.IncrHandlerOutcome(string(domain.IntentInvoiceRequest), outcome)
}
