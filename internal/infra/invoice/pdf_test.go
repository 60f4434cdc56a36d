package invoice

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() *domain.Invoice {
	return &domain.Invoice{
		Number: "#1234",
		Date:   time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
		Customer: domain.InvoiceParty{
			Name:        "Lucia Perez",
			AddressLine: "Calle Mayor 5",
			CityLine:    "Madrid, Madrid, 28013",
			Phone:       "+34600111222",
		},
		Lines: []domain.InvoiceLine{
			{Title: "Hoodie Black", Quantity: 2, UnitPrice: 45, LineTotal: 90},
			{Title: "Tee White", Quantity: 1, UnitPrice: 31, LineTotal: 31},
		},
		Subtotal: 100,
		Tax:      21,
		Total:    121,
	}
}

func uncompressed(opts ...Option) *PDFRenderer {
	r := NewPDFRenderer(opts...)
	r.compress = false
	r.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRender_ProducesPDF(t *testing.T) {
	out, err := NewPDFRenderer().Render(sampleInvoice())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "missing PDF header")
	assert.Contains(t, string(out), "%EOF")
}

func TestRender_Content(t *testing.T) {
	out, err := uncompressed().Render(sampleInvoice())
	require.NoError(t, err)
	body := string(out)

	for _, want := range []string{
		"(FACTURA)",
		"(#1234)",
		"(09/03/2024)",
		"(Datos del cliente)",
		"(Lucia Perez)",
		"(Calle Mayor 5)",
		"(Madrid, Madrid, 28013)",
		"(+34600111222)",
		"(CORISA TEXTIL S.L.)",
		"(B02852895)",
		"(Hoodie Black)",
		"(Subtotal)",
		"(IVA)",
		"(TOTAL)",
		"(90.00 \x80)",
		"(100.00 \x80)",
		"(21.00 \x80)",
		"(121.00 \x80)",
	} {
		assert.Contains(t, body, want)
	}
}

func TestRender_OmitsEmptyPhone(t *testing.T) {
	inv := sampleInvoice()
	inv.Customer.Phone = ""

	out, err := uncompressed().Render(inv)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "(+34600111222)")
}

func TestRender_CustomSeller(t *testing.T) {
	r := uncompressed(WithSeller(Seller{Name: "ACME S.A.", TaxID: "A00000000"}))

	out, err := r.Render(sampleInvoice())
	require.NoError(t, err)
	assert.Contains(t, string(out), "(ACME S.A.)")
	assert.NotContains(t, string(out), "(CORISA TEXTIL S.L.)")
}

func TestRender_ManyLinesSpanPages(t *testing.T) {
	inv := sampleInvoice()
	inv.Lines = nil
	for i := 0; i < 60; i++ {
		inv.Lines = append(inv.Lines, domain.InvoiceLine{
			Title: fmt.Sprintf("Item %02d", i), Quantity: 1, UnitPrice: 1, LineTotal: 1,
		})
	}

	out, err := uncompressed().Render(inv)
	require.NoError(t, err)
	assert.Contains(t, string(out), "(Item 00)")
	assert.Contains(t, string(out), "(Item 59)")
	assert.Greater(t, NewPDFRenderer().draw(inv).PageCount(), 1)
}

func TestRender_NilInvoice(t *testing.T) {
	_, err := NewPDFRenderer().Render(nil)
	require.Error(t, err)
}
