// Package invoice renders order invoices as A4 PDF documents.
package invoice

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/go-pdf/fpdf"
)

// Seller is the issuing company printed on every invoice.
type Seller struct {
	Name     string
	TaxID    string
	Street   string
	CityLine string
	Phone    string
}

// DefaultSeller is the company that bills Shameless Collective orders.
var DefaultSeller = Seller{
	Name:     "CORISA TEXTIL S.L.",
	TaxID:    "B02852895",
	Street:   "Calle Neptuno 29",
	CityLine: "Pozuelo de Alarcón, Madrid, 28224",
	Phone:    "(+34) 608667749",
}

// Layout in millimetres.
const (
	leftMargin   = 20.0
	centerMargin = 105.0
	rightMargin  = 190.0
	lineHeight   = 6.0
	fontFamily   = "Helvetica"
)

// PDFRenderer implements port.InvoiceRenderer with fpdf.
type PDFRenderer struct {
	seller   Seller
	compress bool
	now      func() time.Time
}

// Option customizes a PDFRenderer.
type Option func(*PDFRenderer)

// WithSeller replaces the seller block.
func WithSeller(s Seller) Option {
	return func(r *PDFRenderer) { r.seller = s }
}

// NewPDFRenderer creates a renderer for DefaultSeller unless overridden.
func NewPDFRenderer(opts ...Option) *PDFRenderer {
	r := &PDFRenderer{seller: DefaultSeller, compress: true, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// page draws text at absolute positions. Core fonts are cp1252, so every
// string goes through the translator.
type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (p *page) text(x, y float64, s string) {
	p.pdf.Text(x, y, p.tr(s))
}

func (p *page) textRight(x, y float64, s string) {
	s = p.tr(s)
	p.pdf.Text(x-p.pdf.GetStringWidth(s), y, s)
}

func (p *page) fontSize(size float64) {
	p.pdf.SetFont(fontFamily, "", size)
}

// Render draws the invoice and returns the PDF bytes.
func (r *PDFRenderer) Render(inv *domain.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, errors.New("invoice: nil invoice")
	}

	var buf bytes.Buffer
	if err := r.draw(inv).Output(&buf); err != nil {
		return nil, fmt.Errorf("invoice: render %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) draw(inv *domain.Invoice) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(r.now())
	pdf.SetTitle("Factura "+inv.Number, true)
	pdf.SetAuthor(r.seller.Name, true)
	pdf.AddPage()

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	y := 20.0
	p.fontSize(16)
	p.textRight(rightMargin, y, "FACTURA")
	y += lineHeight * 2
	p.textRight(rightMargin, y, inv.Number)
	y += lineHeight
	p.textRight(rightMargin, y, inv.Date.Format("02/01/2006"))

	y += lineHeight * 3
	sellerY := y

	p.fontSize(12)
	p.text(leftMargin, y, "Datos del cliente")
	y += lineHeight * 2
	p.fontSize(10)
	for _, line := range []string{inv.Customer.Name, inv.Customer.AddressLine, inv.Customer.CityLine} {
		p.text(leftMargin, y, line)
		y += lineHeight
	}
	if inv.Customer.Phone != "" {
		p.text(leftMargin, y, inv.Customer.Phone)
	}

	p.fontSize(12)
	p.textRight(rightMargin, sellerY, "Datos")
	sellerY += lineHeight * 2
	p.fontSize(10)
	for _, line := range []string{r.seller.Name, r.seller.TaxID, r.seller.Street, r.seller.CityLine, r.seller.Phone} {
		p.textRight(rightMargin, sellerY, line)
		sellerY += lineHeight
	}

	y = sellerY + 45
	p.fontSize(12)
	p.text(leftMargin, y, "ARTÍCULOS")
	p.text(centerMargin-20, y, "CANTIDAD")
	p.text(centerMargin+20, y, "PRECIO")
	p.textRight(rightMargin, y, "TOTAL")

	pdf.SetLineWidth(0.5)
	pdf.Line(leftMargin, y-5, rightMargin, y-5)
	pdf.Line(leftMargin, y+5, rightMargin, y+5)

	y += lineHeight * 2
	p.fontSize(10)
	for _, item := range inv.Lines {
		if y > 270 {
			pdf.AddPage()
			y = 20
		}
		p.text(leftMargin, y, item.Title)
		p.text(centerMargin-20, y, strconv.Itoa(item.Quantity))
		p.text(centerMargin+20, y, money(item.UnitPrice))
		p.textRight(rightMargin, y, money(item.LineTotal))
		y += lineHeight * 1.5
	}

	y += lineHeight
	if y > 250 {
		pdf.AddPage()
		y = 20
	}
	p.fontSize(12)
	for _, row := range []struct {
		label  string
		amount float64
	}{
		{"Subtotal", inv.Subtotal},
		{"IVA", inv.Tax},
		{"TOTAL", inv.Total},
	} {
		p.text(centerMargin+20, y, row.label)
		p.textRight(rightMargin, y, money(row.amount))
		y += lineHeight * 2
	}
	return pdf
}

func money(v float64) string {
	return fmt.Sprintf("%.2f €", v)
}
