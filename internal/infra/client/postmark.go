package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	postmarkService = "email"
	postmarkBaseURL = "https://api.postmarkapp.com"
	messageStream   = "outbound"
)

// PostmarkMailer sends the transactional templates through Postmark.
type PostmarkMailer struct {
	httpClient *http.Client
	baseURL    string
	token      string
	from       string
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewPostmarkMailer creates a mailer. An empty baseURL targets the public API.
func NewPostmarkMailer(httpClient *http.Client, baseURL, serverToken, from string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *PostmarkMailer {
	if baseURL == "" {
		baseURL = postmarkBaseURL
	}
	return &PostmarkMailer{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      serverToken,
		from:       from,
		cb:         cb,
		logger:     logger,
	}
}

type postmarkAttachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkEmail struct {
	From          string               `json:"From"`
	To            string               `json:"To"`
	Subject       string               `json:"Subject"`
	TextBody      string               `json:"TextBody"`
	HtmlBody      string               `json:"HtmlBody"`
	MessageStream string               `json:"MessageStream"`
	Attachments   []postmarkAttachment `json:"Attachments,omitempty"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

// Send renders the template for email.Kind and posts it.
func (m *PostmarkMailer) Send(ctx context.Context, email *domain.Email) error {
	ctx, span := tracer.Start(ctx, "PostmarkMailer.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("mail.kind", string(email.Kind)),
		attribute.String("order.number", email.OrderNumber),
	)

	if m.token == "" {
		return &domain.ErrExternalService{Service: postmarkService, Err: fmt.Errorf("postmark server token not configured")}
	}
	if strings.TrimSpace(email.To) == "" {
		return &domain.ErrValidation{Field: "to", Message: "recipient is required"}
	}

	msg, err := m.render(email)
	if err != nil {
		return err
	}

	id, err := execute(m.cb, postmarkService, func() (string, error) {
		req, err := newJSONRequest(ctx, http.MethodPost, m.baseURL+"/email", msg)
		if err != nil {
			return "", err
		}
		req.Header.Set("X-Postmark-Server-Token", m.token)

		var resp postmarkResponse
		if err := doJSON(m.httpClient, postmarkService, req, &resp); err != nil {
			return "", err
		}
		if resp.ErrorCode != 0 {
			return "", fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
		}
		return resp.MessageID, nil
	})
	if err != nil {
		m.logger.Error("email delivery failed",
			zap.String("kind", string(email.Kind)),
			zap.String("order_number", email.OrderNumber),
			zap.Error(err),
		)
		return err
	}

	m.logger.Info("email sent",
		zap.String("kind", string(email.Kind)),
		zap.String("order_number", email.OrderNumber),
		zap.String("message_id", id),
	)
	return nil
}

// ============================================================
// Templates
// ============================================================

var mailLayout = template.Must(template.New("mail").Parse(
	`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; background-color: #f9f9f9; padding: 20px; border: 1px solid #ddd; border-radius: 8px; max-width: 600px; margin: 20px auto;">
  <p style="font-size: 16px; color: #555;"><strong>Hola!</strong></p>
  <p style="font-size: 16px; color: #555;">{{.Body}}</p>
  <p style="font-size: 16px; color: #555;">Saludos cordiales,<br/><strong>El equipo de Shameless Collective</strong></p>
</div>`))

func (m *PostmarkMailer) render(email *domain.Email) (*postmarkEmail, error) {
	msg := &postmarkEmail{
		From:          m.from,
		To:            email.To,
		MessageStream: messageStream,
	}

	var body string
	switch email.Kind {
	case domain.MailDeliveryIssue:
		msg.Subject = "Comprobante de entrega de pedido"
		body = fmt.Sprintf("¿Puedes enviar el comprobante de entrega del pedido %s al siguiente correo: %s?",
			email.OrderNumber, email.CustomerEmail)
	case domain.MailInvoice:
		msg.Subject = fmt.Sprintf("Factura de tu pedido %s", email.OrderNumber)
		body = fmt.Sprintf("Adjuntamos la factura de tu pedido %s. ¡Muchas gracias por confiar en Shameless Collective!",
			email.OrderNumber)
	default:
		return nil, &domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown mail kind %q", email.Kind)}
	}
	msg.TextBody = body

	var html bytes.Buffer
	if err := mailLayout.Execute(&html, struct{ Body string }{body}); err != nil {
		return nil, err
	}
	msg.HtmlBody = html.String()

	if a := email.Attachment; a != nil {
		msg.Attachments = []postmarkAttachment{{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		}}
	}
	return msg, nil
}
