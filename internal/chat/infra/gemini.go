package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// ============================================================
// GeminiClient: generateContent
// ============================================================

// GeminiClient implements port.Completer on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates the client. An empty baseURL keeps the public endpoint.
func NewGeminiClient(ctx context.Context, apiKey, baseURL, model string, httpClient *http.Client) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Complete sends one generateContent request. System messages become the
// system instruction; assistant turns use the model role.
func (c *GeminiClient) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	ctx, span := tracer.Start(ctx, "GeminiClient.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Bool("llm.json_mode", req.JSONMode),
	)

	system, contents := toGeminiContents(req.Messages)
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(req.Temperature),
		SystemInstruction: system,
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		span.RecordError(err)
		return nil, classifyGeminiError(err)
	}

	out := &domain.Completion{Text: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
	}
	if out.Text == "" {
		return nil, errors.New("gemini: empty response")
	}
	return out, nil
}

func toGeminiContents(msgs []domain.LLMMessage) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	upstream := &maindomain.ErrUpstreamStatus{Service: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
	if !upstream.Retryable() {
		return resilience.Permanent(upstream)
	}
	return upstream
}
