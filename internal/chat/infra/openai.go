package infra

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// tracer is the OpenTelemetry tracer for the chat/infra module.
var tracer = otel.Tracer("chat/infra")

// chatCompletionAPI is the subset of *openai.Client used here.
type chatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ============================================================
// OpenAIClient: Chat Completions
// ============================================================

// OpenAIClient implements port.Completer on the Chat Completions API.
type OpenAIClient struct {
	api   chatCompletionAPI
	model string
}

// NewOpenAIClient creates the client. An empty baseURL keeps the public endpoint.
func NewOpenAIClient(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg), model: model}
}

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Bool("llm.json_mode", req.JSONMode),
	)

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	// temperature is omitempty on the wire.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	body := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.api.CreateChatCompletion(ctx, body)
	if err != nil {
		span.RecordError(err)
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	return &domain.Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classifyOpenAIError maps SDK errors to ErrUpstreamStatus. Client errors
// other than 429 are permanent; network failures stay retryable as is.
func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}

	upstream := &maindomain.ErrUpstreamStatus{Service: "openai", StatusCode: status, Body: err.Error()}
	if !upstream.Retryable() {
		return resilience.Permanent(upstream)
	}
	return upstream
}
