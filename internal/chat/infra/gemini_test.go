package infra_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/infra"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig struct {
		ResponseMIMEType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

func newGeminiServer(t *testing.T, status int, body string, got *geminiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGemini(t *testing.T, srv *httptest.Server) *infra.GeminiClient {
	t.Helper()
	c, err := infra.NewGeminiClient(context.Background(), "g-key", srv.URL, "gemini-2.0-flash", srv.Client())
	require.NoError(t, err)
	return c
}

func TestGeminiClient_Complete(t *testing.T) {
	var got geminiRequest
	srv := newGeminiServer(t, http.StatusOK, `{
		"candidates":[{"content":{"role":"model","parts":[{"text":"{\"intent\":\"promo_code\"}"}]}}],
		"usageMetadata":{"promptTokenCount":40,"candidatesTokenCount":9}
	}`, &got)

	out, err := newGemini(t, srv).Complete(context.Background(), &domain.CompletionRequest{
		Messages: []domain.LLMMessage{
			{Role: domain.RoleSystem, Content: "classify the message"},
			{Role: domain.RoleUser, Content: "hola"},
			{Role: domain.RoleAssistant, Content: "¡Hola!"},
			{Role: domain.RoleUser, Content: "quiero un descuento"},
		},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"intent":"promo_code"}`, out.Text)
	assert.Equal(t, 40, out.PromptTokens)
	assert.Equal(t, 9, out.CompletionTokens)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "classify the message", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "quiero un descuento", got.Contents[2].Parts[0].Text)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMIMEType)
}

func TestGeminiClient_EmptyText(t *testing.T) {
	srv := newGeminiServer(t, http.StatusOK, `{"candidates":[]}`, nil)

	_, err := newGemini(t, srv).Complete(context.Background(), &domain.CompletionRequest{
		Messages: []domain.LLMMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
}

func TestGeminiClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"forbidden", http.StatusForbidden, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeminiServer(t, tt.status,
				fmt.Sprintf(`{"error":{"code":%d,"message":"nope","status":"X"}}`, tt.status), nil)

			_, err := newGemini(t, srv).Complete(context.Background(), &domain.CompletionRequest{
				Messages: []domain.LLMMessage{{Role: domain.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			assert.Equal(t, tt.permanent, resilience.IsPermanent(err))
			var upstream *maindomain.ErrUpstreamStatus
			require.True(t, errors.As(err, &upstream))
			assert.Equal(t, "gemini", upstream.Service)
			assert.Equal(t, tt.status, upstream.StatusCode)
		})
	}
}
