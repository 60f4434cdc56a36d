package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/handler"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/memory"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Error struct {
		Message   string `json:"message"`
		Code      string `json:"code"`
		Timestamp string `json:"timestamp"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func baseDeps() handler.Deps {
	return handler.Deps{Metrics: observability.NewMetrics(), Logger: zap.NewNop()}
}

func TestHealthz(t *testing.T) {
	d := baseDeps()
	d.Checks = []handler.HealthCheck{
		{Name: "ticket-store", Critical: true, Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	}
	router := handler.NewRouter(d)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Len(t, health.Services, 3)
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		rec := serve(handler.NewRouter(baseDeps()), httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("critical dependency down", func(t *testing.T) {
		d := baseDeps()
		d.Checks = []handler.HealthCheck{
			{Name: "ticket-store", Critical: true, Check: func(context.Context) error { return errors.New("down") }},
		}
		rec := serve(handler.NewRouter(d), httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetrics(t *testing.T) {
	d := baseDeps()
	d.Metrics.IncrRequest("success")
	router := handler.NewRouter(d)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bfa_chat_requests_total")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/metrics/chat", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.ChatMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.TotalRequests)
}

func TestPing(t *testing.T) {
	rec := serve(handler.NewRouter(baseDeps()), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

var requestIDPattern = regexp.MustCompile(`^req_\d{13}_[0-9a-z]{9}$`)

func TestRequestID(t *testing.T) {
	router := handler.NewRouter(baseDeps())

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	id := rec.Header().Get("X-Request-Id")
	assert.Regexp(t, requestIDPattern, id)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, id, env.Error.RequestID)
	_, err := time.Parse(time.RFC3339, env.Error.Timestamp)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req_upstream")
	rec = serve(router, req)
	assert.Equal(t, "req_upstream", rec.Header().Get("X-Request-Id"))
}

// ============================================================
// Rate limiting
// ============================================================

type fakeLimiter struct {
	mu       sync.Mutex
	keys     []string
	decision domain.RateDecision
	err      error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (domain.RateDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

func okChat() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"response": "hi"})
	})
}

func chatRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRateLimit_Rejects(t *testing.T) {
	limiter := &fakeLimiter{decision: domain.RateDecision{Allowed: false, Limit: 20, RetryAfter: 29500 * time.Millisecond}}
	d := baseDeps()
	d.Chat = okChat()
	d.Limiter = limiter

	rec := serve(handler.NewRouter(d), chatRequest(`{"message":"hi"}`))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMITED", decodeEnvelope(t, rec).Error.Code)
	assert.Equal(t, int64(1), d.Metrics.GetChatSnapshot().RateLimited)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis: connection refused")}
	d := baseDeps()
	d.Chat = okChat()
	d.Limiter = limiter

	rec := serve(handler.NewRouter(d), chatRequest(`{"message":"hi"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_KeyPreference(t *testing.T) {
	limiter := &fakeLimiter{decision: domain.RateDecision{Allowed: true, Limit: 20, Remaining: 19}}
	d := baseDeps()
	d.Chat = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		// the body must still be readable after the limiter peeked at it
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})
	d.Limiter = limiter
	router := handler.NewRouter(d)

	req := chatRequest(`{"message":"hi","currentTicket":{"id":"t-9"}}`)
	req.Header.Set("X-Client-Id", "widget-1")
	require.Equal(t, http.StatusOK, serve(router, req).Code)

	require.Equal(t, http.StatusOK, serve(router, chatRequest(`{"message":"hi","currentTicket":{"id":"t-9"}}`)).Code)

	req = chatRequest(`{"message":"hi"}`)
	req.RemoteAddr = "203.0.113.7:5555"
	require.Equal(t, http.StatusOK, serve(router, req).Code)

	assert.Equal(t, []string{"chat:client:widget-1", "chat:ticket:t-9", "chat:ip:203.0.113.7"}, limiter.keys)
}

// ============================================================
// Admin & tickets
// ============================================================

func adminDeps(t *testing.T) (handler.Deps, *memory.TicketStore) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	store := memory.NewTicketStore()
	_, err = store.CreateTicket(context.Background(), &domain.Ticket{ID: "t-1"})
	require.NoError(t, err)

	d := baseDeps()
	d.Auth = service.NewAdminAuth("admin", string(hash), "secret", time.Minute, zap.NewNop())
	d.Tickets = service.NewTicketService(store, zap.NewNop())
	return d, store
}

func login(t *testing.T, router http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/login", strings.NewReader(`{"username":"admin","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.AdminLoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func authed(method, path, token, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestAdminLogin_BadCredentials(t *testing.T) {
	d, _ := adminDeps(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(handler.NewRouter(d), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope(t, rec).Error.Code)
}

func TestAdminUnavailableWithoutAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/login", strings.NewReader(`{}`))
	rec := serve(handler.NewRouter(baseDeps()), req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTickets_RequireToken(t *testing.T) {
	d, _ := adminDeps(t)
	router := handler.NewRouter(d)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/v1/tickets/t-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, authed(http.MethodGet, "/v1/tickets/t-1", "not-a-token", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTickets_TakeoverFlow(t *testing.T) {
	d, store := adminDeps(t)
	router := handler.NewRouter(d)
	token := login(t, router)

	rec := serve(router, authed(http.MethodPost, "/v1/tickets/t-1/messages", token, `{"text":"hello"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(router, authed(http.MethodPost, "/v1/tickets/t-1/takeover", token, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	tk, err := store.GetTicket(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, tk.Admin)

	rec = serve(router, authed(http.MethodPost, "/v1/tickets/t-1/messages", token, `{"text":"Hi, this is Laura"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	// widget polling is public
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/messages?ticketId=t-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list domain.ListResponse[domain.Message]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, domain.SenderAdmin, list.Data[0].Sender)

	rec = serve(router, authed(http.MethodGet, "/v1/tickets/t-1", token, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, authed(http.MethodPost, "/v1/tickets/t-1/release", token, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	tk, _ = store.GetTicket(context.Background(), "t-1")
	assert.False(t, tk.Admin)
}

func TestTickets_NotFound(t *testing.T) {
	d, _ := adminDeps(t)
	router := handler.NewRouter(d)
	token := login(t, router)

	rec := serve(router, authed(http.MethodGet, "/v1/tickets/missing/messages", token, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/messages", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
