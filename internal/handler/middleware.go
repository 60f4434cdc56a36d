package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"
	"github.com/boddenberg/support-assistant-bfa-go/internal/service"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const adminSubjectKey contextKey = "adminSubject"

// ============================================================
// Request id: req_{unixMillis}_{9 base36 chars}
// ============================================================

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	var suffix [9]byte
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), suffix[:])
}

// RequestID stores the request id under chi's key so middleware.GetReqID
// and the access log see it. A caller-supplied X-Request-Id is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = NewRequestID()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ============================================================
// JWT
// ============================================================

// JWTAuthMiddleware validates admin Bearer tokens.
func JWTAuthMiddleware(auth *service.AdminAuth, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization header")
				return
			}

			claims, err := auth.ValidateAccessToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				HandleServiceError(w, r, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), adminSubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminSubjectFromContext returns the authenticated admin username.
func AdminSubjectFromContext(ctx context.Context) string {
	v, _ := ctx.Value(adminSubjectKey).(string)
	return v
}

// ============================================================
// Rate limiting
// ============================================================

// ClientIDHeader lets trusted callers (the storefront widget) name themselves.
const ClientIDHeader = "X-Client-Id"

// RateLimit throttles by X-Client-Id, else the ticket id in the JSON body,
// else the client IP. Limiter failures let the request through.
func RateLimit(limiter port.RateLimiter, route string, metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			decision, err := limiter.Allow(r.Context(), route+":"+key)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("route", route),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				metrics.IncrRateLimited(route)
				logger.Warn("rate limited",
					zap.String("route", route),
					zap.String("key", key),
					zap.Duration("retry_after", decision.RetryAfter),
				)
				w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
				WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many requests, please slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return "client:" + id
	}
	if id := peekTicketID(r); id != "" {
		return "ticket:" + id
	}
	// RealIP runs earlier in the chain and may leave a bare address.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// peekTicketID reads currentTicket.id from a JSON body and restores the body.
func peekTicketID(r *http.Request) string {
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var probe struct {
		CurrentTicket *struct {
			ID string `json:"id"`
		} `json:"currentTicket"`
	}
	if json.Unmarshal(body, &probe) != nil || probe.CurrentTicket == nil {
		return ""
	}
	return probe.CurrentTicket.ID
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Max(1, math.Ceil(d.Seconds()))))
}
