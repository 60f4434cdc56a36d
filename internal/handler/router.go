package handler

import (
	"net/http"

	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"
	"github.com/boddenberg/support-assistant-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps are the collaborators mounted by NewRouter. Nil members switch
// their routes off (Chat, Tickets) or answer 503 (Auth).
type Deps struct {
	Chat    http.Handler
	Auth    *service.AdminAuth
	Tickets *service.TicketService
	Limiter port.RateLimiter
	Checks  []HealthCheck
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
	})

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Checks, logger))
	r.Get("/readyz", readyzHandler(d.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Chat
		// POST /v1/chat
		// =============================================
		if d.Chat != nil {
			r.Group(func(r chi.Router) {
				if d.Limiter != nil {
					r.Use(RateLimit(d.Limiter, "chat", d.Metrics, logger))
				}
				r.Method(http.MethodPost, "/chat", d.Chat)
			})
		}

		// =============================================
		// 2. Metrics
		// GET /v1/metrics/chat
		// =============================================
		r.Get("/metrics/chat", chatMetricsHandler(d.Metrics))

		// =============================================
		// 3. Widget polling
		// GET /v1/messages?ticketId=
		// =============================================
		if d.Tickets != nil {
			r.Get("/messages", pollMessagesHandler(d.Tickets, logger))
		}

		// =============================================
		// 4. Admin
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			if d.Auth == nil {
				r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "admin access is not configured")
				}))
				return
			}
			r.Post("/login", adminLoginHandler(d.Auth, logger))
		})

		// =============================================
		// 5. Tickets (protected)
		// =============================================
		if d.Auth != nil && d.Tickets != nil {
			r.Route("/tickets/{ticketId}", func(r chi.Router) {
				r.Use(JWTAuthMiddleware(d.Auth, logger))
				r.Get("/", getTicketHandler(d.Tickets, logger))
				r.Get("/messages", listTicketMessagesHandler(d.Tickets, logger))
				r.Post("/messages", agentReplyHandler(d.Tickets, logger))
				r.Post("/takeover", takeoverHandler(d.Tickets, true, logger))
				r.Post("/release", takeoverHandler(d.Tickets, false, logger))
			})
		}
	})

	return r
}
