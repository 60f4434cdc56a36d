package handler

import (
	"net/http"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Admin: login and ticket takeover
// ============================================================

func adminLoginHandler(auth *service.AdminAuth, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/login")
		defer span.End()

		var req domain.AdminLoginRequest
		if err := DecodeJSON(r, &req); err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}

		resp, err := auth.Login(ctx, &req)
		if err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func getTicketHandler(svc *service.TicketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tickets/{ticketId}")
		defer span.End()

		ticketID := chi.URLParam(r, "ticketId")
		span.SetAttributes(attribute.String("ticket.id", ticketID))

		t, err := svc.Get(ctx, ticketID)
		if err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}
		WriteJSON(w, http.StatusOK, t)
	}
}

func listTicketMessagesHandler(svc *service.TicketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tickets/{ticketId}/messages")
		defer span.End()

		msgs, err := svc.Messages(ctx, chi.URLParam(r, "ticketId"))
		if err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}
		WriteJSON(w, http.StatusOK, domain.ListResponse[domain.Message]{Data: msgs, Total: len(msgs)})
	}
}

func takeoverHandler(svc *service.TicketService, admin bool, logger *zap.Logger) http.HandlerFunc {
	op := "POST /v1/tickets/{ticketId}/release"
	if admin {
		op = "POST /v1/tickets/{ticketId}/takeover"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), op)
		defer span.End()

		ticketID := chi.URLParam(r, "ticketId")
		var (
			t   *domain.Ticket
			err error
		)
		if admin {
			t, err = svc.Takeover(ctx, ticketID)
		} else {
			t, err = svc.Release(ctx, ticketID)
		}
		if err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}

		logger.Info("ticket takeover changed",
			zap.String("ticket_id", ticketID),
			zap.Bool("admin", admin),
			zap.String("by", AdminSubjectFromContext(ctx)),
		)
		WriteJSON(w, http.StatusOK, t)
	}
}

func agentReplyHandler(svc *service.TicketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tickets/{ticketId}/messages")
		defer span.End()

		var req domain.AgentReplyRequest
		if err := DecodeJSON(r, &req); err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}

		msg, err := svc.Reply(ctx, chi.URLParam(r, "ticketId"), &req)
		if err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}
		WriteJSON(w, http.StatusCreated, msg)
	}
}

// pollMessagesHandler serves GET /v1/messages?ticketId= for the chat widget,
// which polls for agent replies while a ticket is taken over.
func pollMessagesHandler(svc *service.TicketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/messages")
		defer span.End()

		ticketID := r.URL.Query().Get("ticketId")
		if ticketID == "" {
			WriteError(w, r, http.StatusBadRequest, CodeInvalidRequest, "ticketId query parameter is required")
			return
		}

		msgs, err := svc.Messages(ctx, ticketID)
		if err != nil {
			HandleServiceError(w, r, err, logger)
			return
		}
		WriteJSON(w, http.StatusOK, domain.ListResponse[domain.Message]{Data: msgs, Total: len(msgs)})
	}
}
