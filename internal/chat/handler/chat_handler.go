// Package handler exposes the chat pipeline over HTTP: POST /v1/chat.
//
// Request:
//
//	Content-Type: application/json
//	{"message": "Where is my order #1234?", "context": [{"role":"user","content":"..."}],
//	 "currentTicket": {"id": "..."}}
//
// Response (200 OK):
//
//	{"response": "...", "updatedTicket": {...}}
//
// Errors use the shared envelope {"error":{message, code, timestamp, requestId}}.
package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	sharedhandler "github.com/boddenberg/support-assistant-bfa-go/internal/handler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer is the OpenTelemetry tracer for the chat/handler module.
var tracer = otel.Tracer("chat/handler")

// MessageProcessor runs one chat turn. Implemented by service.ChatService.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error)
}

// ============================================================
// ChatHandler: POST /v1/chat
// ============================================================

// ChatHandler is thin: it decodes, delegates to the session and maps errors.
func ChatHandler(chat MessageProcessor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat")
		defer span.End()

		var req domain.ChatRequest
		if err := sharedhandler.DecodeJSON(r, &req); err != nil {
			sharedhandler.HandleServiceError(w, r, err, logger)
			return
		}
		if req.CurrentTicket != nil {
			span.SetAttributes(attribute.String("chat.ticket_id", req.CurrentTicket.ID))
		}
		span.SetAttributes(attribute.Int("chat.context_length", len(req.Context)))

		resp, err := chat.ProcessMessage(ctx, &req)
		if err != nil {
			span.RecordError(err)
			sharedhandler.HandleServiceError(w, r, err, logger)
			return
		}

		sharedhandler.WriteJSON(w, http.StatusOK, resp)
	}
}
