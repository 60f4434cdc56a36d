package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/port"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// replyTemperature keeps the persona lively; classification runs at 0.
const replyTemperature = 0.8

// ReplyRequest is the auxiliary data handed to reply generation.
// Every field except Intent and Language is optional.
type ReplyRequest struct {
	Intent      domain.Intent
	Language    domain.Language
	Message     string
	History     []domain.ConversationTurn
	Params      domain.Parameters
	Order       *maindomain.Order
	Product     *maindomain.Product
	Instruction string

	SizeChart      *SizeChart
	Recommendation string
}

// Responder produces the final user-facing wording through the language model.
type Responder struct {
	llm     port.Completer
	timeout time.Duration
	logger  *zap.Logger
}

// NewResponder creates a Responder. A zero timeout means the caller's deadline applies.
func NewResponder(llm port.Completer, timeout time.Duration, logger *zap.Logger) *Responder {
	return &Responder{llm: llm, timeout: timeout, logger: logger}
}

// GenerateFinalAnswer returns the reply for req. Model failures degrade to a
// localized retry sentence; only a deadline is returned as an error.
func (r *Responder) GenerateFinalAnswer(ctx context.Context, req ReplyRequest) (string, error) {
	ctx, span := chatTracer.Start(ctx, "Responder.GenerateFinalAnswer")
	defer span.End()

	if req.Intent == domain.IntentConversationEnd {
		return replyClosing.in(req.Language), nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	msgs := make([]domain.LLMMessage, 0, len(req.History)+2)
	msgs = append(msgs, domain.LLMMessage{Role: domain.RoleSystem, Content: buildReplyPrompt(req)})
	for _, turn := range req.History {
		msgs = append(msgs, domain.LLMMessage{Role: historyRole(turn.Role), Content: sanitize(turn.Content)})
	}
	msgs = append(msgs, domain.LLMMessage{Role: domain.RoleUser, Content: sanitize(req.Message)})

	out, err := r.llm.Complete(ctx, &domain.CompletionRequest{
		Messages:    msgs,
		Temperature: replyTemperature,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "reply_generation"}
		}
		r.logger.Warn("reply generation failed",
			zap.String("intent", string(req.Intent)),
			zap.Error(err),
		)
		return replyGeneric.in(req.Language), nil
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return replyGeneric.in(req.Language), nil
	}
	return text, nil
}

// buildReplyPrompt assembles persona, context blocks and guidelines.
func buildReplyPrompt(req ReplyRequest) string {
	var b strings.Builder
	b.WriteString(finalAnswerPrompt)

	b.WriteString("\n\nIntent: ")
	b.WriteString(string(req.Intent))

	if req.Order != nil {
		b.WriteString("\n\nOrder Details: ")
		b.WriteString(compactJSON(req.Order))
		status := "not shipped yet"
		if req.Order.Shipped() {
			status = "shipped"
			if tn := req.Order.TrackingNumber(); tn != "" {
				status += ", tracking number " + tn
			}
		}
		b.WriteString("\nTracking Status: ")
		b.WriteString(status)
	}
	if req.Product != nil {
		b.WriteString("\n\nProduct Details: ")
		b.WriteString(compactJSON(req.Product))
	}
	if req.SizeChart != nil {
		b.WriteString("\n\nSize Chart: ")
		b.WriteString(compactJSON(req.SizeChart))
	}
	if req.Recommendation != "" {
		b.WriteString("\nRecommended size: ")
		b.WriteString(req.Recommendation)
	}
	b.WriteString("\n\nParameters: ")
	b.WriteString(compactJSON(req.Params))

	b.WriteString("\n\n")
	switch {
	case req.Instruction != "":
		b.WriteString(req.Instruction)
	case req.Intent == domain.IntentOtherOrder:
		b.WriteString(otherOrderGuidance)
	default:
		b.WriteString(defaultGuidance)
	}

	b.WriteString("\n\n")
	b.WriteString(answerGuidelines)
	b.WriteString("\n- Respond ONLY in ")
	b.WriteString(languageName(req.Language))
	return b.String()
}

func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
