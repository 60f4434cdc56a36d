package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/port"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Classifier
// ============================================================

// Classifier turns a message plus history into a ClassifiedMessage.
// It never fails: every error path degrades to DefaultClassification.
type Classifier struct {
	llm        port.Completer
	catalog    *Catalog
	returnsURL string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClassifier creates a Classifier. catalog may be nil.
func NewClassifier(llm port.Completer, catalog *Catalog, returnsURL string, metrics *observability.Metrics, logger *zap.Logger) *Classifier {
	return &Classifier{
		llm:        llm,
		catalog:    catalog,
		returnsURL: returnsURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// Classify calls the model at temperature 0 in JSON mode and post-processes
// the result against the history.
func (c *Classifier) Classify(ctx context.Context, message string, history []domain.ConversationTurn) domain.ClassifiedMessage {
	ctx, span := chatTracer.Start(ctx, "Classifier.Classify")
	defer span.End()

	if strings.TrimSpace(message) == "" {
		return c.record(domain.DefaultClassification())
	}

	var titles []string
	if c.catalog != nil {
		titles = c.catalog.Titles(ctx)
	}

	msgs := make([]domain.LLMMessage, 0, len(history)+2)
	msgs = append(msgs, domain.LLMMessage{Role: domain.RoleSystem, Content: buildClassificationPrompt(titles)})
	for _, turn := range history {
		msgs = append(msgs, domain.LLMMessage{Role: historyRole(turn.Role), Content: sanitize(turn.Content)})
	}
	msgs = append(msgs, domain.LLMMessage{Role: domain.RoleUser, Content: sanitize(message)})

	out, err := c.llm.Complete(ctx, &domain.CompletionRequest{
		Messages:    msgs,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		// The caller decides whether a deadline becomes a timeout response.
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			c.logger.Warn("classification timed out", zap.Error(err))
		} else {
			c.logger.Warn("classification failed, using default", zap.Error(err))
		}
		span.RecordError(err)
		return c.record(domain.DefaultClassification())
	}

	cm, ok := parseClassification(out.Text)
	if !ok {
		c.logger.Warn("unparseable classification, using default",
			zap.Int("completion_length", len(out.Text)),
		)
		return c.record(domain.DefaultClassification())
	}

	cm = c.enrich(cm, message, history)
	span.SetAttributes(
		attribute.String("chat.intent", string(cm.Intent)),
		attribute.String("chat.language", string(cm.Language)),
	)
	return c.record(cm)
}

func (c *Classifier) record(cm domain.ClassifiedMessage) domain.ClassifiedMessage {
	if c.metrics != nil {
		c.metrics.IncrClassification(string(cm.Intent))
	}
	return cm
}

// ============================================================
// Parsing
// ============================================================

// rawClassification is the loose wire shape returned by the model.
type rawClassification struct {
	Intent     *string         `json:"intent"`
	Parameters json.RawMessage `json:"parameters"`
	Language   string          `json:"language"`
}

func (r rawClassification) toClassification() (domain.ClassifiedMessage, bool) {
	if r.Intent == nil || len(r.Parameters) == 0 || string(r.Parameters) == "null" {
		return domain.ClassifiedMessage{}, false
	}
	var params domain.Parameters
	if err := json.Unmarshal(r.Parameters, &params); err != nil {
		return domain.ClassifiedMessage{}, false
	}

	intent, known := domain.ParseIntent(strings.TrimSpace(*r.Intent))
	if !known {
		intent = domain.IntentOtherGeneral
	}
	lang := domain.LanguageEnglish
	if strings.EqualFold(strings.TrimSpace(r.Language), string(domain.LanguageSpanish)) {
		lang = domain.LanguageSpanish
	}
	return domain.ClassifiedMessage{Intent: intent, Parameters: params, Language: lang}, true
}

// parseClassification accepts the whole completion as JSON or, failing that,
// the first balanced object embedded in it.
func parseClassification(text string) (domain.ClassifiedMessage, bool) {
	if cm, ok := parseStrict(text); ok {
		return cm, true
	}
	obj, ok := firstJSONObject(text)
	if !ok {
		return domain.ClassifiedMessage{}, false
	}
	return parseStrict(obj)
}

// firstJSONObject returns the first balanced {...} substring, ignoring
// braces inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
