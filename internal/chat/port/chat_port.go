// Package port defines the language-model port used by the chat pipeline.
//
// The Classifier and the Responder depend on this interface and not on a
// concrete provider, so OpenAI and Gemini adapters are interchangeable and
// tests can script completions.
package port

import (
	"context"

	chatdomain "github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
)

// Completer runs one chat completion against a language model.
//
// Implementations return errors wrapped in resilience.Permanent for
// failures that must not be retried (4xx other than 429).
type Completer interface {
	Complete(ctx context.Context, req *chatdomain.CompletionRequest) (*chatdomain.Completion, error)
}
