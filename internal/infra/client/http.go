// Package client holds the outbound HTTP adapters: Shopify, Google Places,
// the outbound-call bridge and Postmark.
//
// Every adapter runs behind its own circuit breaker and surfaces the first
// failure; only the language-model adapter retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("client")

const maxErrorBody = 512

// execute runs fn through the breaker and maps failures to domain errors.
// Context errors pass through untouched so callers can tell timeouts apart.
func execute[T any](cb *gobreaker.CircuitBreaker, service string, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (any, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		var zero T
		switch {
		case resilience.IsBreakerOpen(err):
			return zero, &domain.ErrCircuitOpen{Service: service}
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return zero, err
		}
		return zero, &domain.ErrExternalService{Service: service, Err: err}
	}
	return result.(T), nil
}

// newJSONRequest builds a request with a JSON body (nil body for GET).
func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON sends req and decodes a 2xx body into out. Non-2xx answers become
// *domain.ErrUpstreamStatus carrying a truncated body.
func doJSON(httpClient *http.Client, service string, req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ErrUpstreamStatus{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
