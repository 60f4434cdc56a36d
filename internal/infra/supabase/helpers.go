package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/resilience"
)

// ============================================================
// HTTP helpers for GET, POST, PATCH
// ============================================================

// doGet reads rows into out. Reads are idempotent and retried on 429/5xx
// and network errors.
func (c *Client) doGet(ctx context.Context, path string, out any) error {
	return c.execute(func() error {
		return resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, path, nil)
			if err != nil {
				var status *domain.ErrUpstreamStatus
				if errors.As(err, &status) && !status.Retryable() {
					return resilience.Permanent(err)
				}
				return err
			}
			return json.Unmarshal(body, out)
		})
	})
}

// doPost inserts one row and decodes the returned representation into out.
func (c *Client) doPost(ctx context.Context, table string, data any, out any) error {
	return c.doWrite(ctx, http.MethodPost, table, data, out)
}

// doPatch updates the rows matched by path and decodes them into out.
func (c *Client) doPatch(ctx context.Context, path string, data any, out any) error {
	return c.doWrite(ctx, http.MethodPatch, path, data, out)
}

func (c *Client) doWrite(ctx context.Context, method, path string, data any, out any) error {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.execute(func() error {
		body, err := c.doRequest(ctx, method, path, bytes.NewReader(jsonBody))
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(body, out)
	})
}

// execute runs fn through the breaker. Conflicts (409) are returned as
// *domain.ErrConflict; other failures as *domain.ErrExternalService.
func (c *Client) execute(fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}

	var status *domain.ErrUpstreamStatus
	switch {
	case resilience.IsBreakerOpen(err):
		return &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &status) && status.StatusCode == http.StatusConflict:
		return &domain.ErrConflict{Message: "row already exists"}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
