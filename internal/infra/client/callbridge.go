package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const callBridgeService = "telephony"

// CallBridgeClient drives the outbound voice-call bridge, which dials the
// carrier and hands the line to a conversational voice agent.
type CallBridgeClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewCallBridgeClient creates a new CallBridgeClient.
func NewCallBridgeClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *CallBridgeClient {
	return &CallBridgeClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		logger:     logger,
	}
}

type outboundCallRequest struct {
	Number       string `json:"number"`
	Prompt       string `json:"prompt"`
	FirstMessage string `json:"first_message"`
}

type outboundCallResponse struct {
	Success bool   `json:"success"`
	CallSID string `json:"callSid"`
	Error   string `json:"error"`
}

// PlaceCall dials toNumber with the agent prompt and opening line and
// returns the call sid.
func (c *CallBridgeClient) PlaceCall(ctx context.Context, toNumber, prompt, openingLine string) (string, error) {
	ctx, span := tracer.Start(ctx, "CallBridgeClient.PlaceCall")
	defer span.End()

	sid, err := execute(c.cb, callBridgeService, func() (string, error) {
		req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+"/outbound-call", outboundCallRequest{
			Number:       toNumber,
			Prompt:       prompt,
			FirstMessage: openingLine,
		})
		if err != nil {
			return "", err
		}
		var resp outboundCallResponse
		if err := doJSON(c.httpClient, callBridgeService, req, &resp); err != nil {
			return "", err
		}
		if !resp.Success || resp.CallSID == "" {
			msg := resp.Error
			if msg == "" {
				msg = "call bridge returned no call sid"
			}
			return "", errors.New(msg)
		}
		return resp.CallSID, nil
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("call.sid", sid))
	c.logger.Info("outbound call initiated", zap.String("call_sid", sid))
	return sid, nil
}

type callStatusResponse struct {
	Success bool   `json:"success"`
	CallSID string `json:"callSid"`
	Status  string `json:"status"`
}

// GetCallStatus reads the current state of a call. Statuses the bridge
// reports that are not known map to domain.CallStatusUnknown.
func (c *CallBridgeClient) GetCallStatus(ctx context.Context, callSID string) (domain.CallStatus, error) {
	ctx, span := tracer.Start(ctx, "CallBridgeClient.GetCallStatus")
	defer span.End()
	span.SetAttributes(attribute.String("call.sid", callSID))

	status, err := execute(c.cb, callBridgeService, func() (domain.CallStatus, error) {
		req, err := newJSONRequest(ctx, http.MethodGet, c.baseURL+"/call-status/"+url.PathEscape(callSID), nil)
		if err != nil {
			return "", err
		}
		var resp callStatusResponse
		if err := doJSON(c.httpClient, callBridgeService, req, &resp); err != nil {
			return "", err
		}
		return parseCallStatus(resp.Status), nil
	})
	if err != nil {
		return domain.CallStatusUnknown, err
	}

	span.SetAttributes(attribute.String("call.status", string(status)))
	return status, nil
}

func parseCallStatus(s string) domain.CallStatus {
	switch st := domain.CallStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case domain.CallStatusInitiated, domain.CallStatusRinging, domain.CallStatusInProgress,
		domain.CallStatusCompleted, domain.CallStatusFailed, domain.CallStatusBusy,
		domain.CallStatusNoAnswer, domain.CallStatusCanceled:
		return st
	case "queued":
		return domain.CallStatusInitiated
	}
	return domain.CallStatusUnknown
}
