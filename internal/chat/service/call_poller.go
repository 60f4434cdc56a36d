package service

import (
	"context"
	"time"

	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// Outbound call status polling
// ============================================================
//
//	          ┌──────── status not terminal ────────┐
//	          ▼                                      │
//	placed ─► sleep(interval) ─► GetCallStatus ──────┘
//	                                │
//	                                ├─ terminal status        → exit "terminal"
//	                                ├─ elapsed ≥ soft cap     → exit "soft_cap"
//	                                ├─ elapsed ≥ hard cap     → exit "hard_cap"
//	                                └─ ctx done               → exit "canceled" (error)

// Poll exit reasons, also used as metric labels.
const (
	PollExitTerminal = "terminal"
	PollExitSoftCap  = "soft_cap"
	PollExitHardCap  = "hard_cap"
	PollExitCanceled = "canceled"
)

// PollConfig bounds the wait on an outbound call.
// SoftCap 0 disables the soft cap; HardCap always applies.
type PollConfig struct {
	Interval time.Duration
	SoftCap  time.Duration
	HardCap  time.Duration
}

// DefaultPollConfig is 5s polling, proceed after 30s, give up after 300s.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: 5 * time.Second,
		SoftCap:  30 * time.Second,
		HardCap:  300 * time.Second,
	}
}

// PollResult is how the wait ended.
type PollResult struct {
	Session maindomain.CallSession
	Reason  string
}

// CallPoller waits for an outbound call to settle.
type CallPoller struct {
	telephony port.Telephony
	cfg       PollConfig
	metrics   *observability.Metrics
	logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCallPoller creates a poller using the wall clock.
func NewCallPoller(telephony port.Telephony, cfg PollConfig, metrics *observability.Metrics, logger *zap.Logger) *CallPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig().Interval
	}
	if cfg.HardCap <= 0 {
		cfg.HardCap = DefaultPollConfig().HardCap
	}
	return &CallPoller{
		telephony: telephony,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Wait polls callSID until one of the exit conditions holds. Only context
// cancellation returns an error; status lookup failures keep the loop going.
func (p *CallPoller) Wait(ctx context.Context, callSID string) (PollResult, error) {
	ctx, span := chatTracer.Start(ctx, "CallPoller.Wait")
	defer span.End()

	session := maindomain.CallSession{
		CallSID:   callSID,
		Status:    maindomain.CallStatusInitiated,
		StartTime: p.now(),
	}

	for {
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			return p.exit(session, PollExitCanceled), err
		}

		status, err := p.telephony.GetCallStatus(ctx, callSID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return p.exit(session, PollExitCanceled), ctx.Err()
			}
			p.logger.Warn("call status lookup failed",
				zap.String("call_sid", callSID),
				zap.Error(err),
			)
		default:
			session.Status = status
		}

		if session.Status.IsTerminal() {
			return p.exit(session, PollExitTerminal), nil
		}

		elapsed := p.now().Sub(session.StartTime)
		if p.cfg.SoftCap > 0 && elapsed >= p.cfg.SoftCap {
			return p.exit(session, PollExitSoftCap), nil
		}
		if elapsed >= p.cfg.HardCap {
			return p.exit(session, PollExitHardCap), nil
		}
	}
}

func (p *CallPoller) exit(session maindomain.CallSession, reason string) PollResult {
	session.EndTime = p.now()
	if p.metrics != nil {
		p.metrics.IncrCallPollExit(reason)
	}
	p.logger.Info("call poll finished",
		zap.String("call_sid", session.CallSID),
		zap.String("status", string(session.Status)),
		zap.String("reason", reason),
		zap.Duration("elapsed", session.EndTime.Sub(session.StartTime)),
	)
	return PollResult{Session: session, Reason: reason}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
