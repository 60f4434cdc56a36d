package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedStatus returns statuses in order, repeating the last one.
type scriptedStatus struct {
	mu       sync.Mutex
	statuses []maindomain.CallStatus
	errs     []error
	calls    int
}

func (s *scriptedStatus) PlaceCall(context.Context, string, string, string) (string, error) {
	return "CA123", nil
}

func (s *scriptedStatus) GetCallStatus(context.Context, string) (maindomain.CallStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

// newFakeClockPoller advances a fake clock by each requested sleep.
func newFakeClockPoller(tel *scriptedStatus, cfg PollConfig, metrics *observability.Metrics) *CallPoller {
	p := NewCallPoller(tel, cfg, metrics, zap.NewNop())
	var mu sync.Mutex
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		clock = clock.Add(d)
		mu.Unlock()
		return nil
	}
	return p
}

func TestCallPoller_StopsOnTerminalStatus(t *testing.T) {
	tel := &scriptedStatus{statuses: []maindomain.CallStatus{
		maindomain.CallStatusRinging, maindomain.CallStatusInProgress, maindomain.CallStatusCompleted,
	}}
	metrics := observability.NewMetrics()
	p := newFakeClockPoller(tel, DefaultPollConfig(), metrics)

	res, err := p.Wait(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, PollExitTerminal, res.Reason)
	assert.Equal(t, maindomain.CallStatusCompleted, res.Session.Status)
	assert.Equal(t, 3, tel.calls)
	assert.Equal(t, 15*time.Second, res.Session.EndTime.Sub(res.Session.StartTime))
	assert.Equal(t, int64(1), metrics.GetChatSnapshot().CallPollExits[PollExitTerminal])
}

func TestCallPoller_SoftCapProceeds(t *testing.T) {
	tel := &scriptedStatus{statuses: []maindomain.CallStatus{maindomain.CallStatusInProgress}}
	p := newFakeClockPoller(tel, DefaultPollConfig(), observability.NewMetrics())

	res, err := p.Wait(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, PollExitSoftCap, res.Reason)
	// 5s interval, 30s soft cap: six polls.
	assert.Equal(t, 6, tel.calls)
	assert.Equal(t, maindomain.CallStatusInProgress, res.Session.Status)
}

func TestCallPoller_HardCapWithoutSoftCap(t *testing.T) {
	tel := &scriptedStatus{statuses: []maindomain.CallStatus{maindomain.CallStatusRinging}}
	cfg := PollConfig{Interval: 5 * time.Second, HardCap: 300 * time.Second}
	p := newFakeClockPoller(tel, cfg, observability.NewMetrics())

	res, err := p.Wait(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, PollExitHardCap, res.Reason)
	assert.Equal(t, 60, tel.calls)
}

func TestCallPoller_StatusErrorsKeepPolling(t *testing.T) {
	tel := &scriptedStatus{
		statuses: []maindomain.CallStatus{"", "", maindomain.CallStatusBusy},
		errs:     []error{errors.New("bridge down"), errors.New("bridge down")},
	}
	p := newFakeClockPoller(tel, DefaultPollConfig(), observability.NewMetrics())

	res, err := p.Wait(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, PollExitTerminal, res.Reason)
	assert.Equal(t, maindomain.CallStatusBusy, res.Session.Status)
}

func TestCallPoller_CanceledContext(t *testing.T) {
	tel := &scriptedStatus{statuses: []maindomain.CallStatus{maindomain.CallStatusRinging}}
	p := NewCallPoller(tel, PollConfig{Interval: time.Hour, HardCap: 2 * time.Hour}, observability.NewMetrics(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var (
		res PollResult
		err error
	)
	go func() {
		defer close(done)
		res, err = p.Wait(ctx, "CA123")
	}()
	cancel()
	<-done

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PollExitCanceled, res.Reason)
	assert.Zero(t, tel.calls)
}

func TestCallPoller_RealClockShortIntervals(t *testing.T) {
	tel := &scriptedStatus{statuses: []maindomain.CallStatus{maindomain.CallStatusRinging, maindomain.CallStatusNoAnswer}}
	p := NewCallPoller(tel, PollConfig{Interval: time.Millisecond, SoftCap: time.Second, HardCap: 2 * time.Second}, observability.NewMetrics(), zap.NewNop())

	res, err := p.Wait(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, PollExitTerminal, res.Reason)
	assert.Equal(t, maindomain.CallStatusNoAnswer, res.Session.Status)
}
