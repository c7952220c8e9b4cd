package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"property_due_alerts/internal/app"
	"property_due_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
	block bool
}

func (f *fakeRunner) RunScanAndDispatchCycle(ctx context.Context, asOf time.Time) (*app.CycleReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, asOf)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return &app.CycleReport{AsOf: asOf}, ctx.Err()
	}
	return &app.CycleReport{AsOf: asOf, Sent: 1}, f.err
}

func TestRunOnce_UsesCalendarDayInLocation(t *testing.T) {
	runner := &fakeRunner{}
	tokyo := time.FixedZone("JST", 9*60*60)
	s := NewAlertScheduler(runner, testutil.Logger(), "0 9 * * *", tokyo)
	// 2024-02-29 20:00 UTC is already 2024-03-01 in Tokyo.
	s.now = func() time.Time { return time.Date(2024, 2, 29, 20, 0, 0, 0, time.UTC) }

	report, err := s.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, testutil.Date("2024-03-01"), runner.calls[0])
}

func TestRunOnce_PropagatesError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("store down")}
	s := NewAlertScheduler(runner, testutil.Logger(), "0 9 * * *", time.UTC)

	_, err := s.RunOnce()
	assert.EqualError(t, err, "store down")
}

func TestStart_RejectsBadSpec(t *testing.T) {
	s := NewAlertScheduler(&fakeRunner{}, testutil.Logger(), "not a cron spec", time.UTC)
	assert.Error(t, s.Start(context.Background()))
}

func TestStop_CancelsRunningCycle(t *testing.T) {
	runner := &fakeRunner{block: true}
	s := NewAlertScheduler(runner, testutil.Logger(), "0 9 * * *", time.UTC)
	require.NoError(t, s.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce()
		done <- err
	}()
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.calls) == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cycle was not cancelled")
	}
}
