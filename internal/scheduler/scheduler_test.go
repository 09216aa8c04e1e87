package scheduler

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dhanushfitness/managementTool-sub002/internal/expiry"
)

type stubSweeper struct {
	calls   int32
	block   chan struct{}
	started chan struct{}
}

func (s *stubSweeper) Run(ctx context.Context) (expiry.Summary, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return expiry.Summary{}, ctx.Err()
		}
	}
	return expiry.Summary{Notified: 2}, nil
}

func quiet() Option { return WithLogger(log.New(io.Discard, "", 0)) }

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New(&stubSweeper{}, "not a cron", quiet())
	require.Error(t, err)
}

func TestTriggerRunsSweep(t *testing.T) {
	sweeper := &stubSweeper{}
	s, err := New(sweeper, "", quiet())
	require.NoError(t, err)

	summary, err := s.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Notified)
	require.Equal(t, int32(1), atomic.LoadInt32(&sweeper.calls))
}

func TestTriggerDoesNotOverlap(t *testing.T) {
	sweeper := &stubSweeper{block: make(chan struct{}), started: make(chan struct{})}
	s, err := New(sweeper, "", quiet())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background())
		done <- err
	}()
	<-sweeper.started

	_, err = s.Trigger(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(sweeper.block)
	require.NoError(t, <-done)
}

func TestNextUsesLocation(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	s, err := New(&stubSweeper{}, "5 0 * * *", quiet(), WithLocation(kolkata))
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return !s.Next().IsZero() }, time.Second, 10*time.Millisecond)
	next := s.Next().In(kolkata)
	require.Equal(t, 0, next.Hour())
	require.Equal(t, 5, next.Minute())
}
