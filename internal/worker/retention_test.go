package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/bhadresh-123/phicore/internal/model"
)

type stubAuditRepo struct {
	expunged int64
	err      error
	calls    int
	lastCut  time.Time
}

func (s *stubAuditRepo) Append(context.Context, *model.AuditLogEntry) error { return nil }

func (s *stubAuditRepo) List(context.Context, map[string]interface{}) ([]*model.AuditLogEntry, error) {
	return nil, nil
}

func (s *stubAuditRepo) ExpungeExpired(_ context.Context, now time.Time) (int64, error) {
	s.calls++
	s.lastCut = now
	return s.expunged, s.err
}

func TestSweepExpungesExpired(t *testing.T) {
	repo := &stubAuditRepo{expunged: 5}
	nop := zerolog.Nop()
	w := NewRetentionSweeper(repo, time.Hour, &nop, nil)

	before := time.Now()
	w.sweep(context.Background())

	assert.Equal(t, 1, repo.calls)
	assert.False(t, repo.lastCut.Before(before), "cutoff must be the sweep time, never a future date")
}

func TestSweepSurvivesRepositoryError(t *testing.T) {
	repo := &stubAuditRepo{err: errors.New("connection refused")}
	nop := zerolog.Nop()
	w := NewRetentionSweeper(repo, time.Hour, &nop, nil)

	w.sweep(context.Background())
	w.sweep(context.Background())

	assert.Equal(t, 2, repo.calls, "a failed sweep must not stop future sweeps")
}

func TestStartStopsOnContextCancel(t *testing.T) {
	repo := &stubAuditRepo{}
	nop := zerolog.Nop()
	w := NewRetentionSweeper(repo, time.Millisecond, &nop, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
	assert.Greater(t, repo.calls, 0)
}
