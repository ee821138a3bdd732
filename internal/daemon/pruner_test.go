package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestNewRetentionRejectsBadConfig(t *testing.T) {
	_, err := NewRetention(PrunerConfig{Retention: time.Hour, Schedule: "@hourly"})
	require.Error(t, err)

	_, err = NewRetention(PrunerConfig{Store: &fakeStore{}, Schedule: "@hourly"})
	require.Error(t, err)

	_, err = NewRetention(PrunerConfig{Store: &fakeStore{}, Retention: time.Hour, Schedule: "every tuesday"})
	require.Error(t, err)
}

func TestPruneNowUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{n: 3}
	r, err := NewRetention(PrunerConfig{
		Store: store, Retention: 24 * time.Hour, Schedule: "@hourly",
		Logger: slog.New(slog.DiscardHandler), Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), r.PruneNow(context.Background()))
	require.Len(t, store.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), store.cutoffs[0])
}

func TestPruneNowSwallowsErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	r, err := NewRetention(PrunerConfig{
		Store: store, Retention: time.Hour, Schedule: "@daily",
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	assert.Zero(t, r.PruneNow(context.Background()))
}

func TestRunPrunesOnStartAndStopsWithContext(t *testing.T) {
	store := &fakeStore{}
	r, err := NewRetention(PrunerConfig{
		Store: store, Retention: time.Hour, Schedule: "@daily",
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
