package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "hotword.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Record(ctx, Entry{
		ID: "a", Trigger: "wake", Keyword: "jarvis", Confidence: 0.97, Reason: "silence",
		Outcome: "forwarded", Transcript: "qué hora es", Question: "qué hora es", Answer: "las tres",
		Audio: 1312 * time.Millisecond, Elapsed: 900 * time.Millisecond,
		StartedAt: base, CreatedAt: base.Add(time.Second),
	}))
	require.NoError(t, s.Record(ctx, Entry{
		ID: "b", Trigger: "speech", Outcome: "ignored", Transcript: "hola",
		StartedAt: base, CreatedAt: base.Add(2 * time.Second),
	}))

	got, err := s.Recent(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "jarvis", got[1].Keyword)
	assert.Equal(t, 1312*time.Millisecond, got[1].Audio)
	assert.True(t, base.Equal(got[1].StartedAt))

	forwarded, err := s.Recent(ctx, 10, "forwarded")
	require.NoError(t, err)
	require.Len(t, forwarded, 1)
	assert.Equal(t, "las tres", forwarded[0].Answer)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"forwarded": 1, "ignored": 1}, counts)
}

func TestRecordReplacesSameID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ID: "a", Trigger: "wake", Outcome: "aborted"}))
	require.NoError(t, s.Record(ctx, Entry{ID: "a", Trigger: "wake", Outcome: "forwarded"}))

	got, err := s.Recent(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "forwarded", got[0].Outcome)
}

func TestSourceEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSource(ctx, SourceEvent{Source: "parec", Event: "opened"}))
	require.NoError(t, s.RecordSource(ctx, SourceEvent{Source: "parec", Event: "ended", Detail: "end of stream"}))

	got, err := s.SourceEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ended", got[0].Event)
	assert.Equal(t, "opened", got[1].Event)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotword.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Entry{ID: "a", Trigger: "wake", Outcome: "empty"}))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(context.Background(), 5, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPruneDropsOldRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Record(ctx, Entry{ID: "old", Trigger: "wake", Outcome: "empty", CreatedAt: base}))
	require.NoError(t, s.Record(ctx, Entry{ID: "new", Trigger: "wake", Outcome: "forwarded", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.RecordSource(ctx, SourceEvent{Source: "command", Event: "opened", CreatedAt: base}))

	n, err := s.Prune(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.Recent(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)

	events, err := s.SourceEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
