// Package db is the utterance journal: one row per finalized or aborted
// capture, plus capture source lifecycle events.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one journaled utterance.
type Entry struct {
	ID         string        `json:"id"`
	Trigger    string        `json:"trigger"`
	Keyword    string        `json:"keyword,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Outcome    string        `json:"outcome"`
	Transcript string        `json:"transcript,omitempty"`
	Question   string        `json:"question,omitempty"`
	Answer     string        `json:"answer,omitempty"`
	Error      string        `json:"error,omitempty"`
	Audio      time.Duration `json:"audio"`
	Elapsed    time.Duration `json:"elapsed"`
	StartedAt  time.Time     `json:"started_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SourceEvent records a capture stream opening, ending, or failing.
type SourceEvent struct {
	Source    string    `json:"source"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the journal connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e. Re-recording an id replaces the earlier row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO utterances
			(id, trigger_kind, keyword, confidence, reason, outcome, transcript, question, answer, error, audio_ms, elapsed_ms, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Trigger, e.Keyword, e.Confidence, e.Reason, e.Outcome, e.Transcript, e.Question, e.Answer, e.Error,
		e.Audio.Milliseconds(), e.Elapsed.Milliseconds(), e.StartedAt.UnixMilli(), e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record utterance %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty outcome
// matches all.
func (s *Store) Recent(ctx context.Context, limit int, outcome string) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, keyword, confidence, reason, outcome, transcript, question, answer, error, audio_ms, elapsed_ms, started_at, created_at
		FROM utterances
		WHERE (? = '' OR outcome = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, outcome, outcome, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			audioMS, elapsedMS int64
			started, created   int64
		)
		if err := rows.Scan(&e.ID, &e.Trigger, &e.Keyword, &e.Confidence, &e.Reason, &e.Outcome, &e.Transcript,
			&e.Question, &e.Answer, &e.Error, &audioMS, &elapsedMS, &started, &created); err != nil {
			return nil, err
		}
		e.Audio = time.Duration(audioMS) * time.Millisecond
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		e.StartedAt = time.UnixMilli(started)
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of entries per outcome.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM utterances GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// RecordSource appends a source lifecycle event.
func (s *Store) RecordSource(ctx context.Context, ev SourceEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_events (source, event, detail, created_at) VALUES (?, ?, ?, ?)`,
		ev.Source, ev.Event, ev.Detail, ev.CreatedAt.UnixMilli())
	return err
}

// SourceEvents returns up to limit events, newest first.
func (s *Store) SourceEvents(ctx context.Context, limit int) ([]SourceEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, event, detail, created_at FROM source_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceEvent
	for rows.Next() {
		var (
			ev      SourceEvent
			created int64
		)
		if err := rows.Scan(&ev.Source, &ev.Event, &ev.Detail, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.UnixMilli(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune deletes utterances and source events created before cutoff and
// returns how many rows went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, table := range []string{"utterances", "source_events"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, tx.Commit()
}
