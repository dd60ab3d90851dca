// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/touchx/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Store wraps SQLite access for recorded sessions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			double_tap_timeout_ms INTEGER NOT NULL,
			touch_slop REAL NOT NULL,
			announce_single_tap INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			touch_id INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			flags INTEGER NOT NULL,
			key_code INTEGER NOT NULL,
			name TEXT NOT NULL,
			time_ns INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS session_transitions (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			time_ns INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_session_transitions_to ON session_transitions(to_state);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSession stores a session with its events and transitions. An empty
// session id is replaced by a fresh UUID, which is returned.
func (s *Store) InsertSession(ctx context.Context, sess model.Session, events []model.EventRecord, transitions []model.TransitionRecord) (id string, err error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	announce := 0
	if sess.AnnounceSingleTap {
		announce = 1
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, source, name, started_at, ended_at, double_tap_timeout_ms, touch_slop, announce_single_tap)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Source,
		sess.Name,
		sess.StartedAt.Format(time.RFC3339Nano),
		sess.EndedAt.Format(time.RFC3339Nano),
		sess.DoubleTapTimeoutMs,
		sess.TouchSlop,
		announce,
	); err != nil {
		return "", err
	}

	if len(events) > 0 {
		if err = insertEach(ctx, tx,
			`INSERT INTO session_events (session_id, seq, direction, status, type, touch_id, x, y, flags, key_code, name, time_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			len(events), func(i int) []any {
				ev := events[i]
				return []any{sess.ID, ev.Seq, ev.Direction, ev.Status, ev.Type, ev.TouchID, ev.X, ev.Y, int64(ev.Flags), ev.KeyCode, ev.Name, ev.TimeNs}
			}); err != nil {
			return "", err
		}
	}
	if len(transitions) > 0 {
		if err = insertEach(ctx, tx,
			`INSERT INTO session_transitions (session_id, seq, from_state, to_state, time_ns)
			 VALUES (?, ?, ?, ?, ?)`,
			len(transitions), func(i int) []any {
				tr := transitions[i]
				return []any{sess.ID, tr.Seq, tr.From, tr.To, tr.TimeNs}
			}); err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return sess.ID, nil
}

func insertEach(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	return nil
}

// ListSessions returns session aggregates filtered by stats config, oldest
// first. Last keeps only the most recent sessions.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Source != "" {
		clauses = append(clauses, "s.source = ?")
		args = append(args, cfg.Source)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "s.ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT s.id, s.source, s.name, s.started_at, s.ended_at,
			COALESCE(SUM(CASE WHEN e.direction = 'in' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.direction = 'in' AND e.status = 'discard' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.direction = 'in' AND e.status = 'rewritten' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.direction = 'in' AND e.status = 'continue' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.direction = 'out' AND e.status = 'dispatch' THEN 1 ELSE 0 END), 0)
		FROM sessions s
		LEFT JOIN session_events e ON e.session_id = s.id
		WHERE %s
		GROUP BY s.id
		ORDER BY s.ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionAggregate
	for rows.Next() {
		var agg model.SessionAggregate
		var startedAt, endedAt string
		if err := rows.Scan(&agg.SessionID, &agg.Source, &agg.Name, &startedAt, &endedAt,
			&agg.Inputs, &agg.Discarded, &agg.Rewritten, &agg.Passed, &agg.Dispatched); err != nil {
			return nil, err
		}
		started, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, err
		}
		ended, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = ended
		agg.DurationMs = ended.Sub(started).Milliseconds()
		sessions = append(sessions, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}
	return sessions, nil
}

// CountTransitions counts state changes across sessions.
func (s *Store) CountTransitions(ctx context.Context, sessionIDs []string) ([]model.TransitionCount, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sessionIDs))
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT from_state, to_state, COUNT(*)
		FROM session_transitions
		WHERE session_id IN (%s)
		GROUP BY from_state, to_state
		ORDER BY from_state, to_state`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.TransitionCount
	for rows.Next() {
		var tc model.TransitionCount
		if err := rows.Scan(&tc.From, &tc.To, &tc.Count); err != nil {
			return nil, err
		}
		result = append(result, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSession loads a session with its events and transitions in order.
func (s *Store) GetSession(ctx context.Context, id string) (model.Session, []model.EventRecord, []model.TransitionRecord, error) {
	var sess model.Session
	var startedAt, endedAt string
	var announce int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, name, started_at, ended_at, double_tap_timeout_ms, touch_slop, announce_single_tap
		 FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Source, &sess.Name, &startedAt, &endedAt, &sess.DoubleTapTimeoutMs, &sess.TouchSlop, &announce)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Session{}, nil, nil, err
	}
	sess.AnnounceSingleTap = announce != 0
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return model.Session{}, nil, nil, err
	}
	if sess.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return model.Session{}, nil, nil, err
	}

	events, err := s.listEvents(ctx, id)
	if err != nil {
		return model.Session{}, nil, nil, err
	}
	transitions, err := s.listTransitions(ctx, id)
	if err != nil {
		return model.Session{}, nil, nil, err
	}
	return sess, events, transitions, nil
}

func (s *Store) listEvents(ctx context.Context, id string) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, direction, status, type, touch_id, x, y, flags, key_code, name, time_ns
		 FROM session_events WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.EventRecord
	for rows.Next() {
		var ev model.EventRecord
		var flags int64
		if err := rows.Scan(&ev.Seq, &ev.Direction, &ev.Status, &ev.Type, &ev.TouchID, &ev.X, &ev.Y, &flags, &ev.KeyCode, &ev.Name, &ev.TimeNs); err != nil {
			return nil, err
		}
		ev.Flags = uint32(flags)
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (s *Store) listTransitions(ctx context.Context, id string) ([]model.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, from_state, to_state, time_ns
		 FROM session_transitions WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.TransitionRecord
	for rows.Next() {
		var tr model.TransitionRecord
		if err := rows.Scan(&tr.Seq, &tr.From, &tr.To, &tr.TimeNs); err != nil {
			return nil, err
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

// DeleteSession removes a session and everything recorded with it.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM session_events WHERE session_id = ?`,
		`DELETE FROM session_transitions WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}
