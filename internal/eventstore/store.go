package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-kana/internal/config"
	_ "modernc.org/sqlite"
)

// Record is one journalled synthesis request.
type Record struct {
	ID            int64
	SessionID     string
	Target        string // read back from the session row
	TraceID       string
	Source        string // text or kana
	Speaker       int
	Text          string
	Kana          string
	Moras         int
	SpeechSeconds float64
	ProcSeconds   float64
	Truncated     bool
	Error         string
	CreatedAt     time.Time
}

// Summary aggregates the journal.
type Summary struct {
	Requests      int64
	Failures      int64
	Moras         int64
	SpeechSeconds float64
}

// Store wraps a SQLite-backed synthesis journal.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    target TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS syntheses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    trace_id TEXT,
    source TEXT NOT NULL,
    speaker INTEGER NOT NULL,
    input_text TEXT,
    kana TEXT,
    moras INTEGER NOT NULL DEFAULT 0,
    speech_seconds REAL NOT NULL DEFAULT 0,
    proc_seconds REAL NOT NULL DEFAULT 0,
    truncated INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_syntheses_session_created ON syntheses(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Healthy reports whether the journal can be written.
func (s *Store) Healthy(ctx context.Context) bool {
	if s.db == nil {
		return true
	}
	return s.db.PingContext(ctx) == nil
}

// AppendSession ensures a session row exists.
func (s *Store) AppendSession(ctx context.Context, sessionID, target string) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, target, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET target=COALESCE(NULLIF(excluded.target, ''), sessions.target)`,
		sessionID, target, s.clock().UTC())
	return err
}

// Append writes a synthesis record, creating its session row when missing.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if rec.SessionID == "" {
		return errors.New("record session id must not be empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, target, created_at) VALUES(?, '', ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		rec.SessionID, rec.CreatedAt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO syntheses(session_id, trace_id, source, speaker, input_text, kana, moras,
		     speech_seconds, proc_seconds, truncated, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TraceID, rec.Source, rec.Speaker, rec.Text, rec.Kana, rec.Moras,
		rec.SpeechSeconds, rec.ProcSeconds, rec.Truncated, rec.Error, rec.CreatedAt)
	return err
}

// ListSession retrieves up to limit records for a session ordered ascending by time.
func (s *Store) ListSession(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT y.id, y.session_id, s.target, y.trace_id, y.source, y.speaker, y.input_text, y.kana, y.moras,
		        y.speech_seconds, y.proc_seconds, y.truncated, y.error, y.created_at
		 FROM syntheses y JOIN sessions s ON s.session_id = y.session_id
		 WHERE y.session_id = ? ORDER BY y.created_at ASC, y.id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                                    Record
			target, traceID, text, kana, errText sql.NullString
			created                              string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &target, &traceID, &r.Source, &r.Speaker, &text, &kana, &r.Moras,
			&r.SpeechSeconds, &r.ProcSeconds, &r.Truncated, &errText, &created); err != nil {
			return nil, err
		}
		r.Target, r.TraceID, r.Text, r.Kana, r.Error = target.String, traceID.String, text.String, kana.String, errText.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summarize aggregates every record in the journal.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return Summary{}, nil
	}
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN error IS NOT NULL AND error != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(moras), 0),
		        COALESCE(SUM(speech_seconds), 0)
		 FROM syntheses`).Scan(&sum.Requests, &sum.Failures, &sum.Moras, &sum.SpeechSeconds)
	return sum, err
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM syntheses WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
