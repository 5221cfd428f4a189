package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"relai/internal/models"
)

type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewSQLite(databasePath string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, log: log}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
    CREATE TABLE IF NOT EXISTS sessions (
        session_key TEXT PRIMARY KEY,
        state TEXT NOT NULL,
        job_id TEXT,
        data TEXT NOT NULL,
        updated_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS sessions_updated_at ON sessions (updated_at);`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, key string, session models.Session) error {
	session = stamp(session)
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}

	var jobID sql.NullString
	if session.Job != nil {
		jobID = sql.NullString{String: session.Job.ID, Valid: true}
	}

	query := `
    INSERT OR REPLACE INTO sessions (session_key, state, job_id, data, updated_at)
    VALUES (?, ?, ?, ?, ?);`
	if _, err := s.db.ExecContext(ctx, query, key, session.State, jobID, string(data), session.UpdatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	s.log.Debug().Str("session", key).Str("state", string(session.State)).Msg("session saved")
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (models.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE session_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to query session %s: %w", key, err)
	}
	return decodeSession(key, data)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Generating(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, data FROM sessions WHERE state = ? AND job_id IS NOT NULL`,
		models.StateGenerating)
	if err != nil {
		return nil, fmt.Errorf("failed to query generating sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session, err := decodeSession(key, data)
		if err != nil {
			s.log.Warn().Err(err).Str("session", key).Msg("skipping unreadable session")
			continue
		}
		out = append(out, Record{Key: key, Session: session})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT session_key FROM sessions WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff.UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit prune: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeSession(key, data string) (models.Session, error) {
	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return models.Session{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return session, nil
}

var _ Store = (*SQLiteStore)(nil)
