package storage

import (
	"context"
	"errors"
	"time"

	"relai/internal/models"
)

var ErrNotFound = errors.New("session not found")

// Record is a persisted session and the key it was stored under.
type Record struct {
	Key     string
	Session models.Session
}

// Store persists workflow snapshots between restarts.
type Store interface {
	Save(ctx context.Context, key string, s models.Session) error
	Load(ctx context.Context, key string) (models.Session, error)
	Delete(ctx context.Context, key string) error
	// Generating lists sessions whose job was still being polled.
	Generating(ctx context.Context) ([]Record, error)
	// PruneBefore removes sessions untouched since cutoff and returns their keys.
	PruneBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Close() error
}

func stamp(s models.Session) models.Session {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	return s
}
