package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relai/internal/models"
	"relai/internal/storage"
	"relai/internal/workflow"
)

type entry struct {
	ctrl     *workflow.Controller
	lastSeen time.Time
}

// Manager owns one workflow controller per user, creating it lazily and
// restoring it from the store on first use.
type Manager struct {
	store         storage.Store
	newController func() *workflow.Controller
	now           func() time.Time
	log           zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(store storage.Store, newController func() *workflow.Controller, log zerolog.Logger) *Manager {
	return &Manager{
		store:         store,
		newController: newController,
		now:           time.Now,
		log:           log,
		sessions:      make(map[string]*entry),
	}
}

// Get returns the controller for key. restored is true when the controller
// was rebuilt from a persisted snapshot.
func (m *Manager) Get(ctx context.Context, key string) (ctrl *workflow.Controller, restored bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[key]; ok {
		e.lastSeen = m.now()
		return e.ctrl, false, nil
	}

	ctrl = m.newController()
	snapshot, err := m.store.Load(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		ctrl.Close()
		return nil, false, fmt.Errorf("load session %s: %w", key, err)
	default:
		if err := ctrl.Restore(snapshot); err != nil {
			m.log.Warn().Err(err).Str("session", key).Msg("discarding unrestorable session")
		} else {
			restored = true
			m.log.Info().Str("session", key).Str("state", string(ctrl.State())).Msg("session restored")
		}
	}

	m.sessions[key] = &entry{ctrl: ctrl, lastSeen: m.now()}
	return ctrl, restored, nil
}

// Save persists the current snapshot of key's controller.
func (m *Manager) Save(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.store.Save(ctx, key, e.ctrl.Snapshot())
}

// ResumeGenerating restores every persisted session that was waiting on a
// job, which restarts its polling, and returns their keys.
func (m *Manager) ResumeGenerating(ctx context.Context) ([]string, error) {
	records, err := m.store.Generating(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, r := range records {
		ctrl, _, err := m.Get(ctx, r.Key)
		if err != nil {
			m.log.Error().Err(err).Str("session", r.Key).Msg("failed to resume session")
			continue
		}
		if ctrl.State() == models.StateGenerating {
			keys = append(keys, r.Key)
		}
	}
	return keys, nil
}

// Prune drops sessions idle since cutoff, in memory and in the store.
// Sessions still generating are kept.
func (m *Manager) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	pruned := make(map[string]struct{})

	m.mu.Lock()
	var stale []*workflow.Controller
	for key, e := range m.sessions {
		if e.lastSeen.Before(cutoff) && e.ctrl.State() != models.StateGenerating {
			stale = append(stale, e.ctrl)
			pruned[key] = struct{}{}
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, ctrl := range stale {
		ctrl.Close()
	}

	keys, err := m.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return len(pruned), err
	}
	for _, key := range keys {
		// still polling in this process, write it back
		m.mu.Lock()
		e, ok := m.sessions[key]
		m.mu.Unlock()
		if ok {
			if err := m.store.Save(ctx, key, e.ctrl.Snapshot()); err != nil {
				m.log.Warn().Err(err).Str("session", key).Msg("failed to keep live session")
			}
			continue
		}
		pruned[key] = struct{}{}
	}

	m.log.Debug().Int("memory", len(stale)).Int("stored", len(keys)).Msg("pruned idle sessions")
	return len(pruned), nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every controller. Snapshots are not written.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range sessions {
		e.ctrl.Close()
	}
}
