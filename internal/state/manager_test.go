package state

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relai/internal/models"
	"relai/internal/storage"
	"relai/internal/workflow"
)

type stubBackend struct {
	mu       sync.Mutex
	statuses int
}

func (b *stubBackend) Upload(ctx context.Context, kind models.AssetKind, f workflow.File) (string, error) {
	return "P1", nil
}

func (b *stubBackend) Suggestions(ctx context.Context, topic, preferences string) ([]models.Suggestion, error) {
	return nil, nil
}

func (b *stubBackend) Generate(ctx context.Context, r workflow.GenerateRequest) (string, error) {
	return "J1", nil
}

func (b *stubBackend) Status(ctx context.Context, jobID string) (workflow.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses++
	return workflow.JobStatus{Status: models.JobCompleted}, nil
}

func (b *stubBackend) Download(ctx context.Context, jobID string) (workflow.MediaRef, error) {
	return workflow.MediaRef{URL: "http://backend/" + jobID}, nil
}

func newTestManager(t *testing.T, store storage.Store) *Manager {
	t.Helper()
	backend := &stubBackend{}
	m := NewManager(store, func() *workflow.Controller {
		return workflow.New(backend, backend, backend, workflow.WithPollInterval(time.Millisecond))
	}, zerolog.Nop())
	t.Cleanup(m.Close)
	return m
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetReturnsSameController(t *testing.T) {
	m := newTestManager(t, newStore(t))
	ctx := context.Background()

	a, restored, err := m.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if restored {
		t.Error("fresh session reported as restored")
	}
	b, _, _ := m.Get(ctx, "42")
	if a != b {
		t.Error("Get returned a different controller for the same key")
	}
	if a.State() != models.StateAwaitingPhoto {
		t.Errorf("state = %s", a.State())
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := newTestManager(t, store)
	ctrl, _, _ := first.Get(ctx, "42")
	if err := ctrl.UploadPhoto(ctx, "file-1", workflow.File{Name: "me.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("UploadPhoto: %v", err)
	}
	if err := ctrl.SetPrompt("sunset run"); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	if err := first.Save(ctx, "42"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first.Close()

	second := newTestManager(t, store)
	ctrl, restored, err := second.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !restored {
		t.Fatal("session not restored")
	}
	s := ctrl.Snapshot()
	if s.State != models.StateConfiguring || s.Prompt != "sunset run" || !s.Photo.Resolved() {
		t.Errorf("restored session = %+v", s)
	}
}

func TestResumeGenerating(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	snapshot := models.Session{
		State:       models.StateGenerating,
		Photo:       &models.Asset{Kind: models.KindPhoto, Local: "f", Remote: models.RemoteResolved, RemoteID: "P1"},
		VoiceChoice: models.VoiceSynthesized,
		Prompt:      "sunset run",
		Job:         &models.Job{ID: "J1", Status: models.JobPending},
	}
	if err := store.Save(ctx, "42", snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m := newTestManager(t, store)
	keys, err := m.ResumeGenerating(ctx)
	if err != nil {
		t.Fatalf("ResumeGenerating: %v", err)
	}
	if len(keys) != 1 || keys[0] != "42" {
		t.Fatalf("keys = %v, want [42]", keys)
	}

	ctrl, _, _ := m.Get(ctx, "42")
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	job, err := ctrl.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.ID != "J1" || ctrl.State() != models.StateReady {
		t.Errorf("job = %+v state = %s", job, ctrl.State())
	}
}

func TestPruneDropsIdleSessions(t *testing.T) {
	store := newStore(t)
	m := newTestManager(t, store)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if _, _, err := m.Get(ctx, "idle"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, _, err := m.Get(ctx, "busy"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	n, err := m.Prune(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("live sessions = %d, want 1", m.Len())
	}
}
