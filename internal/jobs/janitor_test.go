package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
	calls   chan struct{}
}

func (p *recordingPruner) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	p.cutoffs = append(p.cutoffs, cutoff)
	p.mu.Unlock()
	if p.calls != nil {
		select {
		case p.calls <- struct{}{}:
		default:
		}
	}
	return 1, p.err
}

func TestSweepUsesTTLCutoff(t *testing.T) {
	p := &recordingPruner{}
	j := NewJanitor(p, "@every 1h", 24*time.Hour, zerolog.Nop())
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	j.Sweep(context.Background())

	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Errorf("cutoffs = %v", p.cutoffs)
	}
}

func TestSweepSurvivesPruneError(t *testing.T) {
	p := &recordingPruner{err: errors.New("disk full")}
	j := NewJanitor(p, "@every 1h", time.Hour, zerolog.Nop())
	j.Sweep(context.Background())
	if len(p.cutoffs) != 1 {
		t.Errorf("calls = %d, want 1", len(p.cutoffs))
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(&recordingPruner{}, "not a schedule", time.Hour, zerolog.Nop())
	if err := j.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunSweepsOnSchedule(t *testing.T) {
	p := &recordingPruner{calls: make(chan struct{}, 1)}
	j := NewJanitor(p, "@every 1s", time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	select {
	case <-p.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor never swept")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunDisabledWithoutTTL(t *testing.T) {
	p := &recordingPruner{}
	j := NewJanitor(p, "@every 1s", 0, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := j.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.cutoffs) != 0 {
		t.Errorf("disabled janitor swept %d times", len(p.cutoffs))
	}
}
