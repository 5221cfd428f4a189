package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relai/internal/models"
	"relai/internal/workflow"
)

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not accept tick")
	}
}

func (m *manualTicker) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
		t.Fatal("poller accepted a tick after it should have stopped")
	case <-time.After(30 * time.Millisecond):
	}
	select {
	case <-m.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker was not stopped")
	}
}

type uploadCall struct {
	kind models.AssetKind
	file workflow.File
}

type fakeUploads struct {
	mu      sync.Mutex
	calls   []uploadCall
	ids     map[models.AssetKind]string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeUploads) Upload(ctx context.Context, kind models.AssetKind, file workflow.File) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, uploadCall{kind: kind, file: file})
	err := f.err
	id := f.ids[kind]
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

type suggestionCall struct {
	topic       string
	preferences string
	reply       chan []models.Suggestion
}

type fakeSuggestions struct {
	mu     sync.Mutex
	calls  []suggestionCall
	result []models.Suggestion
	err    error
	// when set, each call is handed over and blocks until a reply is sent
	pending chan suggestionCall
}

func (f *fakeSuggestions) Suggestions(ctx context.Context, topic, preferences string) ([]models.Suggestion, error) {
	call := suggestionCall{topic: topic, preferences: preferences, reply: make(chan []models.Suggestion, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	pending, result, err := f.pending, f.result, f.err
	f.mu.Unlock()

	if pending != nil {
		pending <- call
		return <-call.reply, nil
	}
	return result, err
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []workflow.GenerateRequest
	jobID    string
	err      error
	started  chan struct{}
	release  chan struct{}

	statuses    []workflow.JobStatus
	statusErrs  []error
	statusCalls []string
}

func (f *fakeGenerator) Generate(ctx context.Context, req workflow.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	started, release := f.started, f.release
	id, err := f.jobID, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return id, err
}

func (f *fakeGenerator) Status(ctx context.Context, jobID string) (workflow.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.statusCalls)
	f.statusCalls = append(f.statusCalls, jobID)
	if n < len(f.statusErrs) && f.statusErrs[n] != nil {
		return workflow.JobStatus{}, f.statusErrs[n]
	}
	if n < len(f.statuses) {
		return f.statuses[n], nil
	}
	return workflow.JobStatus{Status: models.JobPending}, nil
}

func (f *fakeGenerator) Download(ctx context.Context, jobID string) (workflow.MediaRef, error) {
	if jobID == "" {
		return workflow.MediaRef{}, errors.New("job not found")
	}
	return workflow.MediaRef{
		URL:      "http://backend/api/video/download/" + jobID,
		Filename: "relai_video_" + jobID + ".mp4",
	}, nil
}

func (f *fakeGenerator) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGenerator) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statusCalls)
}

type harness struct {
	ctrl        *workflow.Controller
	uploads     *fakeUploads
	suggestions *fakeSuggestions
	generator   *fakeGenerator
	ticker      *manualTicker
	released    []models.Asset
	intervals   []time.Duration
	mu          sync.Mutex
}

var fixedNow = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		uploads: &fakeUploads{ids: map[models.AssetKind]string{
			models.KindPhoto: "P1",
			models.KindVoice: "V1",
		}},
		suggestions: &fakeSuggestions{},
		generator:   &fakeGenerator{jobID: "J1"},
		ticker:      newManualTicker(),
	}
	h.ctrl = workflow.New(h.uploads, h.suggestions, h.generator,
		workflow.WithTicker(func(d time.Duration) workflow.Ticker {
			h.mu.Lock()
			h.intervals = append(h.intervals, d)
			h.mu.Unlock()
			return h.ticker
		}),
		workflow.WithClock(func() time.Time { return fixedNow }),
		workflow.WithReleaser(func(a models.Asset) {
			h.mu.Lock()
			h.released = append(h.released, a)
			h.mu.Unlock()
		}),
	)
	t.Cleanup(h.ctrl.Close)
	return h
}

// configured returns a harness in the Configuring state with a photo and prompt.
func configured(t *testing.T, prompt string) *harness {
	t.Helper()
	h := newHarness(t)
	photo := workflow.File{Name: "me.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	if err := h.ctrl.UploadPhoto(context.Background(), "preview-photo", photo); err != nil {
		t.Fatalf("UploadPhoto: %v", err)
	}
	if err := h.ctrl.SetPrompt(prompt); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	return h
}

func (h *harness) tickerIntervals() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.intervals...)
}

func (h *harness) releasedLocals() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, a := range h.released {
		out = append(out, a.Local)
	}
	return out
}
