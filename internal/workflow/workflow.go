// Package workflow drives a single video generation attempt from photo intake
// through prompt and voice configuration, job polling, and delivery.
//
// A Controller owns one workflow's state. Remote work is delegated to the
// UploadService, SuggestionService and GenerationService collaborators.
package workflow

import (
	"context"
	"time"

	"relai/internal/models"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultDuration     = 30

	DefaultSuggestionContext     = "fitness and lifestyle content creator"
	DefaultSuggestionPreferences = "engaging social media videos"
)

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadService interface {
	Upload(ctx context.Context, kind models.AssetKind, file File) (string, error)
}

type SuggestionService interface {
	Suggestions(ctx context.Context, topic, preferences string) ([]models.Suggestion, error)
}

type GenerateRequest struct {
	PhotoAssetID string
	Prompt       string
	VoiceChoice  models.VoiceChoice
	VoiceAssetID string
	Duration     int
}

type JobStatus struct {
	Status      models.JobStatus
	ErrorDetail string
}

// MediaRef points at a finished video. The controller never fetches it.
type MediaRef struct {
	URL      string
	Filename string
}

type GenerationService interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
	Download(ctx context.Context, jobID string) (MediaRef, error)
}

// Ticker abstracts time.Ticker so polling can be driven by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
