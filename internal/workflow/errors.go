package workflow

import (
	"errors"
	"fmt"

	"relai/internal/models"
)

var (
	ErrInvalidState        = errors.New("operation not permitted in current state")
	ErrPromptRequired      = errors.New("prompt is required")
	ErrPhotoRequired       = errors.New("photo upload has not completed")
	ErrVoiceRequired       = errors.New("cloned voice requires a voice sample")
	ErrVoicePending        = errors.New("voice sample upload has not completed")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrSuperseded          = errors.New("superseded by a newer request")
	ErrNoSuchSuggestion    = errors.New("no such suggestion")
	ErrClosed              = errors.New("workflow closed")
)

type UploadFailedError struct {
	Kind    models.AssetKind
	Message string
	Err     error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload %s failed: %s", e.Kind, e.Message)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

type SuggestionFetchFailedError struct {
	Message string
	Err     error
}

func (e *SuggestionFetchFailedError) Error() string {
	return "fetch suggestions failed: " + e.Message
}

func (e *SuggestionFetchFailedError) Unwrap() error { return e.Err }

type GenerationRequestFailedError struct {
	Message string
	Err     error
}

func (e *GenerationRequestFailedError) Error() string {
	return "generation request failed: " + e.Message
}

func (e *GenerationRequestFailedError) Unwrap() error { return e.Err }

// PollingFailedError is a transport-level failure while checking job status.
type PollingFailedError struct {
	JobID   string
	Message string
	Err     error
}

func (e *PollingFailedError) Error() string {
	return fmt.Sprintf("status check for job %s failed: %s", e.JobID, e.Message)
}

func (e *PollingFailedError) Unwrap() error { return e.Err }

// GenerationFailedError is a terminal failure reported by the generation service.
type GenerationFailedError struct {
	JobID  string
	Detail string
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation job %s failed: %s", e.JobID, e.Detail)
}
