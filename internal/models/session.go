package models

import (
	"strings"
	"time"
)

type WorkflowState string

const (
	StateAwaitingPhoto WorkflowState = "awaiting_photo"
	StateConfiguring   WorkflowState = "configuring"
	StateGenerating    WorkflowState = "generating"
	StateReady         WorkflowState = "ready"
)

type AssetKind string

const (
	KindPhoto AssetKind = "photo"
	KindVoice AssetKind = "voice"
)

// VoiceChoice selects between the service's synthesized narrator and a clone
// of the user's uploaded voice sample.
type VoiceChoice string

const (
	VoiceSynthesized VoiceChoice = "synthesized"
	VoiceCloned      VoiceChoice = "cloned"
)

func (v VoiceChoice) Valid() bool {
	return v == VoiceSynthesized || v == VoiceCloned
}

type RemoteStatus string

const (
	RemotePending  RemoteStatus = "pending"
	RemoteResolved RemoteStatus = "resolved"
	RemoteFailed   RemoteStatus = "failed"
)

// Asset is a two-phase record: the local handle is known as soon as the user
// picks a file, the remote id only once the upload service accepts it.
type Asset struct {
	Kind     AssetKind    `json:"kind"`
	Local    string       `json:"local"`
	Name     string       `json:"name,omitempty"`
	Remote   RemoteStatus `json:"remote"`
	RemoteID string       `json:"remote_id,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func (a *Asset) Resolved() bool {
	return a != nil && a.Remote == RemoteResolved && a.RemoteID != ""
}

type Suggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Duration    int      `json:"duration,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
	Hook        string   `json:"hook,omitempty"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can follow.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

type Job struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// Session is the serializable snapshot of one workflow.
type Session struct {
	State       WorkflowState `json:"state"`
	Photo       *Asset        `json:"photo,omitempty"`
	Voice       *Asset        `json:"voice,omitempty"`
	VoiceChoice VoiceChoice   `json:"voice_choice"`
	Prompt      string        `json:"prompt"`
	Suggestions []Suggestion  `json:"suggestions,omitempty"`
	Job         *Job          `json:"job,omitempty"`
	Language    string        `json:"language,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewDefaultSession creates a session at the start of the workflow.
func NewDefaultSession() Session {
	return Session{
		State:       StateAwaitingPhoto,
		VoiceChoice: VoiceSynthesized,
	}
}

// CanGenerate reports whether the generate action is currently enabled.
func (s *Session) CanGenerate() bool {
	if s.State != StateConfiguring || strings.TrimSpace(s.Prompt) == "" || !s.Photo.Resolved() {
		return false
	}
	if s.VoiceChoice == VoiceCloned {
		return s.Voice.Resolved()
	}
	return true
}
