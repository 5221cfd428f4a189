package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relai/internal/models"
)

type operation string

const (
	opPhotoUpload operation = "photo_upload"
	opVoiceUpload operation = "voice_upload"
	opGenerate    operation = "generate"
)

type Option func(*Controller)

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithDuration(seconds int) Option {
	return func(c *Controller) {
		if seconds > 0 {
			c.duration = seconds
		}
	}
}

func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Controller) { c.newTicker = newTicker }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.log = logger }
}

// WithReleaser registers a callback for local asset handles the controller
// gives up. It runs with the controller locked and must not call back into it.
func WithReleaser(release func(models.Asset)) Option {
	return func(c *Controller) { c.release = release }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the state machine for one generation workflow.
type Controller struct {
	uploads     UploadService
	suggestions SuggestionService
	generator   GenerationService

	interval  time.Duration
	duration  int
	newTicker func(time.Duration) Ticker
	release   func(models.Asset)
	now       func() time.Time
	log       zerolog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	session    models.Session
	busy       map[operation]bool
	epoch      uint64
	suggestSeq uint64
	poll       *Task
	last       *Task
	closed     bool
}

func New(uploads UploadService, suggestions SuggestionService, generator GenerationService, opts ...Option) *Controller {
	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		uploads:     uploads,
		suggestions: suggestions,
		generator:   generator,
		interval:    DefaultPollInterval,
		duration:    DefaultDuration,
		newTicker:   newRealTicker,
		release:     func(models.Asset) {},
		now:         time.Now,
		log:         zerolog.Nop(),
		base:        base,
		cancelBase:  cancel,
		session:     models.NewDefaultSession(),
		busy:        make(map[operation]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session.UpdatedAt = c.now()
	return c
}

func (c *Controller) State() models.WorkflowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// Snapshot returns a deep copy of the current session.
func (c *Controller) Snapshot() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// Restore loads a persisted session into a fresh controller. A session that
// was Generating with a known job resumes polling; one interrupted before the
// job id arrived falls back to Configuring.
func (c *Controller) Restore(s models.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.session.State != models.StateAwaitingPhoto || c.poll != nil || len(c.busy) > 0 {
		return fmt.Errorf("restore into active workflow: %w", ErrInvalidState)
	}

	s = copySession(s)
	if s.VoiceChoice == "" {
		s.VoiceChoice = models.VoiceSynthesized
	}
	for _, a := range []*models.Asset{s.Photo, s.Voice} {
		if a != nil && a.Remote == models.RemotePending {
			a.Remote = models.RemoteFailed
			a.Error = "upload interrupted"
		}
	}

	switch s.State {
	case models.StateAwaitingPhoto, models.StateConfiguring:
		s.Job = nil
	case models.StateGenerating:
		if s.Job == nil || s.Job.ID == "" {
			s.State = models.StateConfiguring
			s.Job = nil
		}
	case models.StateReady:
		if s.Job == nil || s.Job.ID == "" {
			s.State = models.StateConfiguring
			s.Job = nil
		}
	default:
		return fmt.Errorf("restore unknown state %q: %w", s.State, ErrInvalidState)
	}
	if s.State != models.StateAwaitingPhoto && !s.Photo.Resolved() {
		s.State = models.StateAwaitingPhoto
		s.Job = nil
	}

	c.session = s
	if s.State == models.StateGenerating {
		c.log.Info().Str("job", s.Job.ID).Msg("resuming job polling")
		c.startPolling(s.Job.ID)
	}
	return nil
}

func (c *Controller) UploadPhoto(ctx context.Context, local string, file File) error {
	return c.upload(ctx, models.KindPhoto, local, file)
}

func (c *Controller) UploadVoice(ctx context.Context, local string, file File) error {
	return c.upload(ctx, models.KindVoice, local, file)
}

func (c *Controller) upload(ctx context.Context, kind models.AssetKind, local string, file File) error {
	op, required := opPhotoUpload, models.StateAwaitingPhoto
	if kind == models.KindVoice {
		op, required = opVoiceUpload, models.StateConfiguring
	}

	c.mu.Lock()
	if err := c.begin(op, required); err != nil {
		c.mu.Unlock()
		return err
	}
	slot := c.assetSlot(kind)
	if prev := *slot; prev != nil && prev.Local != local {
		c.release(*prev)
	}
	*slot = &models.Asset{Kind: kind, Local: local, Name: file.Name, Remote: models.RemotePending}
	epoch := c.epoch
	c.touch()
	c.mu.Unlock()

	id, err := c.uploads.Upload(ctx, kind, file)
	if err == nil && id == "" {
		err = errors.New("upload service returned no asset id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, op)

	if c.epoch != epoch {
		return ErrSuperseded
	}

	asset := *slot
	if err != nil {
		asset.Remote = models.RemoteFailed
		asset.Error = err.Error()
		c.touch()
		c.log.Warn().Err(err).Str("kind", string(kind)).Msg("upload failed")
		return &UploadFailedError{Kind: kind, Message: err.Error(), Err: err}
	}

	asset.Remote = models.RemoteResolved
	asset.RemoteID = id
	asset.Error = ""
	if kind == models.KindPhoto {
		c.session.State = models.StateConfiguring
	}
	c.touch()
	c.log.Info().Str("kind", string(kind)).Str("asset", id).Msg("upload completed")
	return nil
}

// ReplacePhoto uploads a new photo while configuring. The current photo stays
// in place until the new one resolves, so a failed upload changes nothing.
func (c *Controller) ReplacePhoto(ctx context.Context, local string, file File) error {
	c.mu.Lock()
	if err := c.begin(opPhotoUpload, models.StateConfiguring); err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.epoch
	c.mu.Unlock()

	id, err := c.uploads.Upload(ctx, models.KindPhoto, file)
	if err == nil && id == "" {
		err = errors.New("upload service returned no asset id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, opPhotoUpload)

	if c.epoch != epoch {
		return ErrSuperseded
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("replacement photo upload failed, keeping current photo")
		return &UploadFailedError{Kind: models.KindPhoto, Message: err.Error(), Err: err}
	}

	if prev := c.session.Photo; prev != nil && prev.Local != local {
		c.release(*prev)
	}
	c.session.Photo = &models.Asset{
		Kind:     models.KindPhoto,
		Local:    local,
		Name:     file.Name,
		Remote:   models.RemoteResolved,
		RemoteID: id,
	}
	c.touch()
	c.log.Info().Str("asset", id).Msg("photo replaced")
	return nil
}

func (c *Controller) SetPrompt(prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.require(models.StateConfiguring); err != nil {
		return err
	}
	c.session.Prompt = prompt
	c.touch()
	return nil
}

// SetLanguage records the user's language. It survives StartOver and is
// allowed in every state.
func (c *Controller) SetLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.session.Language == lang {
		return
	}
	c.session.Language = lang
	c.touch()
}

func (c *Controller) SetVoiceChoice(choice models.VoiceChoice) error {
	if !choice.Valid() {
		return fmt.Errorf("unknown voice choice %q", choice)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.require(models.StateConfiguring); err != nil {
		return err
	}
	c.session.VoiceChoice = choice
	c.touch()
	return nil
}

// FetchSuggestions replaces the suggestion list with a fresh batch. When
// fetches overlap only the most recently started one is applied; older ones
// return ErrSuperseded.
func (c *Controller) FetchSuggestions(ctx context.Context, topic, preferences string) ([]models.Suggestion, error) {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultSuggestionContext
	}
	if strings.TrimSpace(preferences) == "" {
		preferences = DefaultSuggestionPreferences
	}

	c.mu.Lock()
	if err := c.require(models.StateConfiguring); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.suggestSeq++
	seq, epoch := c.suggestSeq, c.epoch
	c.mu.Unlock()

	suggestions, err := c.suggestions.Suggestions(ctx, topic, preferences)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.suggestSeq != seq {
		return nil, ErrSuperseded
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("suggestion fetch failed")
		return nil, &SuggestionFetchFailedError{Message: err.Error(), Err: err}
	}

	c.session.Suggestions = copySuggestions(suggestions)
	c.touch()
	return copySuggestions(suggestions), nil
}

// SelectSuggestion copies the chosen description into the prompt and clears
// the list.
func (c *Controller) SelectSuggestion(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.require(models.StateConfiguring); err != nil {
		return err
	}
	if index < 0 || index >= len(c.session.Suggestions) {
		return ErrNoSuchSuggestion
	}
	c.session.Prompt = c.session.Suggestions[index].Description
	c.session.Suggestions = nil
	c.touch()
	return nil
}

// Generate submits the generation request and starts polling the job. Use
// Wait to observe the outcome.
func (c *Controller) Generate(ctx context.Context) (string, error) {
	c.mu.Lock()
	if err := c.begin(opGenerate, models.StateConfiguring); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if c.busy[opPhotoUpload] {
		delete(c.busy, opGenerate)
		c.mu.Unlock()
		return "", ErrOperationInProgress
	}
	req, err := c.generateRequest()
	if err != nil {
		delete(c.busy, opGenerate)
		c.mu.Unlock()
		return "", err
	}
	c.session.State = models.StateGenerating
	c.session.Job = nil
	c.last = nil
	epoch := c.epoch
	c.touch()
	c.mu.Unlock()

	jobID, err := c.generator.Generate(ctx, req)
	if err == nil && jobID == "" {
		err = errors.New("generation service returned no job id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, opGenerate)

	if c.epoch != epoch || c.closed {
		if err == nil {
			c.log.Warn().Str("job", jobID).Msg("discarding job submitted before reset")
		}
		return "", ErrSuperseded
	}
	if err != nil {
		c.session.State = models.StateConfiguring
		c.touch()
		c.log.Error().Err(err).Msg("generation request failed")
		return "", &GenerationRequestFailedError{Message: err.Error(), Err: err}
	}

	c.session.Job = &models.Job{ID: jobID, Status: models.JobPending}
	c.touch()
	c.log.Info().Str("job", jobID).Int("duration", req.Duration).Msg("generation job submitted")
	c.startPolling(jobID)
	return jobID, nil
}

// generateRequest must be called with c.mu held.
func (c *Controller) generateRequest() (GenerateRequest, error) {
	s := &c.session
	if strings.TrimSpace(s.Prompt) == "" {
		return GenerateRequest{}, ErrPromptRequired
	}
	if !s.Photo.Resolved() {
		return GenerateRequest{}, ErrPhotoRequired
	}

	req := GenerateRequest{
		PhotoAssetID: s.Photo.RemoteID,
		Prompt:       s.Prompt,
		VoiceChoice:  s.VoiceChoice,
		Duration:     c.duration,
	}
	if s.VoiceChoice == models.VoiceCloned {
		switch {
		case s.Voice == nil || s.Voice.Remote == models.RemoteFailed:
			return GenerateRequest{}, ErrVoiceRequired
		case !s.Voice.Resolved():
			return GenerateRequest{}, ErrVoicePending
		}
		req.VoiceAssetID = s.Voice.RemoteID
	}
	return req, nil
}

// Wait blocks until the current or most recent polling run finishes and
// returns its outcome.
func (c *Controller) Wait(ctx context.Context) (models.Job, error) {
	c.mu.Lock()
	t := c.poll
	if t == nil {
		t = c.last
	}
	if t == nil && c.session.State == models.StateReady {
		job := *c.session.Job
		c.mu.Unlock()
		return job, nil
	}
	c.mu.Unlock()

	if t == nil {
		return models.Job{}, fmt.Errorf("no generation job: %w", ErrInvalidState)
	}

	select {
	case <-t.Done():
		return t.Result()
	case <-ctx.Done():
		return models.Job{}, ctx.Err()
	}
}

// Download returns the media reference of the completed job.
func (c *Controller) Download(ctx context.Context) (MediaRef, error) {
	c.mu.Lock()
	if err := c.require(models.StateReady); err != nil {
		c.mu.Unlock()
		return MediaRef{}, err
	}
	jobID := c.session.Job.ID
	c.mu.Unlock()

	ref, err := c.generator.Download(ctx, jobID)
	if err != nil {
		return MediaRef{}, fmt.Errorf("download job %s: %w", jobID, err)
	}
	return ref, nil
}

// ChangePhoto discards the photo and returns to photo intake. Prompt,
// suggestions and voice settings are kept.
func (c *Controller) ChangePhoto() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.require(models.StateConfiguring); err != nil {
		return err
	}
	if c.busy[opPhotoUpload] {
		return ErrOperationInProgress
	}
	if c.session.Photo != nil {
		c.release(*c.session.Photo)
		c.session.Photo = nil
	}
	c.session.State = models.StateAwaitingPhoto
	c.touch()
	return nil
}

// StartOver cancels any polling and resets the workflow from any state.
func (c *Controller) StartOver() {
	c.mu.Lock()
	t := c.reset()
	c.mu.Unlock()

	if t != nil {
		t.Cancel()
	}
}

// Close tears the controller down. Polling stops before Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	t := c.reset()
	c.mu.Unlock()

	c.cancelBase()
	if t != nil {
		t.Cancel()
	}
}

// reset must be called with c.mu held. It returns the detached polling task.
func (c *Controller) reset() *Task {
	t := c.poll
	c.poll = nil
	c.last = nil

	for _, a := range []*models.Asset{c.session.Photo, c.session.Voice} {
		if a != nil {
			c.release(*a)
		}
	}
	lang := c.session.Language
	c.session = models.NewDefaultSession()
	c.session.Language = lang
	c.epoch++
	c.suggestSeq++
	c.touch()
	return t
}

func (c *Controller) begin(op operation, required models.WorkflowState) error {
	if err := c.require(required); err != nil {
		return err
	}
	if c.busy[op] {
		return ErrOperationInProgress
	}
	c.busy[op] = true
	return nil
}

func (c *Controller) require(state models.WorkflowState) error {
	if c.closed {
		return ErrClosed
	}
	if c.session.State != state {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.session.State)
	}
	return nil
}

func (c *Controller) assetSlot(kind models.AssetKind) **models.Asset {
	if kind == models.KindVoice {
		return &c.session.Voice
	}
	return &c.session.Photo
}

func (c *Controller) touch() {
	c.session.UpdatedAt = c.now()
}

func copySession(s models.Session) models.Session {
	out := s
	if s.Photo != nil {
		p := *s.Photo
		out.Photo = &p
	}
	if s.Voice != nil {
		v := *s.Voice
		out.Voice = &v
	}
	if s.Job != nil {
		j := *s.Job
		out.Job = &j
	}
	out.Suggestions = copySuggestions(s.Suggestions)
	return out
}

func copySuggestions(in []models.Suggestion) []models.Suggestion {
	if in == nil {
		return nil
	}
	out := make([]models.Suggestion, len(in))
	for i, s := range in {
		out[i] = s
		out[i].Hashtags = append([]string(nil), s.Hashtags...)
		out[i].Platforms = append([]string(nil), s.Platforms...)
	}
	return out
}
