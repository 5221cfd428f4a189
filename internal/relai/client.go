// Package relai is the HTTP client for the video generation backend. It
// implements the workflow collaborator interfaces.
package relai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relai/internal/models"
	"relai/internal/workflow"
)

var ErrJobNotFound = errors.New("job not found")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    base,
		httpClient: client,
		log:        opts.Logger,
	}, nil
}

type uploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

func (c *Client) Upload(ctx context.Context, kind models.AssetKind, file workflow.File) (string, error) {
	path := "/api/upload/image"
	if kind == models.KindVoice {
		path = "/api/upload/voice"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.FileID, nil
}

type suggestionRequest struct {
	Context         string `json:"context"`
	UserPreferences string `json:"user_preferences,omitempty"`
}

type suggestionResponse struct {
	Suggestions []models.Suggestion `json:"suggestions"`
}

func (c *Client) Suggestions(ctx context.Context, topic, preferences string) ([]models.Suggestion, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/api/suggestions/generate", suggestionRequest{
		Context:         topic,
		UserPreferences: preferences,
	})
	if err != nil {
		return nil, err
	}

	var out suggestionResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

type generateRequest struct {
	UserImageID string `json:"user_image_id"`
	Prompt      string `json:"prompt"`
	VoiceType   string `json:"voice_type"`
	VoiceFileID string `json:"voice_file_id,omitempty"`
	Duration    int    `json:"duration"`
}

type generateResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func voiceType(choice models.VoiceChoice) string {
	if choice == models.VoiceCloned {
		return "custom"
	}
	return "ai"
}

func (c *Client) Generate(ctx context.Context, r workflow.GenerateRequest) (string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/api/video/generate", generateRequest{
		UserImageID: r.PhotoAssetID,
		Prompt:      r.Prompt,
		VoiceType:   voiceType(r.VoiceChoice),
		VoiceFileID: r.VoiceAssetID,
		Duration:    r.Duration,
	})
	if err != nil {
		return "", err
	}

	var out generateResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.VideoID, nil
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *Client) Status(ctx context.Context, jobID string) (workflow.JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/video/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return workflow.JobStatus{}, err
	}

	var out statusResponse
	if err := c.do(req, &out); err != nil {
		return workflow.JobStatus{}, err
	}

	switch strings.ToLower(out.Status) {
	case "completed":
		return workflow.JobStatus{Status: models.JobCompleted}, nil
	case "failed":
		return workflow.JobStatus{Status: models.JobFailed, ErrorDetail: out.Error}, nil
	case "processing", "pending", "queued", "":
		return workflow.JobStatus{Status: models.JobPending}, nil
	default:
		c.log.Debug().Str("job", jobID).Str("status", out.Status).Msg("unrecognized job status, treating as pending")
		return workflow.JobStatus{Status: models.JobPending}, nil
	}
}

// Download builds the media reference without touching the network.
func (c *Client) Download(ctx context.Context, jobID string) (workflow.MediaRef, error) {
	if jobID == "" {
		return workflow.MediaRef{}, ErrJobNotFound
	}
	return workflow.MediaRef{
		URL:      c.baseURL + "/api/video/download/" + url.PathEscape(jobID),
		Filename: fmt.Sprintf("relai_video_%s.mp4", jobID),
	}, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e errorResponse
		if json.Unmarshal(raw, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(raw))
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: e.Detail}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrJobNotFound, apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

var (
	_ workflow.UploadService     = (*Client)(nil)
	_ workflow.SuggestionService = (*Client)(nil)
	_ workflow.GenerationService = (*Client)(nil)
)
