package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"relai/internal/apikeys"
)

const (
	elevenLabsAPIURL = "https://api.elevenlabs.io/v1"

	DefaultVoiceID = "EXAVITQu4vr4xnSDxMaL"
	DefaultModelID = "eleven_multilingual_v2"
)

type ElevenLabsOptions struct {
	BaseURL    string
	ModelID    string
	VoiceID    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// ElevenLabsService renders narration previews with the synthesized voice.
type ElevenLabsService struct {
	keys       *apikeys.Ring
	baseURL    string
	modelID    string
	voiceID    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewElevenLabsService(keys *apikeys.Ring, opts ElevenLabsOptions) *ElevenLabsService {
	s := &ElevenLabsService{
		keys:       keys,
		baseURL:    opts.BaseURL,
		modelID:    opts.ModelID,
		voiceID:    opts.VoiceID,
		httpClient: opts.HTTPClient,
		log:        opts.Logger,
	}
	if s.baseURL == "" {
		s.baseURL = elevenLabsAPIURL
	}
	if s.modelID == "" {
		s.modelID = DefaultModelID
	}
	if s.voiceID == "" {
		s.voiceID = DefaultVoiceID
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return s
}

type voiceSettings struct {
	Stability       float32 `json:"stability"`
	SimilarityBoost float32 `json:"similarity_boost"`
	Style           float32 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// TextToSpeech returns MPEG audio for text.
func (s *ElevenLabsService) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}
	url := fmt.Sprintf("%s/text-to-speech/%s", s.baseURL, s.voiceID)

	for attempt := 0; attempt < s.keys.Len(); attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build tts request: %w", err)
		}
		req.Header.Set("xi-api-key", s.keys.Current())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("elevenlabs request failed")
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			s.log.Warn().Int("status", resp.StatusCode).Msg("elevenlabs key rejected")
			if errors.Is(s.keys.Rotate(), apikeys.ErrAllKeysExhausted) {
				break
			}
			continue
		}

		audio, err := readAudio(resp)
		if err != nil {
			return nil, err
		}
		return audio, nil
	}

	return nil, fmt.Errorf("elevenlabs: %w", apikeys.ErrAllKeysExhausted)
}

func readAudio(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio response: %w", err)
	}
	return audio, nil
}
