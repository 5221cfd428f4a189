package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"relai/internal/ai"
	"relai/internal/apikeys"
	"relai/internal/bot"
	"relai/internal/config"
	"relai/internal/relai"
	"relai/internal/storage"
	"relai/internal/workflow"
)

func newBackend(cfg *config.Config, log zerolog.Logger) (*relai.Client, error) {
	return relai.NewClient(relai.Options{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Logger:  log.With().Str("component", "backend").Logger(),
	})
}

// newSuggester picks where video ideas come from: the backend itself or
// Gemini directly.
func newSuggester(cfg *config.Config, backend *relai.Client, log zerolog.Logger) (workflow.SuggestionService, error) {
	if cfg.SuggestionSource != config.SuggestionsGemini {
		return backend, nil
	}
	keys, err := apikeys.NewRing("gemini", cfg.GeminiAPIKeys, log)
	if err != nil {
		return nil, fmt.Errorf("gemini keys: %w", err)
	}
	return ai.NewGeminiSuggester(keys, cfg.GeminiModel, log.With().Str("component", "gemini").Logger()), nil
}

// newNarrator returns nil when no ElevenLabs key is configured.
func newNarrator(cfg *config.Config, log zerolog.Logger) bot.Narrator {
	keys, err := apikeys.NewRing("elevenlabs", cfg.ElevenLabsAPIKeys, log)
	if err != nil {
		log.Info().Msg("no elevenlabs keys, narration preview is text only")
		return nil
	}
	return ai.NewElevenLabsService(keys, ai.ElevenLabsOptions{
		ModelID: cfg.ElevenLabsModelID,
		VoiceID: cfg.ElevenLabsVoiceID,
		Logger:  log.With().Str("component", "elevenlabs").Logger(),
	})
}

func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Store, error) {
	log = log.With().Str("component", "store").Logger()
	if cfg.SessionStore == config.StoreRedis {
		store, err := storage.NewRedis(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := storage.NewSQLite(cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func controllerOptions(cfg *config.Config, log zerolog.Logger) []workflow.Option {
	return []workflow.Option{
		workflow.WithPollInterval(cfg.PollInterval),
		workflow.WithDuration(cfg.VideoDuration),
		workflow.WithLogger(log),
	}
}
