package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	SuggestionsBackend = "backend"
	SuggestionsGemini  = "gemini"

	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	DefaultLang      string `mapstructure:"default_lang"`
	LogLevel         string `mapstructure:"log_level"`

	BackendURL     string        `mapstructure:"backend_url"`
	BackendTimeout time.Duration `mapstructure:"backend_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	// VideoDuration is fixed per deployment; neither the bot nor the CLI
	// lets a user change it.
	VideoDuration  int           `mapstructure:"video_duration"`

	SuggestionSource string   `mapstructure:"suggestion_source"`
	GeminiAPIKeys    []string `mapstructure:"gemini_api_keys"`
	GeminiModel      string   `mapstructure:"gemini_model"`

	ElevenLabsAPIKeys []string `mapstructure:"elevenlabs_api_keys"`
	ElevenLabsModelID string   `mapstructure:"elevenlabs_model_id"`
	ElevenLabsVoiceID string   `mapstructure:"elevenlabs_voice_id"`

	SessionStore    string        `mapstructure:"session_store"`
	DatabasePath    string        `mapstructure:"database_path"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	JanitorSchedule string        `mapstructure:"janitor_schedule"`
}

// Load reads .env files (if any) and the environment. Every key is the
// upper-cased field tag, e.g. BACKEND_URL.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.GeminiAPIKeys = compact(cfg.GeminiAPIKeys)
	cfg.ElevenLabsAPIKeys = compact(cfg.ElevenLabsAPIKeys)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("default_lang", "en")
	v.SetDefault("log_level", "info")

	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("backend_timeout", "2m")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("video_duration", 30)

	v.SetDefault("suggestion_source", SuggestionsBackend)
	v.SetDefault("gemini_api_keys", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")

	v.SetDefault("elevenlabs_api_keys", "")
	v.SetDefault("elevenlabs_model_id", "eleven_multilingual_v2")
	v.SetDefault("elevenlabs_voice_id", "EXAVITQu4vr4xnSDxMaL")

	v.SetDefault("session_store", StoreSQLite)
	v.SetDefault("database_path", "./relai_sessions.db")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("session_ttl", "72h")
	v.SetDefault("janitor_schedule", "@every 1h")
}

func (c *Config) validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.VideoDuration <= 0 {
		errs = append(errs, fmt.Errorf("VIDEO_DURATION must be positive, got %d", c.VideoDuration))
	}
	switch c.SuggestionSource {
	case SuggestionsBackend:
	case SuggestionsGemini:
		if len(c.GeminiAPIKeys) == 0 {
			errs = append(errs, errors.New("GEMINI_API_KEYS is required when SUGGESTION_SOURCE=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SUGGESTION_SOURCE %q", c.SuggestionSource))
	}
	switch c.SessionStore {
	case StoreSQLite, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}
	return errors.Join(errs...)
}

// RequireBot checks the settings only the Telegram front end needs.
func (c *Config) RequireBot() error {
	if c.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
