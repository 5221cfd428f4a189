package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BackendURL != "http://localhost:8000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	if cfg.VideoDuration != 30 {
		t.Errorf("VideoDuration = %d, want 30", cfg.VideoDuration)
	}
	if cfg.SuggestionSource != SuggestionsBackend || cfg.SessionStore != StoreSQLite {
		t.Errorf("sources = %q/%q", cfg.SuggestionSource, cfg.SessionStore)
	}
	if len(cfg.GeminiAPIKeys) != 0 {
		t.Errorf("GeminiAPIKeys = %v, want empty", cfg.GeminiAPIKeys)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://relai.example.com")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("SUGGESTION_SOURCE", "gemini")
	t.Setenv("GEMINI_API_KEYS", "key-a, key-b,,")
	t.Setenv("SESSION_TTL", "24h")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BackendURL != "https://relai.example.com" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %s", cfg.PollInterval)
	}
	if want := []string{"key-a", "key-b"}; !reflect.DeepEqual(cfg.GeminiAPIKeys, want) {
		t.Errorf("GeminiAPIKeys = %v, want %v", cfg.GeminiAPIKeys, want)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %s", cfg.SessionTTL)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("VIDEO_DURATION=45\nDEFAULT_LANG=id\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("VIDEO_DURATION")
		os.Unsetenv("DEFAULT_LANG")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VideoDuration != 45 || cfg.DefaultLang != "id" {
		t.Errorf("duration = %d lang = %q", cfg.VideoDuration, cfg.DefaultLang)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"gemini without keys", map[string]string{"SUGGESTION_SOURCE": "gemini"}, "GEMINI_API_KEYS"},
		{"unknown suggestion source", map[string]string{"SUGGESTION_SOURCE": "oracle"}, "SUGGESTION_SOURCE"},
		{"unknown store", map[string]string{"SESSION_STORE": "etcd"}, "SESSION_STORE"},
		{"zero poll interval", map[string]string{"POLL_INTERVAL": "0s"}, "POLL_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestRequireBot(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireBot(); err == nil {
		t.Fatal("expected missing token error")
	}
	cfg.TelegramBotToken = "123:abc"
	if err := cfg.RequireBot(); err != nil {
		t.Fatalf("RequireBot: %v", err)
	}
}
