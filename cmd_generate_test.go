package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestGenerateCommand(t *testing.T) {
	var (
		mu        sync.Mutex
		generated map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload/image", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"file_id":"P1"}`))
	})
	mux.HandleFunc("/api/video/generate", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&generated); err != nil {
			t.Errorf("decode generate body: %v", err)
		}
		w.Write([]byte(`{"video_id":"J9","status":"processing"}`))
	})
	mux.HandleFunc("/api/video/status/J9", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"completed"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	photo := filepath.Join(dir, "me.png")
	if err := os.WriteFile(photo, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600); err != nil {
		t.Fatalf("write photo: %v", err)
	}

	t.Setenv("BACKEND_URL", server.URL)
	t.Setenv("POLL_INTERVAL", "10ms")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"generate",
		"--env-file", filepath.Join(dir, "missing.env"),
		"--photo", photo,
		"--prompt", "sunrise run",
		"--timeout", "10s",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got := strings.TrimSpace(out.String()); got != "relai_video_J9.mp4\t"+server.URL+"/api/video/download/J9" {
		t.Errorf("output = %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if generated["user_image_id"] != "P1" || generated["prompt"] != "sunrise run" || generated["voice_type"] != "ai" {
		t.Errorf("generate body = %v", generated)
	}
	if generated["duration"] != float64(30) {
		t.Errorf("duration = %v, want 30", generated["duration"])
	}
}

func TestGenerateDurationNotAFlag(t *testing.T) {
	if f := generateCmd.Flags().Lookup("duration"); f != nil {
		t.Errorf("generate exposes --duration; video length is fixed per deployment")
	}
}
