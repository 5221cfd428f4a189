package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"relai/internal/apikeys"
	"relai/internal/models"
)

func TestParseSuggestions(t *testing.T) {
	reply := `Here are some ideas:

1. **Title:** Sunrise Deadlift
Description: Lifting at dawn on a rooftop gym
Duration: 45 seconds
Platforms: TikTok, Instagram Reels
Hashtags: #gym, #deadlift, #sunrise
Hook: Barbell hits the floor in slow motion

2. Title: Beach Sprint
Description: Sprinting along Miami beach
Duration: about a minute
Hashtags: #run #beach
`

	got := ParseSuggestions(reply)
	want := []models.Suggestion{
		{
			Title:       "Sunrise Deadlift",
			Description: "Lifting at dawn on a rooftop gym",
			Duration:    45,
			Platforms:   []string{"TikTok", "Instagram Reels"},
			Hashtags:    []string{"#gym", "#deadlift", "#sunrise"},
			Hook:        "Barbell hits the floor in slow motion",
		},
		{
			Title:       "Beach Sprint",
			Description: "Sprinting along Miami beach",
			Duration:    30,
			Hashtags:    []string{"#run", "#beach"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSuggestions =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParseSuggestionsIgnoresFieldsBeforeTitle(t *testing.T) {
	got := ParseSuggestions("Description: orphan\nHook: nothing")
	if len(got) != 0 {
		t.Errorf("suggestions = %+v, want none", got)
	}
}

func TestNarration(t *testing.T) {
	tests := []struct {
		prompt string
		prefix string
	}{
		{"Heavy squats at the gym.", "Hey everyone! Today I'm showing you an amazing workout. Heavy squats at the gym."},
		{"Morning exercise in the park", "What's up! Ready for today's exercise routine? Morning exercise in the park."},
		{"Cooking pasta", "Hello! Check out what I've got for you today. Cooking pasta."},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			if got := Narration(tt.prompt); !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("Narration(%q) = %q", tt.prompt, got)
			}
		})
	}
}

func TestMusicBrief(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"Fitness routine", musicRules[0].brief},
		{"Miami sunset", musicRules[1].brief},
		{"How to tie a tie", musicRules[2].brief},
		{"Comedy sketch", musicRules[3].brief},
		{"Chasing a dream", musicRules[4].brief},
		{"Cat sleeping", defaultMusicBrief},
	}

	for _, tt := range tests {
		if got := MusicBrief(tt.prompt); got != tt.want {
			t.Errorf("MusicBrief(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestSuggestionPromptIncludesPreferences(t *testing.T) {
	p := suggestionPrompt("gym content", "short clips")
	if !strings.Contains(p, "Context: gym content") || !strings.Contains(p, "User preferences: short clips") {
		t.Errorf("prompt missing context: %s", p)
	}
	if strings.Contains(suggestionPrompt("gym content", ""), "User preferences") {
		t.Error("empty preferences should be omitted")
	}
}

func TestIsKeyRejected(t *testing.T) {
	if !isKeyRejected(errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)")) {
		t.Error("quota error not detected")
	}
	if isKeyRejected(errors.New("context deadline exceeded")) {
		t.Error("timeout classified as key rejection")
	}
}

func TestTextToSpeechRotatesRejectedKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/text-to-speech/"+DefaultVoiceID {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") == "bad" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.ModelID != DefaultModelID || body.Text != "hello" {
			t.Errorf("body = %+v", body)
		}
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	keys, err := apikeys.NewRing("elevenlabs", []string{"bad", "good"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	svc := NewElevenLabsService(keys, ElevenLabsOptions{BaseURL: server.URL, HTTPClient: server.Client()})

	audio, err := svc.TextToSpeech(context.Background(), "hello")
	if err != nil {
		t.Fatalf("TextToSpeech: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestTextToSpeechAllKeysRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	keys, _ := apikeys.NewRing("elevenlabs", []string{"a", "b"}, zerolog.Nop())
	svc := NewElevenLabsService(keys, ElevenLabsOptions{BaseURL: server.URL, HTTPClient: server.Client()})

	if _, err := svc.TextToSpeech(context.Background(), "hello"); !errors.Is(err, apikeys.ErrAllKeysExhausted) {
		t.Fatalf("err = %v, want ErrAllKeysExhausted", err)
	}
}
