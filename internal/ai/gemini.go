package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"relai/internal/apikeys"
	"relai/internal/models"
	"relai/internal/workflow"
)

const DefaultGeminiModel = "gemini-2.5-flash"

const suggestionSystemPrompt = `You are a creative social media content strategist. Generate engaging, viral-worthy video ideas that an AI video generator can film.

Focus on:
- Trendy concepts with a clear, filmable scene
- An engaging hook in the first 3 seconds
- Content that showcases personality and expertise
- No complex face-to-face interactions`

// GeminiSuggester produces video ideas with Gemini. It rotates through the
// configured API keys when one is rejected for quota or auth reasons.
type GeminiSuggester struct {
	keys  *apikeys.Ring
	model string
	log   zerolog.Logger
}

func NewGeminiSuggester(keys *apikeys.Ring, model string, log zerolog.Logger) *GeminiSuggester {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiSuggester{keys: keys, model: model, log: log}
}

func suggestionPrompt(topic, preferences string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate 5 creative video ideas based on this context:\n\nContext: %s\n", topic)
	if preferences != "" {
		fmt.Fprintf(&b, "User preferences: %s\n", preferences)
	}
	b.WriteString(`
Make the ideas specific and actionable. Include details like locations, clothing, props or scenarios.

Format each suggestion exactly as:
Title: [catchy title]
Description: [detailed scene description for AI video generation]
Duration: [seconds]
Platforms: [best platforms, comma separated]
Hashtags: [5 relevant hashtags, comma separated]
Hook: [first 3 seconds description]`)
	return b.String()
}

func (s *GeminiSuggester) Suggestions(ctx context.Context, topic, preferences string) ([]models.Suggestion, error) {
	prompt := suggestionPrompt(topic, preferences)
	s.log.Debug().Str("topic", topic).Msg("requesting suggestions from gemini")

	var lastErr error
	for attempt := 0; attempt < s.keys.Len(); attempt++ {
		text, err := s.generate(ctx, s.keys.Current(), prompt)
		if err == nil {
			suggestions := ParseSuggestions(text)
			if len(suggestions) == 0 {
				return nil, errors.New("gemini reply contained no suggestions")
			}
			return suggestions, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !isKeyRejected(err) {
			return nil, err
		}
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("gemini key rejected")
		if rotErr := s.keys.Rotate(); rotErr != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", apikeys.ErrAllKeysExhausted, lastErr)
}

func (s *GeminiSuggester) generate(ctx context.Context, apiKey, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("could not create genai client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(s.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(suggestionSystemPrompt))
	model.SetTemperature(0.8)

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini content generation failed: %w", err)
	}
	return extractText(res)
}

func extractText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no content")
	}

	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini response did not contain text")
	}
	return b.String(), nil
}

func isKeyRejected(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "quota", "resource_exhausted", "resourceexhausted", "api key", "permission_denied", "permissiondenied", "401", "403"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ workflow.SuggestionService = (*GeminiSuggester)(nil)
