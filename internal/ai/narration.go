package ai

import (
	"fmt"
	"strings"
)

// Narration turns a video prompt into the spoken script used for the
// synthesized voice.
func Narration(prompt string) string {
	prompt = strings.TrimRight(strings.TrimSpace(prompt), ".!? ")
	lower := strings.ToLower(prompt)

	switch {
	case strings.Contains(lower, "gym") || strings.Contains(lower, "workout"):
		return fmt.Sprintf("Hey everyone! Today I'm showing you an amazing workout. %s. Let's get started and crush this training session!", prompt)
	case strings.Contains(lower, "exercise"):
		return fmt.Sprintf("What's up! Ready for today's exercise routine? %s. Let's do this together!", prompt)
	default:
		return fmt.Sprintf("Hello! Check out what I've got for you today. %s. Stay tuned and don't forget to like and subscribe!", prompt)
	}
}

type musicRule struct {
	keywords []string
	brief    string
}

// first match wins
var musicRules = []musicRule{
	{
		keywords: []string{"gym", "workout", "exercise", "fitness", "training"},
		brief:    "Energetic upbeat electronic gym workout music, motivational, powerful beats, 128 BPM, modern EDM style",
	},
	{
		keywords: []string{"luxury", "miami", "beach", "lifestyle"},
		brief:    "Smooth modern hip-hop beat, luxury lifestyle vibes, clean production, laid-back but confident",
	},
	{
		keywords: []string{"tutorial", "how to", "guide", "learn", "explain"},
		brief:    "Light corporate background music, clean and professional, subtle melody, not distracting",
	},
	{
		keywords: []string{"funny", "comedy", "joke", "fun"},
		brief:    "Playful upbeat music, fun and quirky, lighthearted melody, modern pop elements",
	},
	{
		keywords: []string{"inspire", "motivation", "success", "dream"},
		brief:    "Inspirational uplifting music, emotional but powerful, modern cinematic elements, building progression",
	},
}

const defaultMusicBrief = "Modern versatile background music, clean production, energetic but not overpowering, perfect for social media"

// MusicBrief picks the background music style for a video prompt.
func MusicBrief(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, rule := range musicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.brief
			}
		}
	}
	return defaultMusicBrief
}
