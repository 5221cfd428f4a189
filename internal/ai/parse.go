package ai

import (
	"strconv"
	"strings"
	"unicode"

	"relai/internal/models"
)

const defaultSuggestionDuration = 30

// ParseSuggestions reads the labelled block format requested from the
// model. Each "Title:" line opens a new suggestion; unlabelled lines are
// ignored.
func ParseSuggestions(text string) []models.Suggestion {
	var (
		out     []models.Suggestion
		current *models.Suggestion
	)

	flush := func() {
		if current != nil {
			out = append(out, *current)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)

		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(label)) {
		case "title":
			flush()
			current = &models.Suggestion{Title: value, Duration: defaultSuggestionDuration}
		case "description":
			if current != nil {
				current.Description = value
			}
		case "duration":
			if current != nil {
				current.Duration = parseSeconds(value)
			}
		case "platforms":
			if current != nil {
				current.Platforms = splitList(value)
			}
		case "hashtags":
			if current != nil {
				current.Hashtags = splitHashtags(value)
			}
		case "hook":
			if current != nil {
				current.Hook = value
			}
		}
	}
	flush()
	return out
}

// cleanLine drops list numbering and markdown emphasis the model tends to add.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*#0123456789. ")
	return strings.ReplaceAll(s, "**", "")
}

func parseSeconds(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n <= 0 {
		return defaultSuggestionDuration
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitHashtags(s string) []string {
	var out []string
	for _, p := range splitList(s) {
		out = append(out, strings.Fields(p)...)
	}
	return out
}
