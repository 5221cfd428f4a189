package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator renders bot messages for a language, falling back to English.
type Translator struct {
	bundle *i18n.Bundle
	def    string
}

func New(defaultLang string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, name := range []string{"locales/en.json", "locales/id.json"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, name); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}

	def, ok := supported(defaultLang)
	if !ok {
		def = language.English.String()
	}
	return &Translator{bundle: bundle, def: def}, nil
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Indonesian})

func supported(lang string) (string, bool) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return "", false
	}
	if index == 1 {
		return language.Indonesian.String(), true
	}
	return language.English.String(), true
}

// T localizes messageID. lang may be empty or any BCP 47 tag; unknown
// languages use the default.
func (t *Translator) T(lang, messageID string, data map[string]any) string {
	langs := []string{t.def}
	if l, ok := supported(lang); ok {
		langs = []string{l, t.def}
	}
	localizer := i18n.NewLocalizer(t.bundle, langs...)
	text, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return text
}
