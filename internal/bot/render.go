package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relai/internal/i18n"
	"relai/internal/media"
	"relai/internal/models"
	"relai/internal/workflow"
)

const (
	cbSuggestPrefix    = "suggest_"
	cbFetchSuggestions = "suggestions"
	cbVoiceSynth       = "voice_synth"
	cbVoiceClone       = "voice_clone"
	cbChangePhoto      = "change_photo"
	cbGenerate         = "generate"
	cbDownload         = "download"
	cbStartOver        = "start_over"

	maxButtonTitle = 48
)

func configureKeyboard(tr *i18n.Translator, lang string, s models.Session) tgbotapi.InlineKeyboardMarkup {
	synth := tr.T(lang, "button_voice_synth", nil)
	clone := tr.T(lang, "button_voice_clone", nil)
	if s.VoiceChoice == models.VoiceCloned {
		clone = "✅ " + clone
	} else {
		synth = "✅ " + synth
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr.T(lang, "button_suggestions", nil), cbFetchSuggestions),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(synth, cbVoiceSynth),
			tgbotapi.NewInlineKeyboardButtonData(clone, cbVoiceClone),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr.T(lang, "button_change_photo", nil), cbChangePhoto),
		),
	}
	if s.CanGenerate() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr.T(lang, "button_generate", nil), cbGenerate),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(tr.T(lang, "button_start_over", nil), cbStartOver),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func suggestionsKeyboard(suggestions []models.Suggestion) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, s := range suggestions {
		label := fmt.Sprintf("%d. %s", i+1, truncate(s.Title, maxButtonTitle))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbSuggestPrefix+strconv.Itoa(i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func readyKeyboard(tr *i18n.Translator, lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr.T(lang, "button_download", nil), cbDownload),
			tgbotapi.NewInlineKeyboardButtonData(tr.T(lang, "button_start_over", nil), cbStartOver),
		),
	)
}

func suggestionsText(tr *i18n.Translator, lang string, suggestions []models.Suggestion) string {
	var b strings.Builder
	b.WriteString(tr.T(lang, "suggestions_header", nil))
	for i, s := range suggestions {
		fmt.Fprintf(&b, "\n\n%d. %s\n%s", i+1, s.Title, s.Description)
		if s.Hook != "" {
			fmt.Fprintf(&b, "\n🎬 %s", s.Hook)
		}
		var meta []string
		if s.Duration > 0 {
			meta = append(meta, fmt.Sprintf("%ds", s.Duration))
		}
		if len(s.Platforms) > 0 {
			meta = append(meta, strings.Join(s.Platforms, ", "))
		}
		if len(meta) > 0 {
			fmt.Fprintf(&b, "\n⏱ %s", strings.Join(meta, " · "))
		}
		if len(s.Hashtags) > 0 {
			fmt.Fprintf(&b, "\n%s", strings.Join(s.Hashtags, " "))
		}
	}
	return b.String()
}

func statusText(tr *i18n.Translator, lang string, s models.Session) string {
	prompt := s.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = tr.T(lang, "status_no_prompt", nil)
	}
	voice := tr.T(lang, "button_voice_synth", nil)
	if s.VoiceChoice == models.VoiceCloned {
		voice = tr.T(lang, "button_voice_clone", nil)
		switch {
		case s.Voice == nil:
			voice += " (" + tr.T(lang, "status_voice_missing", nil) + ")"
		case s.Voice.Remote == models.RemotePending:
			voice += " (" + tr.T(lang, "status_voice_uploading", nil) + ")"
		case s.Voice.Remote == models.RemoteFailed:
			voice += " (" + tr.T(lang, "status_voice_failed", nil) + ")"
		}
	}

	return tr.T(lang, "status_message", map[string]any{
		"State":  tr.T(lang, "state_"+string(s.State), nil),
		"Prompt": prompt,
		"Voice":  voice,
	})
}

// errorMessageID maps a workflow error to the message shown to the user.
func errorMessageID(err error) string {
	var (
		uploadErr  *workflow.UploadFailedError
		suggestErr *workflow.SuggestionFetchFailedError
		requestErr *workflow.GenerationRequestFailedError
		pollErr    *workflow.PollingFailedError
		genErr     *workflow.GenerationFailedError
	)
	switch {
	case errors.Is(err, workflow.ErrPromptRequired):
		return "error_prompt_required"
	case errors.Is(err, workflow.ErrPhotoRequired):
		return "error_photo_required"
	case errors.Is(err, workflow.ErrVoiceRequired):
		return "error_voice_required"
	case errors.Is(err, workflow.ErrVoicePending):
		return "error_voice_pending"
	case errors.Is(err, workflow.ErrOperationInProgress):
		return "error_busy"
	case errors.Is(err, workflow.ErrNoSuchSuggestion):
		return "error_no_such_suggestion"
	case errors.Is(err, workflow.ErrInvalidState):
		return "error_invalid_state"
	case errors.Is(err, media.ErrUnsupportedType):
		return "error_unsupported_media"
	case errors.As(err, &uploadErr):
		return "error_upload_failed"
	case errors.As(err, &suggestErr):
		return "error_suggestions_failed"
	case errors.As(err, &requestErr):
		return "error_generation_request_failed"
	case errors.As(err, &pollErr):
		return "error_polling_failed"
	case errors.As(err, &genErr):
		return "error_generation_failed"
	}
	return "error_generic"
}

func errorData(err error) map[string]any {
	var genErr *workflow.GenerationFailedError
	if errors.As(err, &genErr) {
		return map[string]any{"Detail": genErr.Detail}
	}
	return map[string]any{"Detail": err.Error()}
}

func parseSuggestionIndex(data string) (int, bool) {
	raw, ok := strings.CutPrefix(data, cbSuggestPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
