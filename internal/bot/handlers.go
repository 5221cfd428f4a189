package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relai/internal/ai"
	"relai/internal/media"
	"relai/internal/models"
	"relai/internal/workflow"
)

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message, ctrl *workflow.Controller) {
	lang := message.From.LanguageCode

	if message.IsCommand() {
		b.handleCommand(ctx, message, ctrl, lang)
		return
	}

	switch {
	case len(message.Photo) > 0:
		b.handlePhoto(ctx, message, ctrl, lang)
	case message.Document != nil && strings.HasPrefix(message.Document.MimeType, "image/"):
		b.uploadPhoto(ctx, message.Chat.ID, ctrl, lang, message.Document.FileID, message.Document.FileName, message.Document.MimeType)
	case message.Voice != nil:
		b.uploadVoice(ctx, message.Chat.ID, ctrl, lang, message.Voice.FileID, "voice_"+message.Voice.FileUniqueID+".ogg", message.Voice.MimeType)
	case message.Audio != nil:
		b.uploadVoice(ctx, message.Chat.ID, ctrl, lang, message.Audio.FileID, message.Audio.FileName, message.Audio.MimeType)
	case message.Document != nil && strings.HasPrefix(message.Document.MimeType, "audio/"):
		b.uploadVoice(ctx, message.Chat.ID, ctrl, lang, message.Document.FileID, message.Document.FileName, message.Document.MimeType)
	case message.Text != "":
		b.handlePromptText(message, ctrl, lang)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, ctrl *workflow.Controller, lang string) {
	chatID := message.Chat.ID
	switch message.Command() {
	case "start":
		ctrl.StartOver()
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "start_message", nil)))
	case "cancel":
		ctrl.StartOver()
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "cancel_message", nil)))
	case "help":
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "help_message", nil)))
	case "status":
		b.sendStatus(chatID, ctrl, lang)
	case "suggest":
		b.fetchSuggestions(ctx, chatID, ctrl, lang, message.CommandArguments())
	case "preview":
		b.sendPreview(ctx, chatID, ctrl, lang)
	default:
		b.log.Debug().Str("command", message.Command()).Msg("unknown command")
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery, ctrl *workflow.Controller) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("failed to acknowledge callback query")
	}

	chatID := callback.Message.Chat.ID
	lang := callback.From.LanguageCode

	if i, ok := parseSuggestionIndex(callback.Data); ok {
		if err := ctrl.SelectSuggestion(i); err != nil {
			b.sendError(chatID, lang, err)
			return
		}
		b.clearKeyboard(chatID, callback.Message.MessageID)
		b.sendConfigure(chatID, ctrl, lang, "prompt_selected")
		return
	}

	switch callback.Data {
	case cbFetchSuggestions:
		b.fetchSuggestions(ctx, chatID, ctrl, lang, "")
	case cbVoiceSynth:
		b.setVoice(chatID, ctrl, lang, models.VoiceSynthesized)
	case cbVoiceClone:
		b.setVoice(chatID, ctrl, lang, models.VoiceCloned)
	case cbChangePhoto:
		if err := ctrl.ChangePhoto(); err != nil {
			b.sendError(chatID, lang, err)
			return
		}
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "change_photo_prompt", nil)))
	case cbGenerate:
		b.generate(ctx, chatID, callback.From.ID, ctrl, lang)
	case cbDownload:
		b.sendDownload(ctx, chatID, ctrl, lang)
	case cbStartOver:
		ctrl.StartOver()
		b.clearKeyboard(chatID, callback.Message.MessageID)
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "start_message", nil)))
	default:
		b.log.Debug().Str("data", callback.Data).Msg("unknown callback data")
	}
}

func (b *Bot) handlePhoto(ctx context.Context, message *tgbotapi.Message, ctrl *workflow.Controller, lang string) {
	// the last size is the largest
	photo := message.Photo[len(message.Photo)-1]
	b.uploadPhoto(ctx, message.Chat.ID, ctrl, lang, photo.FileID, "photo_"+photo.FileUniqueID+".jpg", "image/jpeg")
}

func (b *Bot) uploadPhoto(ctx context.Context, chatID int64, ctrl *workflow.Controller, lang, fileID, name, mimeType string) {
	switch ctrl.State() {
	case models.StateGenerating, models.StateReady:
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "finish_first", nil)))
		return
	}

	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "uploading_photo", nil)))
	replaced, err := acceptPhoto(ctx, ctrl, fileID, func() (workflow.File, error) {
		return b.fetchFile(ctx, models.KindPhoto, fileID, name, mimeType)
	})
	if err != nil {
		b.sendError(chatID, lang, err)
		return
	}

	next := "photo_received"
	if replaced || strings.TrimSpace(ctrl.Snapshot().Prompt) != "" {
		next = "photo_replaced"
	}
	b.sendConfigure(chatID, ctrl, lang, next)
}

// acceptPhoto fetches and validates the file before touching the workflow.
// While configuring, the new photo replaces the current one only once it has
// been uploaded.
func acceptPhoto(ctx context.Context, ctrl *workflow.Controller, local string, fetch func() (workflow.File, error)) (replaced bool, err error) {
	file, err := fetch()
	if err != nil {
		return false, err
	}
	if ctrl.State() == models.StateConfiguring {
		return true, ctrl.ReplacePhoto(ctx, local, file)
	}
	return false, ctrl.UploadPhoto(ctx, local, file)
}

func (b *Bot) uploadVoice(ctx context.Context, chatID int64, ctrl *workflow.Controller, lang, fileID, name, mimeType string) {
	if ctrl.State() != models.StateConfiguring {
		b.sendError(chatID, lang, workflow.ErrInvalidState)
		return
	}

	file, err := b.fetchFile(ctx, models.KindVoice, fileID, name, mimeType)
	if err != nil {
		b.sendError(chatID, lang, err)
		return
	}

	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "uploading_voice", nil)))
	if err := ctrl.UploadVoice(ctx, fileID, file); err != nil {
		b.sendError(chatID, lang, err)
		return
	}
	// sending a sample means the user wants their own voice
	if err := ctrl.SetVoiceChoice(models.VoiceCloned); err != nil {
		b.sendError(chatID, lang, err)
		return
	}
	b.sendConfigure(chatID, ctrl, lang, "voice_received")
}

func (b *Bot) fetchFile(ctx context.Context, kind models.AssetKind, fileID, name, mimeType string) (workflow.File, error) {
	data, err := b.getFileBytes(ctx, fileID)
	if err != nil {
		return workflow.File{}, &workflow.UploadFailedError{Kind: kind, Message: err.Error(), Err: err}
	}
	if name == "" {
		name = string(kind)
	}
	return media.NewFile(kind, name, mimeType, data)
}

func (b *Bot) handlePromptText(message *tgbotapi.Message, ctrl *workflow.Controller, lang string) {
	chatID := message.Chat.ID
	switch ctrl.State() {
	case models.StateAwaitingPhoto:
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "please_upload_photo", nil)))
	case models.StateGenerating:
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "still_generating", nil)))
	case models.StateReady:
		msg := tgbotapi.NewMessage(chatID, b.tr.T(lang, "finish_first", nil))
		msg.ReplyMarkup = readyKeyboard(b.tr, lang)
		b.send(msg)
	case models.StateConfiguring:
		if err := ctrl.SetPrompt(message.Text); err != nil {
			b.sendError(chatID, lang, err)
			return
		}
		b.sendConfigure(chatID, ctrl, lang, "prompt_saved")
	}
}

func (b *Bot) setVoice(chatID int64, ctrl *workflow.Controller, lang string, choice models.VoiceChoice) {
	if err := ctrl.SetVoiceChoice(choice); err != nil {
		b.sendError(chatID, lang, err)
		return
	}
	next := "voice_synth_selected"
	if choice == models.VoiceCloned {
		next = "voice_clone_selected"
		if !ctrl.Snapshot().Voice.Resolved() {
			next = "voice_clone_needs_sample"
		}
	}
	b.sendConfigure(chatID, ctrl, lang, next)
}

func (b *Bot) fetchSuggestions(ctx context.Context, chatID int64, ctrl *workflow.Controller, lang, topic string) {
	if strings.TrimSpace(topic) == "" {
		topic = ctrl.Snapshot().Prompt
	}

	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "fetching_suggestions", nil)))
	suggestions, err := ctrl.FetchSuggestions(ctx, topic, "")
	if errors.Is(err, workflow.ErrSuperseded) {
		return
	}
	if err != nil {
		b.sendError(chatID, lang, err)
		return
	}
	if len(suggestions) == 0 {
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "no_suggestions", nil)))
		return
	}

	msg := tgbotapi.NewMessage(chatID, suggestionsText(b.tr, lang, suggestions))
	msg.ReplyMarkup = suggestionsKeyboard(suggestions)
	b.send(msg)
}

func (b *Bot) generate(ctx context.Context, chatID, userID int64, ctrl *workflow.Controller, lang string) {
	jobID, err := ctrl.Generate(ctx)
	if errors.Is(err, workflow.ErrSuperseded) {
		return
	}
	if err != nil {
		b.sendError(chatID, lang, err)
		return
	}

	b.log.Info().Int64("user", userID).Str("job", jobID).Msg("generation started")
	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "generation_started", nil)))
	b.watch(ctx, userID, chatID, jobID, lang)
}

func (b *Bot) sendDownload(ctx context.Context, chatID int64, ctrl *workflow.Controller, lang string) {
	ref, err := ctrl.Download(ctx)
	if err != nil {
		b.sendError(chatID, lang, err)
		return
	}
	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "download_link", map[string]any{
		"URL":      ref.URL,
		"Filename": ref.Filename,
	})))
}

func (b *Bot) sendPreview(ctx context.Context, chatID int64, ctrl *workflow.Controller, lang string) {
	prompt := strings.TrimSpace(ctrl.Snapshot().Prompt)
	if prompt == "" {
		b.sendError(chatID, lang, workflow.ErrPromptRequired)
		return
	}

	narration := ai.Narration(prompt)
	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "preview_message", map[string]any{
		"Narration": narration,
		"Music":     ai.MusicBrief(prompt),
	})))

	if b.narrator == nil {
		return
	}
	audio, err := b.narrator.TextToSpeech(ctx, narration)
	if err != nil {
		b.log.Warn().Err(err).Msg("narration preview failed")
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "error_preview_audio", nil)))
		return
	}
	b.send(tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("preview_%d.mp3", chatID),
		Bytes: audio,
	}))
}

func (b *Bot) sendStatus(chatID int64, ctrl *workflow.Controller, lang string) {
	s := ctrl.Snapshot()
	msg := tgbotapi.NewMessage(chatID, statusText(b.tr, lang, s))
	switch s.State {
	case models.StateConfiguring:
		msg.ReplyMarkup = configureKeyboard(b.tr, lang, s)
	case models.StateReady:
		msg.ReplyMarkup = readyKeyboard(b.tr, lang)
	}
	b.send(msg)
}

func (b *Bot) sendConfigure(chatID int64, ctrl *workflow.Controller, lang, messageID string) {
	s := ctrl.Snapshot()
	msg := tgbotapi.NewMessage(chatID, b.tr.T(lang, messageID, nil)+"\n\n"+statusText(b.tr, lang, s))
	msg.ReplyMarkup = configureKeyboard(b.tr, lang, s)
	b.send(msg)
}

func (b *Bot) sendError(chatID int64, lang string, err error) {
	b.log.Debug().Err(err).Int64("chat", chatID).Msg("reporting error to user")
	b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, errorMessageID(err), errorData(err))))
}

func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))
}
