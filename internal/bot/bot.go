package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"relai/internal/i18n"
	"relai/internal/state"
	"relai/internal/workflow"
)

const maxDownloadBytes = 20 << 20

// ErrFileTooLarge is returned for Telegram files over the download limit.
var ErrFileTooLarge = errors.New("file too large")

// Narrator renders speech for the /preview command.
type Narrator interface {
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	tr         *i18n.Translator
	sessions   *state.Manager
	narrator   Narrator
	httpClient *http.Client
	log        zerolog.Logger

	userLocks sync.Map
	watchers  sync.Map
	wg        sync.WaitGroup
}

// New connects to Telegram. narrator may be nil, in which case /preview
// only shows text.
func New(token string, tr *i18n.Translator, sessions *state.Manager, narrator Narrator, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = false
	log.Info().Str("account", api.Self.UserName).Msg("authorized on telegram")

	b := newBot(api, tr, sessions, narrator, log)
	if err := b.setCommands(); err != nil {
		log.Warn().Err(err).Msg("failed to set bot commands")
	}
	return b, nil
}

func newBot(api *tgbotapi.BotAPI, tr *i18n.Translator, sessions *state.Manager, narrator Narrator, log zerolog.Logger) *Bot {
	return &Bot{
		api:        api,
		tr:         tr,
		sessions:   sessions,
		narrator:   narrator,
		httpClient: &http.Client{Timeout: time.Minute},
		log:        log,
	}
}

func (b *Bot) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Start a new video"},
		{Command: "suggest", Description: "Get video ideas"},
		{Command: "preview", Description: "Hear the narration for your prompt"},
		{Command: "status", Description: "Show the current settings"},
		{Command: "help", Description: "How it works"},
		{Command: "cancel", Description: "Cancel and start over"},
	}
	_, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...))
	return err
}

// Run receives updates until ctx is cancelled. Sessions that were waiting
// on a job when the process stopped are resumed first.
func (b *Bot) Run(ctx context.Context) error {
	b.resume(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return nil
		case upd, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return errors.New("telegram update channel closed")
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.dispatch(ctx, upd)
			}()
		}
	}
}

// resume starts a watcher for every persisted session still generating.
// Resumed watchers reply in the language stored with the session.
func (b *Bot) resume(ctx context.Context) {
	keys, err := b.sessions.ResumeGenerating(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to resume sessions")
	}
	for _, key := range keys {
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ctrl, _, err := b.sessions.Get(ctx, key)
		if err != nil {
			b.log.Error().Err(err).Str("session", key).Msg("could not load resumed session")
			continue
		}
		snap := ctrl.Snapshot()
		if snap.Job == nil {
			continue
		}
		b.log.Info().Str("session", key).Str("job", snap.Job.ID).Msg("resuming generation watch")
		// private chats share the user's id
		b.watch(ctx, userID, userID, snap.Job.ID, snap.Language)
	}
}

func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update) {
	var (
		userID int64
		lang   string
	)
	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		userID, lang = upd.CallbackQuery.From.ID, upd.CallbackQuery.From.LanguageCode
	case upd.Message != nil && upd.Message.From != nil:
		userID, lang = upd.Message.From.ID, upd.Message.From.LanguageCode
	default:
		return
	}

	mu, _ := b.userLocks.LoadOrStore(userID, &sync.Mutex{})
	userMutex := mu.(*sync.Mutex)
	userMutex.Lock()
	defer userMutex.Unlock()

	ctrl, _, err := b.sessions.Get(ctx, sessionKey(userID))
	if err != nil {
		b.log.Error().Err(err).Int64("user", userID).Msg("could not load session")
		chatID := userID
		if upd.Message != nil {
			chatID = upd.Message.Chat.ID
		}
		b.send(tgbotapi.NewMessage(chatID, b.tr.T(lang, "error_generic", nil)))
		return
	}
	ctrl.SetLanguage(lang)

	if upd.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, upd.CallbackQuery, ctrl)
	} else {
		b.handleMessage(ctx, upd.Message, ctrl)
	}

	if err := b.sessions.Save(ctx, sessionKey(userID)); err != nil {
		b.log.Error().Err(err).Int64("user", userID).Msg("failed to save session")
	}
}

// watch waits for jobID in the background and reports the outcome. Watchers
// are tracked per user by job, so a job started while an older watcher is
// still finishing gets its own.
func (b *Bot) watch(ctx context.Context, userID, chatID int64, jobID, lang string) {
	if prev, loaded := b.watchers.Swap(userID, jobID); loaded && prev == jobID {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.watchers.CompareAndDelete(userID, jobID)

		key := sessionKey(userID)
		ctrl, _, err := b.sessions.Get(ctx, key)
		if err != nil {
			b.log.Error().Err(err).Str("session", key).Msg("watch: could not load session")
			return
		}

		job, err := ctrl.Wait(ctx)
		b.watchers.CompareAndDelete(userID, jobID)
		if ctx.Err() != nil || workflow.IsCancelled(err) || errors.Is(err, workflow.ErrSuperseded) {
			return
		}
		if job.ID != jobID {
			// a newer job has its own watcher
			return
		}
		if saveErr := b.sessions.Save(ctx, key); saveErr != nil {
			b.log.Error().Err(saveErr).Str("session", key).Msg("failed to save session")
		}

		if err != nil {
			b.log.Warn().Err(err).Str("session", key).Msg("generation did not complete")
			msg := tgbotapi.NewMessage(chatID, b.tr.T(lang, errorMessageID(err), errorData(err)))
			msg.ReplyMarkup = configureKeyboard(b.tr, lang, ctrl.Snapshot())
			b.send(msg)
			return
		}

		b.log.Info().Str("session", key).Str("job", job.ID).Msg("video ready")
		msg := tgbotapi.NewMessage(chatID, b.tr.T(lang, "video_ready", nil))
		msg.ReplyMarkup = readyKeyboard(b.tr, lang)
		b.send(msg)
	}()
}

func (b *Bot) getFileBytes(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download telegram file: %s", resp.Status)
	}

	return readLimited(resp.Body, maxDownloadBytes)
}

// readLimited reads r to the end and fails instead of truncating when it
// holds more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn().Err(err).Msg("telegram send failed")
	}
}

func sessionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
