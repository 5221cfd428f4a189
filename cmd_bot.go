package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relai/internal/bot"
	"relai/internal/i18n"
	"relai/internal/jobs"
	"relai/internal/state"
	"relai/internal/workflow"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Starts the Telegram front end. Each chat gets its own workflow; sessions
are persisted so a restart resumes videos that were still generating.`,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireBot(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(cfg, log)
	if err != nil {
		return err
	}
	suggester, err := newSuggester(cfg, backend, log)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("could not open session store")
		return err
	}
	defer store.Close()

	tr, err := i18n.New(cfg.DefaultLang)
	if err != nil {
		return err
	}

	opts := controllerOptions(cfg, log.With().Str("component", "workflow").Logger())
	sessions := state.NewManager(store, func() *workflow.Controller {
		return workflow.New(backend, suggester, backend, opts...)
	}, log.With().Str("component", "sessions").Logger())
	defer sessions.Close()

	telegram, err := bot.New(cfg.TelegramBotToken, tr, sessions, newNarrator(cfg, log), log.With().Str("component", "bot").Logger())
	if err != nil {
		return err
	}
	janitor := jobs.NewJanitor(sessions, cfg.JanitorSchedule, cfg.SessionTTL, log.With().Str("component", "janitor").Logger())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return telegram.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx) })

	log.Info().Str("store", cfg.SessionStore).Str("backend", cfg.BackendURL).Msg("bot started")
	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("bot stopped")
		return err
	}
	log.Info().Msg("bot shut down")
	return nil
}
