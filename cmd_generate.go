package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"relai/internal/ai"
	"relai/internal/media"
	"relai/internal/models"
	"relai/internal/workflow"
)

var (
	photoFlag   string
	promptFlag  string
	voiceFlag   string
	topicFlag   string
	suggestFlag bool
	previewFlag bool
	timeoutFlag time.Duration
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one video from the command line",
	Long: `Runs the whole workflow once without the bot: upload the photo, set the
prompt, pick the voice, generate, wait for the job and print the download
link.

Examples:
  relai generate --photo me.jpg --prompt "sunrise run on the beach"
  relai generate --photo me.jpg --voice sample.m4a --prompt "gym session"
  relai generate --photo me.jpg --suggest --topic "fitness coach"`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&photoFlag, "photo", "", "photo of the person to animate (required)")
	f.StringVarP(&promptFlag, "prompt", "p", "", "description of the video")
	f.StringVar(&voiceFlag, "voice", "", "voice sample to clone; the synthesized narrator is used when empty")
	f.StringVar(&topicFlag, "topic", "", "topic for --suggest")
	f.BoolVar(&suggestFlag, "suggest", false, "fetch ideas and use the first one when --prompt is empty")
	f.BoolVar(&previewFlag, "preview", false, "print the narration and music brief before generating")
	f.DurationVar(&timeoutFlag, "timeout", 15*time.Minute, "give up waiting after this long (0 waits forever)")
	generateCmd.MarkFlagRequired("photo")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	runLog := log.With().Str("session", uuid.NewString()).Logger()

	backend, err := newBackend(cfg, runLog)
	if err != nil {
		return err
	}
	suggester, err := newSuggester(cfg, backend, runLog)
	if err != nil {
		return err
	}
	ctrl := workflow.New(backend, suggester, backend, controllerOptions(cfg, runLog)...)
	defer ctrl.Close()

	photo, err := readUpload(models.KindPhoto, photoFlag)
	if err != nil {
		return err
	}
	if err := ctrl.UploadPhoto(ctx, photoFlag, photo); err != nil {
		return err
	}
	runLog.Info().Str("photo", photoFlag).Msg("photo uploaded")

	if voiceFlag != "" {
		voice, err := readUpload(models.KindVoice, voiceFlag)
		if err != nil {
			return err
		}
		if err := ctrl.UploadVoice(ctx, voiceFlag, voice); err != nil {
			return err
		}
		if err := ctrl.SetVoiceChoice(models.VoiceCloned); err != nil {
			return err
		}
		runLog.Info().Str("voice", voiceFlag).Msg("voice sample uploaded")
	}

	prompt := promptFlag
	if suggestFlag {
		suggestions, err := ctrl.FetchSuggestions(ctx, topicFlag, "")
		if err != nil {
			return err
		}
		printSuggestions(cmd, suggestions)
		if strings.TrimSpace(prompt) == "" && len(suggestions) > 0 {
			if err := ctrl.SelectSuggestion(0); err != nil {
				return err
			}
			prompt = ctrl.Snapshot().Prompt
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return workflow.ErrPromptRequired
	}
	if err := ctrl.SetPrompt(prompt); err != nil {
		return err
	}

	if previewFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "Narration: %s\nMusic: %s\n\n", ai.Narration(prompt), ai.MusicBrief(prompt))
	}

	jobID, err := ctrl.Generate(ctx)
	if err != nil {
		return err
	}
	runLog.Info().Str("job", jobID).Msg("generation started, waiting for the video")

	if _, err := ctrl.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("job %s still running after %s: %w", jobID, timeoutFlag, err)
		}
		return err
	}

	ref, err := ctrl.Download(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ref.Filename, ref.URL)
	return nil
}

func readUpload(kind models.AssetKind, path string) (workflow.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.File{}, fmt.Errorf("read %s: %w", kind, err)
	}
	return media.NewFile(kind, filepath.Base(path), "", data)
}

func printSuggestions(cmd *cobra.Command, suggestions []models.Suggestion) {
	out := cmd.OutOrStdout()
	for i, s := range suggestions {
		fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, s.Title, s.Description)
		if len(s.Hashtags) > 0 {
			fmt.Fprintf(out, "   %s\n", strings.Join(s.Hashtags, " "))
		}
	}
	fmt.Fprintln(out)
}
