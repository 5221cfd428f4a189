package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relai/internal/config"
	applog "relai/internal/log"
)

var (
	envFileFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "relai",
	Short: "Turn a photo and a prompt into a short AI video",
	Long: `relai drives the photo-to-video workflow against the generation backend:
upload a photo, describe the video (or pick a suggested idea), choose the
synthesized narrator or a clone of your own voice, then generate and
download.

Run it as a Telegram bot, or headless for a single video:
  relai bot
  relai generate --photo me.jpg --prompt "sunrise run on the beach"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.AddCommand(botCmd, generateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFileFlag)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return cfg, applog.New(level), nil
}
