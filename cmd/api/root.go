package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fixnote/internal/config"
)

var cfg *config.Config

// rootCmd runs the API server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "fixnote",
	Short: "Voice and text notes with full-text and semantic search",
	Long: `fixnote serves the note API behind the Telegram bot and Mini App.
Notes are stored in SQLite with a full-text index, and embedded into a
vector index in the background for semantic search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		setupLogging(cfg)
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, reindexCmd)
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", level.String(), "format", cfg.LogFormat)
}
