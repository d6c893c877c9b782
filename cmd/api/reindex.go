package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every note into the vector index",
	Long: `Marks every note pending and embeds them all before exiting.
Run it after switching the embedding model or the vector backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		marked, err := a.states.MarkAllPending(ctx)
		if err != nil {
			return err
		}
		slog.Info("Marked notes for reindexing", "count", marked)

		processed, err := a.runner.Drain(ctx)
		if err != nil {
			return err
		}
		slog.Info("Reindex finished", "marked", marked, "processed", processed)
		return nil
	},
}
