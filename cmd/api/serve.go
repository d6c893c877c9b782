package main

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fixnote/internal/http"
	"fixnote/internal/llm"
	"fixnote/internal/metrics"
	"fixnote/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the index synchronizer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var summarizer service.Summarizer
	if cfg.SummaryEnabled() {
		summarizer = llm.NewClient(cfg.SummaryBaseURL, cfg.SummaryAPIKey, cfg.SummaryModel)
		slog.Info("Summarizer enabled", "base_url", cfg.SummaryBaseURL, "model", cfg.SummaryModel)
	}

	noteService := service.NewNoteService(a.notes, a.sync, a.states, summarizer)
	searchService := service.NewSearchService(a.notes, a.embedder, a.vectors, cfg.SearchTimeout)

	router := http.NewRouter(&http.Deps{
		DB:            a.db,
		VectorStore:   a.vectors,
		NoteService:   noteService,
		SearchService: searchService,
		Auth: http.NewAuthenticator(http.AuthConfig{
			Mode:         http.AuthMode(cfg.AuthMode),
			BotToken:     cfg.TelegramBotToken,
			AllowedUsers: cfg.AllowedUserIDs,
			MaxAge:       cfg.InitDataMaxAge,
		}),
		SemanticAccess: http.NewSemanticAccess(cfg.SemanticSearchUsers),
		PublicURL:      cfg.PublicURL,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sync.Run(gctx)
	})
	g.Go(func() error {
		return a.runner.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("Starting API server", "addr", server.Addr, "auth_mode", cfg.AuthMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
