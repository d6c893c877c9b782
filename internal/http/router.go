package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fixnote/internal/handlers"
	"fixnote/internal/metrics"
	"fixnote/internal/service"
	"fixnote/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB             handlers.Pinger
	VectorStore    vectorstore.VectorStore
	NoteService    service.NoteService
	SearchService  service.SearchService
	Auth           *Authenticator
	SemanticAccess handlers.SemanticAccess
	PublicURL      string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(metrics.Middleware())

	// Add CORS middleware
	r.Use(CORS)

	notesHandler := handlers.NewNotesHandler(deps.NoteService, deps.PublicURL)
	searchHandler := handlers.NewSearchHandler(deps.SearchService, deps.SemanticAccess)
	sharedHandler := handlers.NewSharedNoteHandler(deps.NoteService)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.VectorStore)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/note/{token}", sharedHandler.Page)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Get("/shared/{token}", sharedHandler.JSON)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Middleware)

			r.Get("/notes", notesHandler.List)
			r.Post("/notes", notesHandler.Create)
			r.Post("/notes/search", searchHandler.Semantic)
			r.Post("/notes/search/fts", searchHandler.Lexical)
			r.Get("/notes/{id}", notesHandler.Get)
			r.Put("/notes/{id}", notesHandler.Update)
			r.Delete("/notes/{id}", notesHandler.Delete)
			r.Post("/notes/{id}/share", notesHandler.Share)
			r.Delete("/notes/{id}/share", notesHandler.RevokeShare)
			r.Get("/stats", notesHandler.Stats)
			r.Get("/index/status", notesHandler.IndexStatus)
		})
	})

	return r
}
