package handlers

import (
	"net/http"
	"time"

	"fixnote/internal/contextutil"
	"fixnote/internal/service"
)

// SemanticAccess decides whether an owner may use semantic search.
type SemanticAccess interface {
	SemanticSearchAllowed(ownerID string) bool
}

// SearchHandler serves the lexical and semantic search endpoints.
type SearchHandler struct {
	search service.SearchService
	access SemanticAccess
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(search service.SearchService, access SemanticAccess) *SearchHandler {
	return &SearchHandler{search: search, access: access}
}

// SearchRequest is the JSON body of both search endpoints.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResult is one ranked note. Rank is set by lexical search,
// Similarity by semantic search.
type SearchResult struct {
	ID              string   `json:"id"`
	Content         string   `json:"content"`
	Summary         *string  `json:"summary"`
	Source          string   `json:"source"`
	DurationSeconds *int     `json:"duration_seconds"`
	CreatedAt       string   `json:"created_at"`
	Rank            *float64 `json:"rank,omitempty"`
	Similarity      *float64 `json:"similarity,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string         `json:"query"`
	Mode    string         `json:"mode"`
	Results []SearchResult `json:"results"`
}

// Lexical handles POST /api/notes/search/fts.
func (h *SearchHandler) Lexical(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, service.SearchLexical)
}

// Semantic handles POST /api/notes/search.
func (h *SearchHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, service.SearchSemantic)
}

func (h *SearchHandler) serve(w http.ResponseWriter, r *http.Request, mode service.SearchMode) {
	ctx := r.Context()
	owner := contextutil.OwnerFromContext(ctx)

	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hits, err := h.search.Search(ctx, service.SearchRequest{
		Query:                 req.Query,
		Mode:                  mode,
		OwnerID:               owner,
		Limit:                 req.Limit,
		SemanticSearchAllowed: mode == service.SearchSemantic && h.access.SemanticSearchAllowed(owner),
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Search failed")
		return
	}

	resp := SearchResponse{
		Query:   req.Query,
		Mode:    string(mode),
		Results: make([]SearchResult, 0, len(hits)),
	}
	for _, hit := range hits {
		n := hit.Note
		result := SearchResult{
			ID:              n.ID,
			Content:         n.Content,
			Source:          string(n.Source),
			DurationSeconds: n.DurationSeconds,
			CreatedAt:       n.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if n.Summary != "" {
			summary := n.Summary
			result.Summary = &summary
		}
		score := hit.Score
		if mode == service.SearchLexical {
			result.Rank = &score
		} else {
			result.Similarity = &score
		}
		resp.Results = append(resp.Results, result)
	}
	writeJSON(w, http.StatusOK, resp)
}
