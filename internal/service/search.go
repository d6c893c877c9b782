package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_search_service.go -package=mocks fixnote/internal/service SearchService

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"fixnote/internal/contextutil"
	"fixnote/internal/llm"
	"fixnote/internal/metrics"
	"fixnote/internal/storage"
	"fixnote/internal/vectorstore"
)

// SearchMode selects one of the two query paths.
type SearchMode string

const (
	SearchLexical  SearchMode = "lexical"
	SearchSemantic SearchMode = "semantic"
)

const (
	// MinQueryLength is the shortest query, in characters, that reaches an index.
	MinQueryLength = 2
	// DefaultLexicalLimit and DefaultSemanticLimit apply when the request has no limit.
	DefaultLexicalLimit  = 20
	DefaultSemanticLimit = 10
	// MaxSearchLimit caps the limit of either mode.
	MaxSearchLimit = 50

	// Candidates fetched from the vector index per requested result, so
	// that dropping stale entries still leaves a full page.
	semanticOverfetch = 2
)

// SearchRequest is a single query for one owner.
type SearchRequest struct {
	Query   string
	Mode    SearchMode
	OwnerID string
	Limit   int
	// SemanticSearchAllowed is the caller's entitlement to the semantic path.
	SemanticSearchAllowed bool
}

// SearchHit is one ranked note. Score is the lexical rank or the cosine
// similarity depending on the request mode; higher is better in both.
type SearchHit struct {
	Note  *storage.Note
	Score float64
}

// NoteSearcher is the part of the note store the search paths read.
type NoteSearcher interface {
	Search(ctx context.Context, ownerID, query string, limit int) ([]storage.LexicalHit, error)
	GetMany(ctx context.Context, ids []string) (map[string]*storage.Note, error)
}

// SearchService routes queries to the lexical or the semantic index.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)
}

type searchService struct {
	notes    NoteSearcher
	embedder llm.Embedder
	vectors  vectorstore.VectorStore
	timeout  time.Duration
}

// NewSearchService creates a new SearchService. Every query is bounded by timeout.
func NewSearchService(notes NoteSearcher, embedder llm.Embedder, vectors vectorstore.VectorStore, timeout time.Duration) SearchService {
	return &searchService{
		notes:    notes,
		embedder: embedder,
		vectors:  vectors,
		timeout:  timeout,
	}
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	if req.Mode != SearchLexical && req.Mode != SearchSemantic {
		return nil, &ValidationError{Field: "mode", Message: "must be lexical or semantic"}
	}
	if req.OwnerID == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "cannot be blank"}
	}

	req.Query = strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(req.Query) < MinQueryLength {
		metrics.SearchDuration.WithLabelValues(string(req.Mode), "skipped").Observe(time.Since(start).Seconds())
		return []SearchHit{}, nil
	}
	req.Limit = normalizeLimit(req.Mode, req.Limit)

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		hits []SearchHit
		err  error
	)
	switch req.Mode {
	case SearchLexical:
		hits, err = s.lexical(sctx, req)
	case SearchSemantic:
		hits, err = s.semantic(sctx, req)
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ErrSearchTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	metrics.SearchDuration.WithLabelValues(string(req.Mode), outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.WarnContext(ctx, "search failed", "mode", req.Mode, "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "search completed", "mode", req.Mode, "results", len(hits), "duration_ms", time.Since(start).Milliseconds())
	return hits, nil
}

func (s *searchService) lexical(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	found, err := s.notes.Search(ctx, req.OwnerID, req.Query, req.Limit)
	if err != nil {
		return nil, queryError(ctx, ErrStorageUnavailable, "lexical search failed", err)
	}

	hits := make([]SearchHit, 0, len(found))
	for _, h := range found {
		hits = append(hits, SearchHit{Note: h.Note, Score: h.Rank})
	}
	return hits, nil
}

func (s *searchService) semantic(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if !req.SemanticSearchAllowed {
		return nil, ErrSemanticSearchForbidden
	}

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, queryError(ctx, ErrEmbeddingUnavailable, "failed to embed query", err)
	}

	candidates, err := s.vectors.Search(ctx, vec, req.OwnerID, req.Limit*semanticOverfetch)
	if err != nil {
		return nil, queryError(ctx, ErrStorageUnavailable, "vector search failed", err)
	}
	if len(candidates) == 0 {
		return []SearchHit{}, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.PointID)
	}
	notes, err := s.notes.GetMany(ctx, ids)
	if err != nil {
		return nil, queryError(ctx, ErrStorageUnavailable, "failed to load search candidates", err)
	}

	// Drop vector entries whose note was deleted or belongs to someone else.
	hits := make([]SearchHit, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		note, ok := notes[c.PointID]
		if !ok || note.OwnerID != req.OwnerID {
			continue
		}
		if _, dup := seen[note.ID]; dup {
			continue
		}
		seen[note.ID] = struct{}{}
		hits = append(hits, SearchHit{Note: note, Score: float64(c.Score)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Note.CreatedAt.After(hits[j].Note.CreatedAt)
	})
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func normalizeLimit(mode SearchMode, limit int) int {
	if limit <= 0 {
		if mode == SearchSemantic {
			return DefaultSemanticLimit
		}
		return DefaultLexicalLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

// queryError reports a deadline hit as ErrSearchTimeout and anything else as kind.
func queryError(ctx context.Context, kind error, msg string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, ErrSearchTimeout)
	}
	return fmt.Errorf("%s: %w: %v", msg, kind, err)
}
