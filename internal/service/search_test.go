package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	llmmocks "fixnote/internal/llm/mocks"
	"fixnote/internal/service"
	"fixnote/internal/storage"
	storagemocks "fixnote/internal/storage/mocks"
	"fixnote/internal/vectorstore"
	vectormocks "fixnote/internal/vectorstore/mocks"
)

type searchDeps struct {
	store    *storagemocks.MockNoteStore
	embedder *llmmocks.MockEmbedder
	vectors  *vectormocks.MockVectorStore
}

func newSearchService(t *testing.T, timeout time.Duration) (service.SearchService, searchDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	deps := searchDeps{
		store:    storagemocks.NewMockNoteStore(ctrl),
		embedder: llmmocks.NewMockEmbedder(ctrl),
		vectors:  vectormocks.NewMockVectorStore(ctrl),
	}
	return service.NewSearchService(deps.store, deps.embedder, deps.vectors, timeout), deps
}

func TestSearchService_ShortQuery(t *testing.T) {
	queries := []string{"", " ", "a", "  é  ", "\t?\n"}

	for _, mode := range []service.SearchMode{service.SearchLexical, service.SearchSemantic} {
		for _, q := range queries {
			// Strict mocks: any index or embedder call fails the test.
			svc, _ := newSearchService(t, time.Second)

			hits, err := svc.Search(testContext(), service.SearchRequest{
				Query: q, Mode: mode, OwnerID: "u1", SemanticSearchAllowed: true,
			})
			if err != nil {
				t.Errorf("Search(%q, %s) error = %v", q, mode, err)
			}
			if hits == nil || len(hits) != 0 {
				t.Errorf("Search(%q, %s) = %v, want empty list", q, mode, hits)
			}
		}
	}
}

func TestSearchService_InvalidRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       service.SearchRequest
		wantField string
	}{
		{name: "unknown mode", req: service.SearchRequest{Query: "milk", Mode: "hybrid", OwnerID: "u1"}, wantField: "mode"},
		{name: "missing owner", req: service.SearchRequest{Query: "milk", Mode: service.SearchLexical}, wantField: "owner_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newSearchService(t, time.Second)
			_, err := svc.Search(testContext(), tt.req)
			var vErr *service.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.wantField {
				t.Errorf("Search() error = %v, want ValidationError on %s", err, tt.wantField)
			}
		})
	}
}

func TestSearchService_Lexical(t *testing.T) {
	older := &storage.Note{ID: "a", OwnerID: "u1", Content: "Buy milk", CreatedAt: time.Unix(100, 0)}
	newer := &storage.Note{ID: "b", OwnerID: "u1", Content: "milk again", CreatedAt: time.Unix(200, 0)}

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "default limit", limit: 0, wantLimit: 20},
		{name: "explicit limit", limit: 7, wantLimit: 7},
		{name: "capped limit", limit: 500, wantLimit: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newSearchService(t, time.Second)
			deps.store.EXPECT().
				Search(gomock.Any(), "u1", "milk", tt.wantLimit).
				Return([]storage.LexicalHit{{Note: newer, Rank: 1.5}, {Note: older, Rank: 1.5}}, nil)

			hits, err := svc.Search(testContext(), service.SearchRequest{
				Query: "  milk ", Mode: service.SearchLexical, OwnerID: "u1", Limit: tt.limit,
			})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(hits) != 2 || hits[0].Note.ID != "b" || hits[1].Note.ID != "a" {
				t.Fatalf("Search() = %+v, want store order b, a", hits)
			}
			if hits[0].Score <= 0 {
				t.Errorf("rank = %v, want > 0", hits[0].Score)
			}
		})
	}
}

func TestSearchService_Lexical_StoreDown(t *testing.T) {
	svc, deps := newSearchService(t, time.Second)
	deps.store.EXPECT().Search(gomock.Any(), "u1", "milk", 20).Return(nil, errors.New("disk I/O error"))

	_, err := svc.Search(testContext(), service.SearchRequest{Query: "milk", Mode: service.SearchLexical, OwnerID: "u1"})
	if !errors.Is(err, service.ErrStorageUnavailable) {
		t.Errorf("Search() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestSearchService_Semantic(t *testing.T) {
	grocery := &storage.Note{ID: "grocery", OwnerID: "u1", Content: "Buy milk and eggs tomorrow", CreatedAt: time.Unix(100, 0)}
	tieOld := &storage.Note{ID: "tie-old", OwnerID: "u1", Content: "pick up bread", CreatedAt: time.Unix(50, 0)}
	tieNew := &storage.Note{ID: "tie-new", OwnerID: "u1", Content: "pick up cheese", CreatedAt: time.Unix(300, 0)}
	taxes := &storage.Note{ID: "taxes", OwnerID: "u1", Content: "quarterly tax filing", CreatedAt: time.Unix(400, 0)}
	foreign := &storage.Note{ID: "foreign", OwnerID: "u2", Content: "someone else's groceries", CreatedAt: time.Unix(500, 0)}

	query := []float32{0.1, 0.2, 0.3}
	svc, deps := newSearchService(t, time.Second)
	deps.embedder.EXPECT().Embed(gomock.Any(), "grocery shopping list").Return(query, nil)
	deps.vectors.EXPECT().
		Search(gomock.Any(), query, "u1", 6).
		Return([]vectorstore.SearchResult{
			{PointID: "foreign", Score: 0.99, OwnerID: "u1"},
			{PointID: "grocery", Score: 0.91, OwnerID: "u1"},
			{PointID: "deleted", Score: 0.90, OwnerID: "u1"},
			{PointID: "tie-old", Score: 0.5, OwnerID: "u1"},
			{PointID: "tie-new", Score: 0.5, OwnerID: "u1"},
			{PointID: "taxes", Score: 0.12, OwnerID: "u1"},
		}, nil)
	deps.store.EXPECT().
		GetMany(gomock.Any(), gomock.Any()).
		Return(map[string]*storage.Note{
			"foreign": foreign,
			"grocery": grocery,
			"tie-old": tieOld,
			"tie-new": tieNew,
			"taxes":   taxes,
		}, nil)

	hits, err := svc.Search(testContext(), service.SearchRequest{
		Query: "grocery shopping list", Mode: service.SearchSemantic, OwnerID: "u1", Limit: 3, SemanticSearchAllowed: true,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []string{"grocery", "tie-new", "tie-old"}
	if len(hits) != len(want) {
		t.Fatalf("Search() returned %d hits, want %d: %+v", len(hits), len(want), hits)
	}
	for i, id := range want {
		if hits[i].Note.ID != id {
			t.Errorf("hit %d = %s, want %s", i, hits[i].Note.ID, id)
		}
		if hits[i].Note.OwnerID != "u1" {
			t.Errorf("hit %d belongs to %s", i, hits[i].Note.OwnerID)
		}
	}
}

func TestSearchService_Semantic_DefaultLimit(t *testing.T) {
	svc, deps := newSearchService(t, time.Second)
	deps.embedder.EXPECT().Embed(gomock.Any(), "anything").Return([]float32{1}, nil)
	deps.vectors.EXPECT().Search(gomock.Any(), gomock.Any(), "u1", 20).Return(nil, nil)

	hits, err := svc.Search(testContext(), service.SearchRequest{
		Query: "anything", Mode: service.SearchSemantic, OwnerID: "u1", SemanticSearchAllowed: true,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("Search() = %v, want empty list", hits)
	}
}

func TestSearchService_Semantic_Errors(t *testing.T) {
	tests := []struct {
		name    string
		allowed bool
		setup   func(d searchDeps)
		wantErr error
	}{
		{
			name:    "not entitled",
			allowed: false,
			setup:   func(d searchDeps) {},
			wantErr: service.ErrSemanticSearchForbidden,
		},
		{
			name:    "embedder down",
			allowed: true,
			setup: func(d searchDeps) {
				d.embedder.EXPECT().Embed(gomock.Any(), "milk").Return(nil, errors.New("429 too many requests"))
			},
			wantErr: service.ErrEmbeddingUnavailable,
		},
		{
			name:    "vector index down",
			allowed: true,
			setup: func(d searchDeps) {
				d.embedder.EXPECT().Embed(gomock.Any(), "milk").Return([]float32{1}, nil)
				d.vectors.EXPECT().Search(gomock.Any(), gomock.Any(), "u1", 20).Return(nil, errors.New("unavailable"))
			},
			wantErr: service.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newSearchService(t, time.Second)
			tt.setup(deps)

			_, err := svc.Search(testContext(), service.SearchRequest{
				Query: "milk", Mode: service.SearchSemantic, OwnerID: "u1", SemanticSearchAllowed: tt.allowed,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Search() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSearchService_Timeout(t *testing.T) {
	tests := []struct {
		name  string
		mode  service.SearchMode
		setup func(d searchDeps)
	}{
		{
			name: "lexical",
			mode: service.SearchLexical,
			setup: func(d searchDeps) {
				d.store.EXPECT().
					Search(gomock.Any(), "u1", "milk", 20).
					DoAndReturn(func(ctx context.Context, _, _ string, _ int) ([]storage.LexicalHit, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					})
			},
		},
		{
			name: "semantic",
			mode: service.SearchSemantic,
			setup: func(d searchDeps) {
				d.embedder.EXPECT().
					Embed(gomock.Any(), "milk").
					DoAndReturn(func(ctx context.Context, _ string) ([]float32, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newSearchService(t, 20*time.Millisecond)
			tt.setup(deps)

			hits, err := svc.Search(testContext(), service.SearchRequest{
				Query: "milk", Mode: tt.mode, OwnerID: "u1", SemanticSearchAllowed: true,
			})
			if !errors.Is(err, service.ErrSearchTimeout) {
				t.Errorf("Search() error = %v, want ErrSearchTimeout", err)
			}
			if hits != nil {
				t.Errorf("Search() = %v, want no partial results", hits)
			}
		})
	}
}
