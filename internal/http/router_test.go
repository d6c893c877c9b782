package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"fixnote/internal/service"
	"fixnote/internal/service/mocks"
	"fixnote/internal/storage"
	vectormocks "fixnote/internal/vectorstore/mocks"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type routerFixture struct {
	notes   *mocks.MockNoteService
	search  *mocks.MockSearchService
	vectors *vectormocks.MockVectorStore
	router  http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	ctrl := gomock.NewController(t)
	f := &routerFixture{
		notes:   mocks.NewMockNoteService(ctrl),
		search:  mocks.NewMockSearchService(ctrl),
		vectors: vectormocks.NewMockVectorStore(ctrl),
	}
	f.router = NewRouter(&Deps{
		DB:             pingFunc(func(context.Context) error { return nil }),
		VectorStore:    f.vectors,
		NoteService:    f.notes,
		SearchService:  f.search,
		Auth:           NewAuthenticator(AuthConfig{Mode: AuthHeader}),
		SemanticAccess: NewSemanticAccess(nil),
		PublicURL:      "https://notes.example.com",
	})
	return f
}

func TestRouter_AuthRequired(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/notes"},
		{http.MethodPost, "/api/notes"},
		{http.MethodGet, "/api/notes/n1"},
		{http.MethodDelete, "/api/notes/n1"},
		{http.MethodPost, "/api/notes/search"},
		{http.MethodPost, "/api/notes/search/fts"},
		{http.MethodGet, "/api/stats"},
		{http.MethodGet, "/api/index/status"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			f.router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %v, want %v", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_ListNotesUsesAuthenticatedOwner(t *testing.T) {
	f := newRouterFixture(t)
	f.notes.EXPECT().List(gomock.Any(), "42", 0, 0).
		Return(&service.ListResult{Limit: 50}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set(ownerHeader, "42")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_LexicalSearchRoute(t *testing.T) {
	f := newRouterFixture(t)
	f.search.EXPECT().Search(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req service.SearchRequest) ([]service.SearchHit, error) {
			if req.Mode != service.SearchLexical || req.OwnerID != "42" {
				t.Errorf("Search() got mode %q owner %q", req.Mode, req.OwnerID)
			}
			return nil, nil
		})

	req := httptest.NewRequest(http.MethodPost, "/api/notes/search/fts", strings.NewReader(`{"query":"milk"}`))
	req.Header.Set(ownerHeader, "42")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_PublicRoutes(t *testing.T) {
	f := newRouterFixture(t)
	note := &storage.Note{
		ID:         "n1",
		OwnerID:    "42",
		Content:    "shared content",
		Source:     storage.SourceText,
		ShareToken: "tok",
		CreatedAt:  time.Unix(1700000000, 0),
		UpdatedAt:  time.Unix(1700000000, 0),
	}
	f.notes.EXPECT().GetShared(gomock.Any(), "tok").Return(note, nil).Times(2)
	f.vectors.EXPECT().Ping(gomock.Any()).Return(errors.New("down"))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "shared json", method: http.MethodGet, path: "/api/shared/tok", wantStatus: http.StatusOK},
		{name: "shared page", method: http.MethodGet, path: "/note/tok", wantStatus: http.StatusOK},
		{name: "health degraded", method: http.MethodGet, path: "/api/health", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, path: "/api/notes", wantStatus: http.StatusNoContent},
		{name: "unknown", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			f.router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}
