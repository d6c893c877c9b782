package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"fixnote/internal/contextutil"
	"fixnote/internal/service"
	"fixnote/internal/service/mocks"
	"fixnote/internal/storage"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ownerMiddleware authenticates every request as owner.
func ownerMiddleware(owner string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(contextutil.WithOwner(r.Context(), owner)))
		})
	}
}

func notesRouter(h *NotesHandler, owner string) http.Handler {
	r := chi.NewRouter()
	r.Use(ownerMiddleware(owner))
	r.Get("/api/notes", h.List)
	r.Post("/api/notes", h.Create)
	r.Get("/api/notes/{id}", h.Get)
	r.Put("/api/notes/{id}", h.Update)
	r.Delete("/api/notes/{id}", h.Delete)
	r.Post("/api/notes/{id}/share", h.Share)
	r.Delete("/api/notes/{id}/share", h.RevokeShare)
	r.Get("/api/stats", h.Stats)
	r.Get("/api/index/status", h.IndexStatus)
	return r
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	if s, ok := v.(string); ok {
		return strings.NewReader(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return bytes.NewReader(b)
}

func sampleNote() *storage.Note {
	return &storage.Note{
		ID:        "n1",
		OwnerID:   "u1",
		Content:   "Buy milk and eggs tomorrow",
		Source:    storage.SourceText,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNotesHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		mockSetup  func(m *mocks.MockNoteService)
		wantStatus int
	}{
		{
			name: "created",
			body: CreateNoteRequest{Content: "Buy milk and eggs tomorrow"},
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().
					Create(gomock.Any(), service.CreateNoteRequest{
						OwnerID: "u1",
						Content: "Buy milk and eggs tomorrow",
						Source:  storage.SourceText,
					}).
					Return(sampleNote(), nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid JSON body",
			body:       "invalid json",
			mockSetup:  func(m *mocks.MockNoteService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"content":"x","is_public":true}`,
			mockSetup:  func(m *mocks.MockNoteService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "validation error",
			body: CreateNoteRequest{Content: ""},
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Create(gomock.Any(), gomock.Any()).
					Return(nil, &service.ValidationError{Field: "content", Message: "cannot be blank"})
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "lexical index failure",
			body: CreateNoteRequest{Content: "hello"},
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, service.ErrIndexInconsistent)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "storage unavailable",
			body: CreateNoteRequest{Content: "hello"},
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, service.ErrStorageUnavailable)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockNoteService(ctrl)
			tt.mockSetup(m)

			req := httptest.NewRequest(http.MethodPost, "/api/notes", jsonBody(t, tt.body))
			w := httptest.NewRecorder()
			notesRouter(NewNotesHandler(m, "https://notes.example"), "u1").ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestNotesHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		mockSetup  func(m *mocks.MockNoteService)
		wantStatus int
	}{
		{
			name: "owner",
			url:  "/api/notes/n1",
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Get(gomock.Any(), "n1", "u1", "").Return(sampleNote(), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "share token forwarded",
			url:  "/api/notes/n1?token=abc",
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Get(gomock.Any(), "n1", "u1", "abc").Return(sampleNote(), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "forbidden",
			url:  "/api/notes/n1",
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Get(gomock.Any(), "n1", "u1", "").Return(nil, service.ErrForbidden)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "not found",
			url:  "/api/notes/n1",
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().Get(gomock.Any(), "n1", "u1", "").Return(nil, service.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockNoteService(ctrl)
			tt.mockSetup(m)

			w := httptest.NewRecorder()
			notesRouter(NewNotesHandler(m, ""), "u1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp NoteResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.ID != "n1" || resp.Source != "text" || resp.Summary != nil {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestNotesHandler_Update(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockNoteService(ctrl)

	updated := sampleNote()
	updated.Content = "Buy oat milk"
	m.EXPECT().
		Update(gomock.Any(), "n1", "u1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, p storage.NotePatch) (*storage.Note, error) {
			if p.Content == nil || *p.Content != "Buy oat milk" || p.Summary != nil {
				t.Errorf("patch = %+v", p)
			}
			return updated, nil
		})

	req := httptest.NewRequest(http.MethodPut, "/api/notes/n1", strings.NewReader(`{"content":"Buy oat milk"}`))
	w := httptest.NewRecorder()
	notesRouter(NewNotesHandler(m, ""), "u1").ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestNotesHandler_Delete(t *testing.T) {
	tests := []struct {
		name        string
		result      *service.DeleteResult
		err         error
		wantStatus  int
		wantWarning bool
	}{
		{name: "deleted", result: &service.DeleteResult{}, wantStatus: http.StatusOK},
		{
			name:        "vector removal deferred",
			result:      &service.DeleteResult{Warning: service.ErrPartialDelete},
			wantStatus:  http.StatusOK,
			wantWarning: true,
		},
		{name: "second delete", err: service.ErrNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockNoteService(ctrl)
			m.EXPECT().Delete(gomock.Any(), "n1", "u1").Return(tt.result, tt.err)

			w := httptest.NewRecorder()
			notesRouter(NewNotesHandler(m, ""), "u1").ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/notes/n1", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp DeleteNoteResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !resp.Deleted {
				t.Error("deleted = false")
			}
			if (resp.Warning != "") != tt.wantWarning {
				t.Errorf("warning = %q, want present=%v", resp.Warning, tt.wantWarning)
			}
		})
	}
}

func TestNotesHandler_List(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		mockSetup  func(m *mocks.MockNoteService)
		wantStatus int
	}{
		{
			name: "paged",
			url:  "/api/notes?limit=10&offset=20",
			mockSetup: func(m *mocks.MockNoteService) {
				m.EXPECT().List(gomock.Any(), "u1", 10, 20).
					Return(&service.ListResult{Notes: []*storage.Note{sampleNote()}, Total: 21, Limit: 10, Offset: 20}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad limit",
			url:        "/api/notes?limit=ten",
			mockSetup:  func(m *mocks.MockNoteService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockNoteService(ctrl)
			tt.mockSetup(m)

			w := httptest.NewRecorder()
			notesRouter(NewNotesHandler(m, ""), "u1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp ListNotesResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Total != 21 || len(resp.Notes) != 1 {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestNotesHandler_Share(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockNoteService(ctrl)

	shared := sampleNote()
	shared.ShareToken = "tok"
	m.EXPECT().Share(gomock.Any(), "n1", "u1").Return(shared, nil)
	m.EXPECT().RevokeShare(gomock.Any(), "n1", "u1").Return(nil)

	router := notesRouter(NewNotesHandler(m, "https://notes.example/"), "u1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/notes/n1/share", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("share status = %d, want 200", w.Code)
	}
	var resp NoteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ShareURL != "https://notes.example/note/tok" {
		t.Errorf("share_url = %q", resp.ShareURL)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/notes/n1/share", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("revoke status = %d, want 204", w.Code)
	}
}

func TestNotesHandler_StatsAndIndexStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockNoteService(ctrl)
	m.EXPECT().Stats(gomock.Any(), "u1").Return(&storage.NoteStats{Total: 4, Voice: 1, Text: 3}, nil)
	m.EXPECT().SyncStatus(gomock.Any(), "u1").Return(nil, errors.New("boom"))

	router := notesRouter(NewNotesHandler(m, ""), "u1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", w.Code)
	}
	var stats StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 4 || stats.Text != 3 {
		t.Errorf("stats = %+v", stats)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/index/status", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("index status = %d, want 500", w.Code)
	}
}
