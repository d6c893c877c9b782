package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fixnote/internal/contextutil"
	"fixnote/internal/service"
	"fixnote/internal/storage"
)

// NotesHandler handles the owner-scoped note endpoints.
type NotesHandler struct {
	notes     service.NoteService
	publicURL string
}

// NewNotesHandler creates a new NotesHandler. publicURL prefixes share links.
func NewNotesHandler(notes service.NoteService, publicURL string) *NotesHandler {
	return &NotesHandler{
		notes:     notes,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// NoteResponse is the JSON shape of a note.
type NoteResponse struct {
	ID              string  `json:"id"`
	Content         string  `json:"content"`
	Summary         *string `json:"summary"`
	Source          string  `json:"source"`
	DurationSeconds *int    `json:"duration_seconds"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	ShareToken      string  `json:"share_token,omitempty"`
	ShareURL        string  `json:"share_url,omitempty"`
}

// CreateNoteRequest is the JSON body of POST /api/notes.
type CreateNoteRequest struct {
	Content         string `json:"content"`
	Summary         string `json:"summary"`
	Source          string `json:"source"`
	DurationSeconds *int   `json:"duration_seconds"`
	Summarize       bool   `json:"summarize"`
}

// UpdateNoteRequest is the JSON body of PUT /api/notes/{id}.
type UpdateNoteRequest struct {
	Content *string `json:"content"`
	Summary *string `json:"summary"`
}

// ListNotesResponse is one page of notes.
type ListNotesResponse struct {
	Notes  []NoteResponse `json:"notes"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// DeleteNoteResponse reports a delete. Warning is set when the note is gone
// but its semantic index entry is still being removed.
type DeleteNoteResponse struct {
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}

// StatsResponse aggregates an owner's notes.
type StatsResponse struct {
	Total     int `json:"total"`
	Voice     int `json:"voice"`
	Text      int `json:"text"`
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`
}

// IndexStatusResponse reports semantic index progress for an owner.
type IndexStatusResponse struct {
	Pending int `json:"pending"`
	Ready   int `json:"ready"`
	Failed  int `json:"failed"`
}

func toNoteResponse(n *storage.Note, publicURL string, includeShare bool) NoteResponse {
	resp := NoteResponse{
		ID:              n.ID,
		Content:         n.Content,
		Source:          string(n.Source),
		DurationSeconds: n.DurationSeconds,
		CreatedAt:       n.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.Summary != "" {
		summary := n.Summary
		resp.Summary = &summary
	}
	if includeShare && n.ShareToken != "" {
		resp.ShareToken = n.ShareToken
		resp.ShareURL = publicURL + "/note/" + n.ShareToken
	}
	return resp
}

// List handles GET /api/notes.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := contextutil.OwnerFromContext(ctx)

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	page, err := h.notes.List(ctx, owner, limit, offset)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list notes")
		return
	}

	resp := ListNotesResponse{
		Notes:  make([]NoteResponse, 0, len(page.Notes)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, n := range page.Notes {
		resp.Notes = append(resp.Notes, toNoteResponse(n, h.publicURL, true))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/notes.
func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req CreateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	source := req.Source
	if source == "" {
		source = string(storage.SourceText)
	}

	note, err := h.notes.Create(ctx, service.CreateNoteRequest{
		OwnerID:         contextutil.OwnerFromContext(ctx),
		Content:         req.Content,
		Summary:         req.Summary,
		Source:          storage.Source(source),
		DurationSeconds: req.DurationSeconds,
		Summarize:       req.Summarize,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to create note")
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(note, h.publicURL, true))
}

// Get handles GET /api/notes/{id}. Non-owners must pass ?token=<share token>.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := contextutil.OwnerFromContext(ctx)

	note, err := h.notes.Get(ctx, chi.URLParam(r, "id"), owner, r.URL.Query().Get("token"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get note")
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note, h.publicURL, note.OwnerID == owner))
}

// Update handles PUT /api/notes/{id}.
func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	note, err := h.notes.Update(ctx, chi.URLParam(r, "id"), contextutil.OwnerFromContext(ctx),
		storage.NotePatch{Content: req.Content, Summary: req.Summary})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to update note")
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note, h.publicURL, true))
}

// Delete handles DELETE /api/notes/{id}.
func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.notes.Delete(ctx, chi.URLParam(r, "id"), contextutil.OwnerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to delete note")
		return
	}

	resp := DeleteNoteResponse{Deleted: true}
	if res.Warning != nil {
		resp.Warning = "Note deleted; its semantic index entry will be removed shortly"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Share handles POST /api/notes/{id}/share.
func (h *NotesHandler) Share(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	note, err := h.notes.Share(ctx, chi.URLParam(r, "id"), contextutil.OwnerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to share note")
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note, h.publicURL, true))
}

// RevokeShare handles DELETE /api/notes/{id}/share.
func (h *NotesHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.notes.RevokeShare(ctx, chi.URLParam(r, "id"), contextutil.OwnerFromContext(ctx)); err != nil {
		handleServiceError(ctx, w, err, "Failed to revoke share")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/stats.
func (h *NotesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.notes.Stats(ctx, contextutil.OwnerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Total:     stats.Total,
		Voice:     stats.Voice,
		Text:      stats.Text,
		ThisWeek:  stats.ThisWeek,
		ThisMonth: stats.ThisMonth,
	})
}

// IndexStatus handles GET /api/index/status.
func (h *NotesHandler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.notes.SyncStatus(ctx, contextutil.OwnerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get index status")
		return
	}
	writeJSON(w, http.StatusOK, IndexStatusResponse{
		Pending: counts.Pending,
		Ready:   counts.Ready,
		Failed:  counts.Failed,
	})
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
