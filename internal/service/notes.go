package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index_notifier.go -package=mocks fixnote/internal/service IndexNotifier
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_service.go -package=mocks fixnote/internal/service NoteService

import (
	"context"
	"crypto/subtle"
	"errors"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/lithammer/shortuuid/v4"

	"fixnote/internal/contextutil"
	"fixnote/internal/storage"
)

const (
	// DefaultListLimit is the page size used when the caller gives none.
	DefaultListLimit = 50
	// MaxListLimit caps the page size of List.
	MaxListLimit = 200

	maxContentRunes = 100000
)

// IndexNotifier propagates note changes to the vector index.
// This interface is defined from the service layer's perspective (consumer-first).
type IndexNotifier interface {
	// NoteChanged schedules asynchronous re-embedding. It never blocks.
	NoteChanged(noteID string) bool
	// NoteDeleted removes the vector entry of a deleted note.
	NoteDeleted(ctx context.Context, noteID string) error
}

// Summarizer produces a short summary of a note.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SyncCounter reports vector index progress for an owner.
type SyncCounter interface {
	Counts(ctx context.Context, ownerID string) (*storage.SyncCounts, error)
}

// CreateNoteRequest holds the input of NoteService.Create.
type CreateNoteRequest struct {
	OwnerID         string         `json:"owner_id"`
	Content         string         `json:"content"`
	Summary         string         `json:"summary"`
	Source          storage.Source `json:"source"`
	DurationSeconds *int           `json:"duration_seconds"`
	// Summarize asks for an AI summary when Summary is empty.
	Summarize bool `json:"-"`
}

// DeleteResult describes a completed delete. Warning is set (and wraps
// ErrPartialDelete) when the note is gone but its vector entry is not yet.
type DeleteResult struct {
	Warning error
}

// ListResult is one page of an owner's notes.
type ListResult struct {
	Notes  []*storage.Note
	Total  int
	Limit  int
	Offset int
}

// NoteService owns note CRUD, ownership checks and share tokens.
type NoteService interface {
	Create(ctx context.Context, req CreateNoteRequest) (*storage.Note, error)
	// Get returns a note to its owner, or to anyone presenting its share token.
	Get(ctx context.Context, id, requester, shareToken string) (*storage.Note, error)
	Update(ctx context.Context, id, ownerID string, patch storage.NotePatch) (*storage.Note, error)
	Delete(ctx context.Context, id, ownerID string) (*DeleteResult, error)
	List(ctx context.Context, ownerID string, limit, offset int) (*ListResult, error)
	// Share returns the note with a share token, creating one if needed.
	Share(ctx context.Context, id, ownerID string) (*storage.Note, error)
	RevokeShare(ctx context.Context, id, ownerID string) error
	GetShared(ctx context.Context, token string) (*storage.Note, error)
	Stats(ctx context.Context, ownerID string) (*storage.NoteStats, error)
	SyncStatus(ctx context.Context, ownerID string) (*storage.SyncCounts, error)
}

type noteService struct {
	notes      storage.NoteStore
	index      IndexNotifier
	sync       SyncCounter
	summarizer Summarizer
	now        func() time.Time
	newToken   func() string
}

// NewNoteService creates a new NoteService. summarizer may be nil.
func NewNoteService(notes storage.NoteStore, index IndexNotifier, sync SyncCounter, summarizer Summarizer) NoteService {
	return &noteService{
		notes:      notes,
		index:      index,
		sync:       sync,
		summarizer: summarizer,
		now:        time.Now,
		newToken:   shortuuid.New,
	}
}

func (s *noteService) Create(ctx context.Context, req CreateNoteRequest) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx)

	req.Content = strings.TrimSpace(req.Content)
	req.Summary = strings.TrimSpace(req.Summary)
	if err := validateCreate(req); err != nil {
		logger.WarnContext(ctx, "invalid create note request", "error", err)
		return nil, err
	}

	if req.Summarize && req.Summary == "" && s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, req.Content)
		if err != nil {
			logger.WarnContext(ctx, "summary generation failed, storing note without summary", "error", err)
		} else {
			req.Summary = summary
		}
	}

	note := &storage.Note{
		OwnerID:         req.OwnerID,
		Content:         req.Content,
		Summary:         req.Summary,
		Source:          req.Source,
		DurationSeconds: req.DurationSeconds,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		logger.ErrorContext(ctx, "failed to create note", "error", err)
		return nil, storeError(err, "failed to create note")
	}

	s.notifyChanged(ctx, note.ID)
	logger.InfoContext(ctx, "note created", "note_id", note.ID, "source", note.Source, "content_length", len(note.Content))
	return note, nil
}

func (s *noteService) Get(ctx context.Context, id, requester, shareToken string) (*storage.Note, error) {
	note, err := s.notes.Get(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to get note")
	}
	if requester != "" && note.OwnerID == requester {
		return note, nil
	}
	if shareToken != "" && note.ShareToken != "" &&
		subtle.ConstantTimeCompare([]byte(shareToken), []byte(note.ShareToken)) == 1 {
		return note, nil
	}
	return nil, ErrForbidden
}

func (s *noteService) Update(ctx context.Context, id, ownerID string, patch storage.NotePatch) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if patch.Content != nil {
		trimmed := strings.TrimSpace(*patch.Content)
		patch.Content = &trimmed
	}
	if patch.Summary != nil {
		trimmed := strings.TrimSpace(*patch.Summary)
		patch.Summary = &trimmed
	}
	if err := validatePatch(patch); err != nil {
		logger.WarnContext(ctx, "invalid update note request", "note_id", id, "error", err)
		return nil, err
	}

	note, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return note, nil
	}

	updated, err := s.notes.Update(ctx, id, patch)
	if err != nil {
		logger.ErrorContext(ctx, "failed to update note", "note_id", id, "error", err)
		return nil, storeError(err, "failed to update note")
	}

	s.notifyChanged(ctx, id)
	logger.InfoContext(ctx, "note updated", "note_id", id)
	return updated, nil
}

func (s *noteService) Delete(ctx context.Context, id, ownerID string) (*DeleteResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := s.owned(ctx, id, ownerID); err != nil {
		return nil, err
	}
	if err := s.notes.Delete(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to delete note", "note_id", id, "error", err)
		return nil, storeError(err, "failed to delete note")
	}

	result := &DeleteResult{}
	if err := s.index.NoteDeleted(ctx, id); err != nil {
		logger.WarnContext(ctx, "note deleted, vector entry removal deferred", "note_id", id, "error", err)
		result.Warning = WrapError(ErrPartialDelete, err.Error())
	}

	logger.InfoContext(ctx, "note deleted", "note_id", id)
	return result, nil
}

func (s *noteService) List(ctx context.Context, ownerID string, limit, offset int) (*ListResult, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "cannot be blank"}
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	notes, total, err := s.notes.List(ctx, ownerID, limit, offset)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list notes", "error", err)
		return nil, storeError(err, "failed to list notes")
	}
	if notes == nil {
		notes = []*storage.Note{}
	}
	return &ListResult{Notes: notes, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *noteService) Share(ctx context.Context, id, ownerID string) (*storage.Note, error) {
	note, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if note.ShareToken != "" {
		return note, nil
	}

	shared, err := s.notes.SetShareToken(ctx, id, s.newToken())
	if err != nil {
		return nil, storeError(err, "failed to share note")
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "note shared", "note_id", id)
	return shared, nil
}

func (s *noteService) RevokeShare(ctx context.Context, id, ownerID string) error {
	note, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if note.ShareToken == "" {
		return nil
	}
	if _, err := s.notes.SetShareToken(ctx, id, ""); err != nil {
		return storeError(err, "failed to revoke share")
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "note share revoked", "note_id", id)
	return nil
}

func (s *noteService) GetShared(ctx context.Context, token string) (*storage.Note, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	note, err := s.notes.GetByShareToken(ctx, token)
	if err != nil {
		return nil, storeError(err, "failed to get shared note")
	}
	return note, nil
}

func (s *noteService) Stats(ctx context.Context, ownerID string) (*storage.NoteStats, error) {
	stats, err := s.notes.Stats(ctx, ownerID, s.now())
	if err != nil {
		return nil, storeError(err, "failed to get stats")
	}
	return stats, nil
}

func (s *noteService) SyncStatus(ctx context.Context, ownerID string) (*storage.SyncCounts, error) {
	counts, err := s.sync.Counts(ctx, ownerID)
	if err != nil {
		return nil, storeError(err, "failed to get index status")
	}
	return counts, nil
}

// owned loads a note and checks it belongs to ownerID.
func (s *noteService) owned(ctx context.Context, id, ownerID string) (*storage.Note, error) {
	note, err := s.notes.Get(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to get note")
	}
	if ownerID == "" || note.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return note, nil
}

func (s *noteService) notifyChanged(ctx context.Context, id string) {
	if !s.index.NoteChanged(id) {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "sync queue full, embedding deferred to retry runner", "note_id", id)
	}
}

func validateCreate(req CreateNoteRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.OwnerID, validation.Required),
		validation.Field(&req.Content, validation.Required, validation.RuneLength(1, maxContentRunes)),
		validation.Field(&req.Source, validation.Required, validation.In(storage.SourceVoice, storage.SourceText)),
		validation.Field(&req.DurationSeconds, validation.By(durationRule(req.Source))),
	)
	return toValidationError(err)
}

func validatePatch(patch storage.NotePatch) error {
	if patch.Content == nil {
		return nil
	}
	err := validation.Validate(*patch.Content,
		validation.Required, validation.RuneLength(1, maxContentRunes))
	if err != nil {
		return &ValidationError{Field: "content", Message: err.Error()}
	}
	return nil
}

func durationRule(source storage.Source) validation.RuleFunc {
	return func(value any) error {
		var d *int
		switch v := value.(type) {
		case *int:
			d = v
		case int:
			d = &v
		}
		if d == nil {
			return nil
		}
		if source != storage.SourceVoice {
			return errors.New("only allowed for voice notes")
		}
		if *d <= 0 {
			return errors.New("must be greater than 0")
		}
		return nil
	}
}

// toValidationError turns ozzo's per-field errors into a ValidationError for
// the first failing field.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &ValidationError{Field: "request", Message: err.Error()}
	}
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return &ValidationError{Field: fields[0], Message: errs[fields[0]].Error()}
}
