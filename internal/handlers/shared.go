package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"fixnote/internal/contextutil"
	"fixnote/internal/service"
	"fixnote/internal/storage"
)

// SharedNoteHandler serves notes to anyone holding their share token.
type SharedNoteHandler struct {
	notes    service.NoteService
	markdown goldmark.Markdown
	template *template.Template
}

// sharedPageData holds template data for a shared note page.
type sharedPageData struct {
	Title    string
	Created  string
	Source   string
	Duration string
	Summary  string
	Content  template.HTML
}

// NewSharedNoteHandler creates a new SharedNoteHandler.
func NewSharedNoteHandler(notes service.NoteService) *SharedNoteHandler {
	tmpl := template.Must(template.New("shared").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta name="robots" content="noindex">
  <title>{{.Title}}</title>
  <style>
    :root {
      color-scheme: light dark;
    }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 1.5rem;
      max-width: 720px;
      line-height: 1.6;
    }
    header {
      margin-bottom: 1.5rem;
      border-bottom: 1px solid rgba(148, 163, 184, 0.3);
      padding-bottom: 1rem;
    }
    h1 {
      margin: 0;
      font-size: 1.4rem;
    }
    .meta {
      color: #64748b;
      font-size: 0.9rem;
      margin-top: 0.4rem;
    }
    .summary {
      border-left: 4px solid #38bdf8;
      padding: 0.5rem 1rem;
      margin-bottom: 1.5rem;
      background: rgba(56, 189, 248, 0.08);
      border-radius: 6px;
    }
    pre {
      padding: 1rem;
      overflow-x: auto;
      border-radius: 8px;
      background: rgba(100, 116, 139, 0.12);
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">{{.Created}} &middot; {{.Source}}{{if .Duration}} &middot; {{.Duration}}{{end}}</p>
  </header>
  {{if .Summary}}<section class="summary">{{.Summary}}</section>{{end}}
  <article>{{.Content}}</article>
</body>
</html>`))

	return &SharedNoteHandler{
		notes: notes,
		// Raw HTML in note text is escaped, never rendered.
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
			),
		),
		template: tmpl,
	}
}

// JSON handles GET /api/shared/{token}.
func (h *SharedNoteHandler) JSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	note, err := h.notes.GetShared(ctx, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get shared note")
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note, "", false))
}

// Page handles GET /note/{token}, rendering the note as an HTML page.
func (h *SharedNoteHandler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	note, err := h.notes.GetShared(ctx, chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, "note not found", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to load shared note", "error", err)
		http.Error(w, "failed to load note", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(note.Content), &buf); err != nil {
		logger.ErrorContext(ctx, "failed to render markdown", "note_id", note.ID, "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}

	data := sharedPageData{
		Title:   pageTitle(note),
		Created: note.CreatedAt.UTC().Format("2 Jan 2006 15:04 UTC"),
		Source:  sourceLabel(note.Source),
		Summary: note.Summary,
		Content: template.HTML(buf.String()),
	}
	if note.DurationSeconds != nil {
		data.Duration = (time.Duration(*note.DurationSeconds) * time.Second).String()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, data); err != nil {
		logger.ErrorContext(ctx, "failed to execute shared note template", "note_id", note.ID, "error", err)
	}
}

// pageTitle uses the first line of the note, shortened to 60 characters.
func pageTitle(n *storage.Note) string {
	line, _, _ := strings.Cut(strings.TrimSpace(n.Content), "\n")
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if line == "" {
		return "Shared note"
	}
	if utf8.RuneCountInString(line) > 60 {
		return fmt.Sprintf("%s…", string([]rune(line)[:60]))
	}
	return line
}

func sourceLabel(s storage.Source) string {
	if s == storage.SourceVoice {
		return "Voice note"
	}
	return "Text note"
}
