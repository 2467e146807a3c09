package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/felo/msg-viewer/internal/db"
	"github.com/felo/msg-viewer/internal/export"
	"github.com/felo/msg-viewer/internal/parser"
)

// emailList is a page of indexed emails
type emailList struct {
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Emails []*db.Email `json:"emails"`
}

// ListEmails handles the paginated email list, newest first
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	if limit == 0 {
		limit = 50
	}
	offset := intQuery(r, "offset", 0)

	count, err := h.db.CountEmails()
	if err != nil {
		h.logger.Error("failed to count emails", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to get email count")
		return
	}

	emails, err := h.db.ListEmails(limit, offset)
	if err != nil {
		h.logger.Error("failed to list emails", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load emails")
		return
	}

	h.writeJSON(w, http.StatusOK, emailList{Total: count, Limit: limit, Offset: offset, Emails: emails})
}

// ViewEmail handles displaying a single email decoded from its .msg file
func (h *Handlers) ViewEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	content, err := h.db.GetEmailWithFullContent(id, h.parserOptions()...)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	if content == nil {
		h.writeError(w, http.StatusNotFound, "Email not found")
		return
	}

	content.BodyHTML = h.sanitizer.Sanitize(content.BodyHTML)
	for _, embedded := range content.Embedded {
		h.sanitizeEmbedded(embedded)
	}

	h.writeJSON(w, http.StatusOK, content)
}

// sanitizeEmbedded cleans the HTML bodies of an attached message and its own attachments
func (h *Handlers) sanitizeEmbedded(email *parser.Email) {
	if email.BodyHTML != nil {
		clean := h.sanitizer.Sanitize(*email.BodyHTML)
		email.BodyHTML = &clean
	}
	for _, att := range email.Attachments {
		if att.Embedded != nil {
			h.sanitizeEmbedded(att.Embedded)
		}
	}
}

// DeleteEmail removes an email from the index; the .msg file stays on disk
func (h *Handlers) DeleteEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	if err := h.db.DeleteEmail(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Email not found")
			return
		}
		h.logger.Error("failed to delete email", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to delete email")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportEmail streams an email as an .eml download
func (h *Handlers) ExportEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	email, err := h.db.GetEmailByID(id)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	if email == nil {
		h.writeError(w, http.StatusNotFound, "Email not found")
		return
	}

	path, err := h.db.ResolveEmailPath(email.FilePath)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	parsed, err := parser.ParseMSGFile(path, h.parserOptions()...)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}

	base := sanitizeFilename(email.FilePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.eml"`, name))
	if err := export.WriteEML(w, parsed); err != nil {
		h.logger.Error("failed to export email", "id", id, "error", err)
	}
}

func (h *Handlers) parserOptions() []parser.Option {
	return append([]parser.Option{parser.WithLogger(h.logger)}, h.cfg.ParserOptions()...)
}
