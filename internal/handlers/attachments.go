package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
)

// sanitizeFilename removes dangerous characters from download filenames
func sanitizeFilename(filename string) string {
	// Remove path separators
	filename = filepath.Base(filepath.FromSlash(filename))

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1 // Remove character
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	// Fallback if empty
	if cleaned == "" || cleaned == "." || cleaned == string(filepath.Separator) {
		cleaned = "download.bin"
	}

	return cleaned
}

// ListAttachments returns the attachment metadata of an email
func (h *Handlers) ListAttachments(w http.ResponseWriter, r *http.Request) {
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

	attachments, err := h.db.GetAttachmentsByEmailID(id)
	if err != nil {
		h.logger.Error("failed to get attachments", "email_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load attachments")
		return
	}

	h.writeJSON(w, http.StatusOK, attachments)
}

// ViewAttachment returns one attachment's metadata. Attachment data stays in the .msg file.
func (h *Handlers) ViewAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid attachment ID")
		return
	}

	att, err := h.db.GetAttachmentByID(id)
	if err != nil {
		h.logger.Error("failed to get attachment", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load attachment")
		return
	}
	if att == nil {
		h.writeError(w, http.StatusNotFound, "Attachment not found")
		return
	}

	att.Filename = sanitizeFilename(att.Filename)
	h.writeJSON(w, http.StatusOK, att)
}
