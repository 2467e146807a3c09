package handlers

import (
	"net/http"
)

// ViewConversationThread returns the reply tree containing an email, from its root
func (h *Handlers) ViewConversationThread(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	tree, err := h.db.GetConversationTree(id)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tree)
}

// ViewFullConversation returns every email of the conversation as a flat list
func (h *Handlers) ViewFullConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	emails, err := h.db.GetConversationEmails(id)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, emails)
}

// ListThreaded lists conversation roots with their reply counts
func (h *Handlers) ListThreaded(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	if limit == 0 {
		limit = 50
	}
	offset := intQuery(r, "offset", 0)

	threads, err := h.db.GetRootEmailsWithReplyCounts(limit, offset)
	if err != nil {
		h.logger.Error("failed to list threads", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load conversations")
		return
	}

	h.writeJSON(w, http.StatusOK, threads)
}
