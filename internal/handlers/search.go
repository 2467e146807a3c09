package handlers

import (
	"net/http"
	"strconv"

	"github.com/felo/msg-viewer/internal/db"
)

// Search handles filtered full-text search requests
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.SearchFilter{
		Query:        q.Get("q"),
		Sender:       q.Get("sender"),
		Recipient:    q.Get("recipient"),
		MessageClass: q.Get("class"),
		DateFrom:     q.Get("from"),
		DateTo:       q.Get("to"),
		Limit:        intQuery(r, "limit", 50),
		Offset:       intQuery(r, "offset", 0),
	}
	if v := q.Get("attachments"); v != "" {
		hasAttachments, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid attachments filter")
			return
		}
		filter.HasAttachments = hasAttachments
	}

	results, err := h.db.Search(filter)
	if err != nil {
		h.logger.Error("search failed", "query", filter.Query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	h.writeJSON(w, http.StatusOK, results)
}
