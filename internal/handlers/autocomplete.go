package handlers

import (
	"net/http"
)

// AutocompleteSenders handles autocomplete requests for sender email addresses
func (h *Handlers) AutocompleteSenders(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	if limit == 0 {
		limit = 100
	}

	senders, err := h.db.GetUniqueSenders(limit)
	if err != nil {
		h.logger.Error("failed to get unique senders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load senders")
		return
	}

	h.writeJSON(w, http.StatusOK, senders)
}

// AutocompleteRecipients handles autocomplete requests for recipient email addresses
func (h *Handlers) AutocompleteRecipients(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	if limit == 0 {
		limit = 100
	}

	recipients, err := h.db.GetUniqueRecipients(limit)
	if err != nil {
		h.logger.Error("failed to get unique recipients", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load recipients")
		return
	}

	h.writeJSON(w, http.StatusOK, recipients)
}
