package handlers

import (
	"net/http"
)

// Stats reports index statistics and the configured emails folder
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"emails_path": h.cfg.EmailsPath,
		"stats":       stats,
	})
}
