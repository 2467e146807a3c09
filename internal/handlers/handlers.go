package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/felo/msg-viewer/internal/config"
	"github.com/felo/msg-viewer/internal/db"
	"github.com/felo/msg-viewer/internal/parser"
	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db       *db.DB
	cfg      *config.Config
	logger   *slog.Logger
	scan     *ScanProgress
	shutdown chan<- os.Signal

	// sanitizer strips scripts and event handlers from HTML bodies
	sanitizer *bluemonday.Policy
}

// New creates a new Handlers instance. A nil logger discards all output.
func New(database *db.DB, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		db:     database,
		cfg:    cfg,
		logger: logger,
		scan:   newScanProgress(),

		sanitizer: bluemonday.UGCPolicy(),
	}
}

// SetShutdownChannel lets POST /shutdown stop the server
func (h *Handlers) SetShutdownChannel(ch chan<- os.Signal) {
	h.shutdown = ch
}

// Routes returns the JSON API router
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/emails", h.ListEmails)
	r.Get("/emails/{id}", h.ViewEmail)
	r.Delete("/emails/{id}", h.DeleteEmail)
	r.Get("/emails/{id}/attachments", h.ListAttachments)
	r.Get("/emails/{id}/conversation", h.ViewConversationThread)
	r.Get("/emails/{id}/conversation/flat", h.ViewFullConversation)
	r.Get("/emails/{id}/export", h.ExportEmail)
	r.Get("/attachments/{id}", h.ViewAttachment)
	r.Get("/threads", h.ListThreaded)
	r.Get("/search", h.Search)
	r.Get("/senders", h.AutocompleteSenders)
	r.Get("/recipients", h.AutocompleteRecipients)
	r.Get("/stats", h.Stats)

	r.Post("/scan", h.Scan)
	r.Get("/scan", h.ScanStatus)
	r.Get("/scan/progress", h.ScanProgressSSE)
	r.Post("/shutdown", h.Shutdown)

	return r
}

// writeJSON encodes v as the response body
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError responds with a JSON error object
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeLoadError maps errors from loading a stored .msg file onto status codes
func (h *Handlers) writeLoadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Email not found")
	case errors.Is(err, db.ErrPathTraversal):
		h.logger.Warn("rejected stored path", "error", err)
		h.writeError(w, http.StatusForbidden, "Invalid file path")
	case errors.Is(err, db.ErrCircularReference):
		h.writeError(w, http.StatusConflict, "Circular conversation reference")
	case errors.Is(err, parser.ErrContainer):
		h.logger.Warn("failed to open .msg file", "error", err)
		h.writeError(w, http.StatusUnprocessableEntity, "Failed to read .msg file")
	default:
		h.logger.Error("failed to load email", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load email")
	}
}

// idParam parses the {id} URL parameter
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// intQuery reads a positive integer query parameter, falling back to def
func intQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

// Shutdown asks the server to stop
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	if h.shutdown == nil {
		h.writeError(w, http.StatusNotImplemented, "Shutdown not available")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	go func() {
		h.shutdown <- os.Interrupt
	}()
}
