package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felo/msg-viewer/internal/indexer"
	"github.com/google/uuid"
)

// ScanProgress holds the current scan progress state
type ScanProgress struct {
	mu              sync.RWMutex
	jobID           string
	isScanning      bool
	current         int
	total           int
	currentFile     string
	result          *indexer.IndexResult
	completed       bool
	err             error
	startedAt       time.Time
	lastUpdate      time.Time
	progressClients []chan ProgressEvent
}

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	Type string      `json:"type"` // "progress", "complete", "error"
	Data interface{} `json:"data"`
}

// ScanStatus is a snapshot of the latest scan
type ScanStatus struct {
	JobID      string               `json:"job_id,omitempty"`
	Scanning   bool                 `json:"scanning"`
	Completed  bool                 `json:"completed"`
	Current    int                  `json:"current"`
	Total      int                  `json:"total"`
	File       string               `json:"file,omitempty"`
	Result     *indexer.IndexResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	LastUpdate time.Time            `json:"last_update"`
}

func newScanProgress() *ScanProgress {
	return &ScanProgress{progressClients: make([]chan ProgressEvent, 0)}
}

// start resets the state for a new job; it reports false when a scan is already running
func (sp *ScanProgress) start() (string, bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.isScanning {
		return sp.jobID, false
	}

	sp.jobID = uuid.NewString()
	sp.isScanning = true
	sp.current = 0
	sp.total = 0
	sp.currentFile = ""
	sp.result = nil
	sp.completed = false
	sp.err = nil
	sp.startedAt = time.Now()
	sp.lastUpdate = sp.startedAt
	return sp.jobID, true
}

func (sp *ScanProgress) update(current, total int, file string) {
	sp.mu.Lock()
	sp.current = current
	sp.total = total
	sp.currentFile = file
	sp.lastUpdate = time.Now()
	sp.mu.Unlock()

	sp.broadcast(ProgressEvent{Type: "progress", Data: sp.Status()})
}

func (sp *ScanProgress) finish(result *indexer.IndexResult, err error) {
	sp.mu.Lock()
	sp.isScanning = false
	sp.completed = true
	sp.result = result
	sp.err = err
	sp.lastUpdate = time.Now()
	sp.mu.Unlock()

	sp.broadcast(terminalEvent(result, err))
	sp.closeClients()
}

// terminalEvent is the last event of a finished scan
func terminalEvent(result *indexer.IndexResult, err error) ProgressEvent {
	if err != nil {
		return ProgressEvent{Type: "error", Data: map[string]string{"error": err.Error()}}
	}
	return ProgressEvent{Type: "complete", Data: result}
}

// closeClients ends every subscription, so a client whose buffer was full
// still learns that the scan is over
func (sp *ScanProgress) closeClients() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for _, client := range sp.progressClients {
		close(client)
	}
	sp.progressClients = nil
}

// Status returns a snapshot of the scan state
func (sp *ScanProgress) Status() ScanStatus {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	status := ScanStatus{
		JobID:      sp.jobID,
		Scanning:   sp.isScanning,
		Completed:  sp.completed,
		Current:    sp.current,
		Total:      sp.total,
		File:       sp.currentFile,
		Result:     sp.result,
		StartedAt:  sp.startedAt,
		LastUpdate: sp.lastUpdate,
	}
	if sp.err != nil {
		status.Error = sp.err.Error()
	}
	return status
}

// broadcast sends an event to all connected clients; clients that fall behind miss it
func (sp *ScanProgress) broadcast(event ProgressEvent) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	for _, client := range sp.progressClients {
		select {
		case client <- event:
		default:
			// Client channel full, skip
		}
	}
}

func (sp *ScanProgress) subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 10)
	sp.mu.Lock()
	sp.progressClients = append(sp.progressClients, ch)
	sp.mu.Unlock()
	return ch
}

func (sp *ScanProgress) unsubscribe(ch chan ProgressEvent) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, c := range sp.progressClients {
		if c == ch {
			sp.progressClients = append(sp.progressClients[:i], sp.progressClients[i+1:]...)
			break
		}
	}
}

// Scan starts indexing the emails folder in the background
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.scan.start()
	if !ok {
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "Scan already in progress",
			"job_id": jobID,
		})
		return
	}

	logger := h.logger.With("job_id", jobID)
	go func() {
		idx := indexer.NewIndexer(h.db, h.cfg.EmailsPath, logger).
			WithConcurrency(h.cfg.Workers).
			WithParserOptions(h.cfg.ParserOptions()...)

		result, err := idx.IndexWithProgress(h.scan.update)
		if err != nil {
			logger.Error("scan failed", "error", err)
		} else {
			logger.Info("scan complete",
				"new", result.NewIndexed, "skipped", result.Skipped, "failed", result.Failed)
		}
		h.scan.finish(result, err)
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// ScanStatus reports the state of the latest scan
func (h *Handlers) ScanStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scan.Status())
}

// ScanProgressSSE handles Server-Sent Events for scan progress
func (h *Handlers) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	clientChan := h.scan.subscribe()
	defer h.scan.unsubscribe(clientChan)

	// Send initial state so late subscribers see where the scan is
	status := h.scan.Status()
	sendSSE(w, flusher, h.logger, "progress", status)
	if !status.Scanning {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-clientChan:
			if !ok {
				// The terminal event was dropped on a full buffer
				final := h.scan.Status()
				var err error
				if final.Error != "" {
					err = errors.New(final.Error)
				}
				event = terminalEvent(final.Result, err)
				sendSSE(w, flusher, h.logger, event.Type, event.Data)
				return
			}
			sendSSE(w, flusher, h.logger, event.Type, event.Data)

			// Close connection after complete or error
			if event.Type == "complete" || event.Type == "error" {
				return
			}
		}
	}
}

// sendSSE sends an SSE message to the client
func sendSSE(w http.ResponseWriter, flusher http.Flusher, logger *slog.Logger, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
