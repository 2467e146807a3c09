package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/felo/msg-viewer/internal/config"
	"github.com/felo/msg-viewer/internal/db"
	"github.com/felo/msg-viewer/internal/indexer"
	"github.com/felo/msg-viewer/internal/mapi/mapitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rootSent  = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	replySent = time.Date(2024, 4, 3, 11, 0, 0, 0, time.UTC)
)

// writeFixtures lays out two threaded messages and one corrupt file
func writeFixtures(t *testing.T, dir string) {
	t.Helper()

	require.NoError(t, mapitest.Message{
		Class:       "IPM.Note",
		Subject:     "Budget",
		Body:        "Budget draft for review",
		FromName:    "Alice",
		FromAddress: "alice@example.com",
		To:          []string{"bob@example.com"},
		Sent:        rootSent,
		MessageID:   "<root@example.com>",
		Attachments: []string{"budget.xlsx"},
	}.WriteFile(filepath.Join(dir, "budget.msg")))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "replies"), 0755))
	require.NoError(t, mapitest.Message{
		Class:       "IPM.Note",
		Subject:     "RE: Budget",
		Body:        "Looks good",
		HTML:        "<p>Looks good</p>",
		FromName:    "Bob",
		FromAddress: "bob@example.com",
		To:          []string{"alice@example.com"},
		Cc:          []string{"carol@example.com"},
		Sent:        replySent,
		MessageID:   "<reply@example.com>",
		InReplyTo:   "<root@example.com>",
	}.WriteFile(filepath.Join(dir, "replies", "re-budget.msg")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.msg"), []byte("not a compound file"), 0644))
}

// setupTestHandlers indexes the fixtures into a fresh database and returns the API router
func setupTestHandlers(t *testing.T) (*Handlers, http.Handler, *db.DB) {
	t.Helper()

	dir := t.TempDir()
	writeFixtures(t, dir)

	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })
	database.SetEmailsPath(dir)

	result, err := indexer.NewIndexer(database, dir, nil).WithConcurrency(2).IndexAll()
	require.NoError(t, err)
	require.Equal(t, 2, result.NewIndexed)
	require.Equal(t, 1, result.Failed)

	cfg := config.Default()
	cfg.EmailsPath = dir
	cfg.Workers = 2

	h := New(database, cfg, nil)
	return h, h.Routes(), database
}

func do(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type emailJSON struct {
	ID              int64  `json:"id"`
	FilePath        string `json:"file_path"`
	MessageID       string `json:"message_id"`
	Subject         string `json:"subject"`
	Sender          string `json:"sender"`
	HasAttachments  bool   `json:"has_attachments"`
	AttachmentCount int    `json:"attachment_count"`
}

func emailIDBySubject(t *testing.T, database *db.DB, subject string) int64 {
	t.Helper()
	emails, err := database.ListEmails(10, 0)
	require.NoError(t, err)
	for _, e := range emails {
		if e.Subject == subject {
			return e.ID
		}
	}
	t.Fatalf("no indexed email with subject %q", subject)
	return 0
}

func TestListEmails(t *testing.T) {
	_, router, _ := setupTestHandlers(t)

	rec := do(t, router, http.MethodGet, "/emails")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var page struct {
		Total  int         `json:"total"`
		Emails []emailJSON `json:"emails"`
	}
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Emails, 2)
	assert.Equal(t, "RE: Budget", page.Emails[0].Subject, "Newest first")
	assert.Equal(t, "replies/re-budget.msg", page.Emails[0].FilePath)
	assert.Equal(t, "alice@example.com", page.Emails[1].Sender)
	assert.True(t, page.Emails[1].HasAttachments)

	rec = do(t, router, http.MethodGet, "/emails?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	require.Len(t, page.Emails, 1)
	assert.Equal(t, "Budget", page.Emails[0].Subject)
}

func TestViewEmail(t *testing.T) {
	_, router, database := setupTestHandlers(t)
	id := emailIDBySubject(t, database, "RE: Budget")

	rec := do(t, router, http.MethodGet, "/emails/"+itoa(id))
	require.Equal(t, http.StatusOK, rec.Code)

	var content struct {
		Subject  string   `json:"subject"`
		BodyText string   `json:"body_text"`
		BodyHTML string   `json:"body_html"`
		To       []string `json:"to"`
		CCList   []string `json:"cc_list"`
	}
	decode(t, rec, &content)
	assert.Equal(t, "RE: Budget", content.Subject)
	assert.Equal(t, "Looks good", content.BodyText)
	assert.Equal(t, "<p>Looks good</p>", content.BodyHTML)
	assert.Equal(t, []string{"alice@example.com"}, content.To)
	assert.Equal(t, []string{"carol@example.com"}, content.CCList)
}

func TestViewEmail_Errors(t *testing.T) {
	_, router, database := setupTestHandlers(t)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/emails/abc").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/emails/9999").Code)

	// A stored path escaping the emails folder is refused
	escaping := db.CreateTestEmail("escape", "eve@example.com", "")
	escaping.FilePath = "../outside.msg"
	escapeID, err := database.InsertEmail(escaping)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodGet, "/emails/"+itoa(escapeID)).Code)

	// A file that disappeared from disk cannot be decoded
	missing := db.CreateTestEmail("missing", "eve@example.com", "")
	missing.FilePath = "gone.msg"
	missingID, err := database.InsertEmail(missing)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodGet, "/emails/"+itoa(missingID)).Code)
}

func TestDeleteEmail(t *testing.T) {
	_, router, database := setupTestHandlers(t)
	id := emailIDBySubject(t, database, "Budget")

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/emails/"+itoa(id)).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/emails/"+itoa(id)).Code)

	count, err := database.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAttachments(t *testing.T) {
	_, router, database := setupTestHandlers(t)
	id := emailIDBySubject(t, database, "Budget")

	rec := do(t, router, http.MethodGet, "/emails/"+itoa(id)+"/attachments")
	require.Equal(t, http.StatusOK, rec.Code)

	var atts []struct {
		ID       int64  `json:"id"`
		Filename string `json:"filename"`
		Method   int    `json:"method"`
	}
	decode(t, rec, &atts)
	require.Len(t, atts, 1)
	assert.Equal(t, "budget.xlsx", atts[0].Filename)
	assert.Equal(t, 1, atts[0].Method)

	rec = do(t, router, http.MethodGet, "/attachments/"+itoa(atts[0].ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "budget.xlsx")

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/attachments/9999").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/emails/9999/attachments").Code)
}

func TestConversation(t *testing.T) {
	_, router, database := setupTestHandlers(t)
	replyID := emailIDBySubject(t, database, "RE: Budget")

	rec := do(t, router, http.MethodGet, "/emails/"+itoa(replyID)+"/conversation")
	require.Equal(t, http.StatusOK, rec.Code)

	var tree struct {
		Subject  string `json:"subject"`
		IsRoot   bool   `json:"is_root"`
		Children []struct {
			Subject string `json:"subject"`
			Depth   int    `json:"depth"`
		} `json:"children"`
	}
	decode(t, rec, &tree)
	assert.Equal(t, "Budget", tree.Subject)
	assert.True(t, tree.IsRoot)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "RE: Budget", tree.Children[0].Subject)
	assert.Equal(t, 1, tree.Children[0].Depth)

	rec = do(t, router, http.MethodGet, "/emails/"+itoa(replyID)+"/conversation/flat")
	require.Equal(t, http.StatusOK, rec.Code)
	var flat []emailJSON
	decode(t, rec, &flat)
	assert.Len(t, flat, 2)

	rec = do(t, router, http.MethodGet, "/threads")
	require.Equal(t, http.StatusOK, rec.Code)
	var threads []struct {
		Subject    string `json:"subject"`
		ReplyCount int    `json:"reply_count"`
	}
	decode(t, rec, &threads)
	require.Len(t, threads, 1)
	assert.Equal(t, "Budget", threads[0].Subject)
	assert.Equal(t, 1, threads[0].ReplyCount)
}

func TestSearch(t *testing.T) {
	_, router, _ := setupTestHandlers(t)

	rec := do(t, router, http.MethodGet, "/search?q=draft")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []struct {
		Subject string `json:"subject"`
		Snippet string `json:"snippet"`
	}
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "Budget", results[0].Subject)
	assert.Contains(t, results[0].Snippet, "<mark>")

	rec = do(t, router, http.MethodGet, "/search?recipient=carol")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "RE: Budget", results[0].Subject)

	rec = do(t, router, http.MethodGet, "/search?attachments=true")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "Budget", results[0].Subject)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/search?attachments=maybe").Code)
}

func TestAutocomplete(t *testing.T) {
	_, router, _ := setupTestHandlers(t)

	rec := do(t, router, http.MethodGet, "/senders")
	require.Equal(t, http.StatusOK, rec.Code)
	var senders []string
	decode(t, rec, &senders)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, senders)

	rec = do(t, router, http.MethodGet, "/recipients?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var recipients []string
	decode(t, rec, &recipients)
	assert.Contains(t, recipients, "carol@example.com")
}

func TestStats(t *testing.T) {
	h, router, _ := setupTestHandlers(t)

	rec := do(t, router, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		EmailsPath string `json:"emails_path"`
		Stats      struct {
			TotalEmails     int            `json:"total_emails"`
			WithAttachments int            `json:"with_attachments"`
			ByMessageClass  map[string]int `json:"by_message_class"`
		} `json:"stats"`
	}
	decode(t, rec, &body)
	assert.Equal(t, h.cfg.EmailsPath, body.EmailsPath)
	assert.Equal(t, 2, body.Stats.TotalEmails)
	assert.Equal(t, 1, body.Stats.WithAttachments)
	assert.Equal(t, 2, body.Stats.ByMessageClass["IPM.Note"])
}

func TestExportEmail(t *testing.T) {
	_, router, database := setupTestHandlers(t)
	id := emailIDBySubject(t, database, "Budget")

	rec := do(t, router, http.MethodGet, "/emails/"+itoa(id)+"/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "message/rfc822", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="budget.eml"`, rec.Header().Get("Content-Disposition"))

	mr, err := mail.CreateReader(rec.Body)
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Budget", subject)
	msgID, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", msgID)
}

func TestScan(t *testing.T) {
	h, router, database := setupTestHandlers(t)

	// A new file lands in the folder after the initial index
	require.NoError(t, mapitest.Message{
		Subject:     "Late arrival",
		FromAddress: "dave@example.com",
		Sent:        replySent.Add(time.Hour),
	}.WriteFile(filepath.Join(h.cfg.EmailsPath, "late.msg")))

	rec := do(t, router, http.MethodPost, "/scan")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]string
	decode(t, rec, &started)
	require.NotEmpty(t, started["job_id"])

	require.Eventually(t, func() bool {
		return h.scan.Status().Completed
	}, 10*time.Second, 20*time.Millisecond)

	rec = do(t, router, http.MethodGet, "/scan")
	require.Equal(t, http.StatusOK, rec.Code)
	var status ScanStatus
	decode(t, rec, &status)
	assert.Equal(t, started["job_id"], status.JobID)
	assert.False(t, status.Scanning)
	assert.Empty(t, status.Error)
	require.NotNil(t, status.Result)
	assert.Equal(t, 4, status.Result.TotalFound)
	assert.Equal(t, 1, status.Result.NewIndexed)
	assert.Equal(t, 2, status.Result.Skipped)
	assert.Equal(t, 1, status.Result.Failed)

	count, err := database.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// A finished scan reports its final state once and closes the stream
	rec = do(t, router, http.MethodGet, "/scan/progress")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: progress\ndata: "))
	assert.Contains(t, rec.Body.String(), started["job_id"])
}

func TestScan_AlreadyRunning(t *testing.T) {
	h, router, _ := setupTestHandlers(t)

	jobID, ok := h.scan.start()
	require.True(t, ok)

	rec := do(t, router, http.MethodPost, "/scan")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), jobID)

	h.scan.finish(&indexer.IndexResult{}, nil)
	status := h.scan.Status()
	assert.True(t, status.Completed)
	assert.False(t, status.Scanning)
}

func TestScanProgress_Broadcast(t *testing.T) {
	sp := newScanProgress()
	ch := sp.subscribe()
	gone := sp.subscribe()
	sp.unsubscribe(gone)

	_, ok := sp.start()
	require.True(t, ok)
	sp.update(1, 3, "a.msg")
	sp.finish(&indexer.IndexResult{TotalFound: 3, NewIndexed: 3}, nil)

	first := <-ch
	assert.Equal(t, "progress", first.Type)
	assert.Equal(t, "a.msg", first.Data.(ScanStatus).File)
	second := <-ch
	assert.Equal(t, "complete", second.Type)
	_, open := <-ch
	assert.False(t, open, "Subscriptions end with the scan")

	select {
	case ev := <-gone:
		t.Fatalf("unexpected event after unsubscribe: %v", ev)
	default:
	}
}

// stalledWriter blocks every write after the initial status until released
type stalledWriter struct {
	*httptest.ResponseRecorder
	writes  int
	stalled atomic.Bool
	release chan struct{}
}

func (w *stalledWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.writes > 2 {
		w.stalled.Store(true)
		<-w.release
	}
	return w.ResponseRecorder.Write(b)
}

// TestScanProgressSSE_FullBuffer ends the stream even when the completion
// event could not be queued for a slow client
func TestScanProgressSSE_FullBuffer(t *testing.T) {
	h := New(nil, nil, nil)
	_, ok := h.scan.start()
	require.True(t, ok)

	w := &stalledWriter{ResponseRecorder: httptest.NewRecorder(), release: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		h.ScanProgressSSE(w, httptest.NewRequest(http.MethodGet, "/scan/progress", nil))
		close(done)
	}()

	var client chan ProgressEvent
	require.Eventually(t, func() bool {
		h.scan.mu.RLock()
		defer h.scan.mu.RUnlock()
		if len(h.scan.progressClients) == 1 {
			client = h.scan.progressClients[0]
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	h.scan.update(1, 20, "a.msg")
	require.Eventually(t, w.stalled.Load, 5*time.Second, 10*time.Millisecond)
	for len(client) < cap(client) {
		h.scan.update(2, 20, "b.msg")
	}
	h.scan.finish(&indexer.IndexResult{TotalFound: 20, NewIndexed: 20}, nil)
	close(w.release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SSE stream did not end after the scan finished")
	}
	assert.Contains(t, w.Body.String(), "event: complete")
	assert.Contains(t, w.Body.String(), `"new_indexed":20`)
}

func TestShutdown(t *testing.T) {
	h, router, _ := setupTestHandlers(t)

	assert.Equal(t, http.StatusNotImplemented, do(t, router, http.MethodPost, "/shutdown").Code)

	sig := make(chan os.Signal, 1)
	h.SetShutdownChannel(sig)
	assert.Equal(t, http.StatusAccepted, do(t, router, http.MethodPost, "/shutdown").Code)

	select {
	case <-sig:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown signal not sent")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"sub/dir/mail.msg", "mail.msg"},
		{"quo\"te's.txt", "quotes.txt"},
		{"tab\there.txt", "tabhere.txt"},
		{"", "download.bin"},
		{strings.Repeat("a", 300), strings.Repeat("a", 255)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
