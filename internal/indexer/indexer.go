package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/felo/msg-viewer/internal/db"
	"github.com/felo/msg-viewer/internal/parser"
	"github.com/felo/msg-viewer/internal/scanner"
)

// previewSize bounds the body text stored for full-text search
const previewSize = 10 * 1024

// ParseFunc decodes the .msg file at path
type ParseFunc func(path string, opts ...parser.Option) (*parser.Email, error)

// Indexer handles email indexing operations
type Indexer struct {
	db          *db.DB
	scanner     *scanner.Scanner
	logger      *slog.Logger
	concurrency int // Number of concurrent workers
	parse       ParseFunc
	parseOpts   []parser.Option
}

// NewIndexer creates a new indexer. A nil logger discards all output.
func NewIndexer(database *db.DB, emailsPath string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		db:          database,
		scanner:     scanner.NewScanner(emailsPath),
		logger:      logger,
		concurrency: runtime.NumCPU() * 2, // 2x CPUs for I/O parallelism
		parse:       parser.ParseMSGFile,
		parseOpts:   []parser.Option{parser.WithLogger(logger)},
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	idx.concurrency = workers
	return idx
}

// WithParserOptions sets the options every file is decoded with
func (idx *Indexer) WithParserOptions(opts ...parser.Option) *Indexer {
	idx.parseOpts = append([]parser.Option{parser.WithLogger(idx.logger)}, opts...)
	return idx
}

// IndexResult contains statistics about an indexing operation
type IndexResult struct {
	TotalFound  int      `json:"total_found"`
	NewIndexed  int      `json:"new_indexed"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files"`
}

// IndexAll scans and indexes all .msg files using concurrent workers
func (idx *Indexer) IndexAll() (*IndexResult, error) {
	idx.logger.Info("indexing emails", "path", idx.scanner.GetRootPath(), "workers", idx.concurrency)

	processed := 0
	result, err := idx.IndexWithProgress(func(current, total int, _ string) {
		processed = current
		if current%100 == 0 {
			idx.logger.Info("indexing progress", "processed", current, "total", total)
		}
	})
	if err != nil {
		return nil, err
	}

	idx.logger.Info("indexing complete",
		"processed", processed,
		"new", result.NewIndexed,
		"skipped", result.Skipped,
		"failed", result.Failed)

	return result, nil
}

// IndexWithProgress indexes all files and reports progress via a callback.
// Files already in the database are counted as skipped without being decoded.
func (idx *Indexer) IndexWithProgress(progress func(current, total int, filePath string)) (*IndexResult, error) {
	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &IndexResult{
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	exists, err := idx.db.EmailsExistBatch(files)
	if err != nil {
		return nil, err
	}

	pending := make([]string, 0, len(files))
	for _, file := range files {
		if exists[file] {
			result.Skipped++
			continue
		}
		pending = append(pending, file)
	}

	idx.logger.Debug("files to index", "found", len(files), "new", len(pending))

	fileChan := make(chan string, len(pending))
	resultChan := make(chan indexResult, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < idx.concurrency; i++ {
		wg.Add(1)
		go idx.indexWorker(&wg, fileChan, resultChan)
	}

	for _, file := range pending {
		fileChan <- file
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processedCount := result.Skipped
	for res := range resultChan {
		processedCount++
		if progress != nil {
			progress(processedCount, result.TotalFound, res.filePath)
		}

		switch res.status {
		case statusIndexed:
			result.NewIndexed++
		case statusSkipped:
			result.Skipped++
		case statusFailed:
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, res.filePath)
		}
	}

	return result, nil
}

type indexStatus int

const (
	statusIndexed indexStatus = iota
	statusSkipped
	statusFailed
)

type indexResult struct {
	filePath string
	status   indexStatus
}

// indexWorker processes files from the file channel
func (idx *Indexer) indexWorker(wg *sync.WaitGroup, fileChan <-chan string, resultChan chan<- indexResult) {
	defer wg.Done()

	for filePath := range fileChan {
		resultChan <- indexResult{
			filePath: filePath,
			status:   idx.processFile(filePath),
		}
	}
}

// processFile decodes one file, given relative to the scan root, and stores its metadata
func (idx *Indexer) processFile(relPath string) indexStatus {
	logger := idx.logger.With("path", relPath)
	absPath := filepath.Join(idx.scanner.GetRootPath(), filepath.FromSlash(relPath))

	fileInfo, err := os.Stat(absPath)
	if err != nil {
		logger.Error("failed to stat file", "error", err)
		return statusFailed
	}

	parsed, err := idx.parse(absPath, idx.parseOpts...)
	if err != nil {
		logger.Error("failed to decode message", "error", err)
		return statusFailed
	}
	if len(parsed.Issues) > 0 {
		logger.Warn("message decoded with issues", "issues", len(parsed.Issues))
	}

	email, attachments := newRecord(relPath, fileInfo.Size(), parsed)
	if _, err := idx.db.InsertEmailWithAttachments(email, attachments); err != nil {
		// A concurrent scan may have inserted the same path first
		if exists, _ := idx.db.EmailExists(relPath); exists {
			return statusSkipped
		}
		logger.Error("failed to store email", "error", err)
		return statusFailed
	}

	return statusIndexed
}

// newRecord maps a decoded message onto its database rows
func newRecord(relPath string, size int64, parsed *parser.Email) (*db.Email, []*db.Attachment) {
	email := &db.Email{
		FilePath:         relPath,
		Recipients:       strings.Join(parsed.GetTo(), ", "),
		CC:               strings.Join(parsed.GetCc(), ", "),
		BCC:              strings.Join(parsed.GetBcc(), ", "),
		ThreadReferences: strings.Join(parsed.References, ","),
		HasAttachments:   len(parsed.Attachments) > 0,
		AttachmentCount:  len(parsed.Attachments),
		IssueCount:       len(parsed.Issues),
		FileSize:         size,
	}

	email.MessageID, _ = parsed.GetMessageID()
	email.Subject, _ = parsed.GetSubject()
	if parsed.InReplyTo != nil {
		email.InReplyTo = *parsed.InReplyTo
	}
	if parsed.MessageClass != nil {
		email.MessageClass = *parsed.MessageClass
	}

	if from, ok := parsed.GetFrom(); ok {
		email.Sender = from.Address
		email.SenderName = from.Name
		if email.Sender == "" {
			email.Sender = from.Name
		}
	}

	if sent, ok := parsed.GetSentDate(); ok {
		email.Date = db.NewNullTime(sent.UTC())
	} else if parsed.ReceivedDate != nil {
		email.Date = db.NewNullTime(parsed.ReceivedDate.UTC())
	}

	if body, ok := parsed.GetBody(); ok {
		email.BodyTextPreview = preview(body)
	}

	attachments := make([]*db.Attachment, 0, len(parsed.Attachments))
	for _, att := range parsed.Attachments {
		size := att.Size
		if size == 0 {
			size = att.DataSize
		}
		attachments = append(attachments, &db.Attachment{
			Ordinal:     att.Ordinal,
			Filename:    att.Name(),
			ContentType: att.MimeType,
			ContentID:   att.ContentID,
			Method:      att.Method,
			Size:        size,
			Embedded:    att.Embedded != nil,
		})
	}

	return email, attachments
}

// preview cuts body to previewSize bytes on a rune boundary
func preview(body string) string {
	if len(body) <= previewSize {
		return body
	}
	cut := previewSize
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
