package db

import (
	"cmp"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felo/msg-viewer/internal/parser"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// NewNullTime returns a valid NullTime holding t
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00", // _time_format=sqlite
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999 -0700 -0700", // Go's time.String() format with duplicate timezone
	"2006-01-02 15:04:05 -0700 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC1123Z,
	time.RFC1123,
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, format := range timeFormats {
		var t time.Time
		if t, err = time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse time string %q: %w", s, err)
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		nt.Time, nt.Valid = t, true
		return nil
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time.UTC(), nil
}

// MarshalJSON renders an invalid time as null
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time)
}

// Email represents an email record in the database (metadata only)
// Full content (bodies, transport headers, recipients) is decoded from the .msg file on demand
type Email struct {
	ID               int64    `json:"id"`
	FilePath         string   `json:"file_path"`
	MessageID        string   `json:"message_id,omitempty"`
	InReplyTo        string   `json:"in_reply_to,omitempty"`       // Message-ID of parent email (for threading)
	ThreadReferences string   `json:"thread_references,omitempty"` // Comma-separated Message-IDs (conversation ancestry)
	MessageClass     string   `json:"message_class,omitempty"`
	Subject          string   `json:"subject"`
	Sender           string   `json:"sender"`
	SenderName       string   `json:"sender_name,omitempty"`
	Recipients       string   `json:"recipients,omitempty"`
	CC               string   `json:"cc,omitempty"`
	BCC              string   `json:"bcc,omitempty"`
	Date             NullTime `json:"date"`
	BodyTextPreview  string   `json:"-"` // First 10KB for FTS5 search only
	HasAttachments   bool     `json:"has_attachments"`
	AttachmentCount  int      `json:"attachment_count"`
	IssueCount       int      `json:"issue_count"`
	FileSize         int64    `json:"file_size"`
	IndexedAt        NullTime `json:"indexed_at"`
	UpdatedAt        NullTime `json:"updated_at"`
}

// GetDate returns the date as time.Time, or zero time if NULL
func (e *Email) GetDate() time.Time {
	if e.Date.Valid {
		return e.Date.Time
	}
	return time.Time{}
}

// EmailWithContent represents a full email with its content decoded from the .msg file
type EmailWithContent struct {
	*Email                                 // Embedded metadata from database
	BodyText         string                `json:"body_text"`
	BodyHTML         string                `json:"body_html,omitempty"`
	To               []string              `json:"to"`
	CCList           []string              `json:"cc_list"`
	BCCList          []string              `json:"bcc_list"`
	RecipientList    []parser.Recipient    `json:"recipient_list"`
	TransportHeaders string                `json:"transport_headers,omitempty"`
	Attachments      []*Attachment         `json:"attachments"`
	Issues           []string              `json:"issues,omitempty"`
	Embedded         map[int]*parser.Email `json:"embedded,omitempty"` // Keyed by attachment ordinal
}

// Attachment represents an email attachment (metadata only)
// Attachment data is never copied out of the .msg file
type Attachment struct {
	ID          int64  `json:"id"`
	EmailID     int64  `json:"email_id"`
	Ordinal     int    `json:"ordinal"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	ContentID   string `json:"content_id,omitempty"`
	Method      int    `json:"method"`
	Size        int64  `json:"size"`
	Embedded    bool   `json:"embedded"`
}

const emailColumns = `id, file_path, message_id, in_reply_to, thread_references, message_class,
		       subject, sender, sender_name, recipients, cc, bcc, date,
		       body_text_preview, has_attachments, attachment_count, issue_count, file_size,
		       indexed_at, updated_at`

const insertEmailSQL = `
		INSERT INTO emails (
			file_path, message_id, in_reply_to, thread_references, message_class,
			subject, sender, sender_name, recipients, cc, bcc, date,
			body_text_preview, has_attachments, attachment_count, issue_count, file_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEmail scans the columns of emailColumns, plus any extra destinations
func scanEmail(row rowScanner, extra ...interface{}) (*Email, error) {
	email := &Email{}
	dest := []interface{}{
		&email.ID, &email.FilePath, &email.MessageID, &email.InReplyTo, &email.ThreadReferences, &email.MessageClass,
		&email.Subject, &email.Sender, &email.SenderName, &email.Recipients, &email.CC, &email.BCC, &email.Date,
		&email.BodyTextPreview, &email.HasAttachments, &email.AttachmentCount, &email.IssueCount, &email.FileSize,
		&email.IndexedAt, &email.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return email, nil
}

func emailArgs(email *Email) []interface{} {
	return []interface{}{
		email.FilePath, email.MessageID, email.InReplyTo, email.ThreadReferences, email.MessageClass,
		email.Subject, email.Sender, email.SenderName, email.Recipients, email.CC, email.BCC, email.Date,
		email.BodyTextPreview, email.HasAttachments, email.AttachmentCount, email.IssueCount, email.FileSize,
	}
}

// queryEmails runs a query selecting emailColumns and collects the rows
func (db *DB) queryEmails(what, query string, args ...interface{}) ([]*Email, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	defer rows.Close()

	emails := []*Email{}
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// InsertEmail inserts a new email into the database (metadata only)
func (db *DB) InsertEmail(email *Email) (int64, error) {
	result, err := db.Exec(insertEmailSQL, emailArgs(email)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}

	return result.LastInsertId()
}

// InsertEmailWithAttachments inserts an email and its attachments in one transaction
func (db *DB) InsertEmailWithAttachments(email *Email, attachments []*Attachment) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(insertEmailSQL, emailArgs(email)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, att := range attachments {
		att.EmailID = id
		if _, err := tx.Exec(insertAttachmentSQL, attachmentArgs(att)...); err != nil {
			return 0, fmt.Errorf("failed to insert attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	email.ID = id
	return id, nil
}

// EmailExists checks if an email with the given file path already exists
func (db *DB) EmailExists(filePath string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM emails WHERE file_path = ?)", filePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// GetEmailByID retrieves an email by its ID (metadata only)
func (db *DB) GetEmailByID(id int64) (*Email, error) {
	email, err := scanEmail(db.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return email, nil
}

// ListEmails retrieves the most recent emails with pagination (metadata only)
func (db *DB) ListEmails(limit, offset int) ([]*Email, error) {
	return db.queryEmails("list emails", `
		SELECT `+emailColumns+`
		FROM emails
		ORDER BY date DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

// CountEmails returns the total number of emails
func (db *DB) CountEmails() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM emails").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}

const insertAttachmentSQL = `
		INSERT INTO attachments (email_id, ordinal, filename, content_type, content_id, method, size, embedded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

const attachmentColumns = `id, email_id, ordinal, filename, content_type, content_id, method, size, embedded`

func attachmentArgs(att *Attachment) []interface{} {
	return []interface{}{att.EmailID, att.Ordinal, att.Filename, att.ContentType, att.ContentID, att.Method, att.Size, att.Embedded}
}

func scanAttachment(row rowScanner) (*Attachment, error) {
	att := &Attachment{}
	err := row.Scan(&att.ID, &att.EmailID, &att.Ordinal, &att.Filename, &att.ContentType,
		&att.ContentID, &att.Method, &att.Size, &att.Embedded)
	if err != nil {
		return nil, err
	}
	return att, nil
}

// InsertAttachment inserts an attachment into the database (metadata only)
func (db *DB) InsertAttachment(att *Attachment) (int64, error) {
	result, err := db.Exec(insertAttachmentSQL, attachmentArgs(att)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert attachment: %w", err)
	}

	return result.LastInsertId()
}

// GetAttachmentsByEmailID retrieves all attachments for an email in ordinal order
func (db *DB) GetAttachmentsByEmailID(emailID int64) ([]*Attachment, error) {
	rows, err := db.Query(`
		SELECT `+attachmentColumns+`
		FROM attachments WHERE email_id = ?
		ORDER BY ordinal, id
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	attachments := []*Attachment{}
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

// GetAttachmentByID retrieves a single attachment by ID (metadata only)
func (db *DB) GetAttachmentByID(id int64) (*Attachment, error) {
	att, err := scanAttachment(db.QueryRow(`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// InsertEmailsBatch inserts multiple emails in a single transaction
// Returns the inserted email IDs in the same order as the input
func (db *DB) InsertEmailsBatch(emails []*Email) ([]int64, error) {
	if len(emails) == 0 {
		return []int64{}, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertEmailSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(emails))
	for _, email := range emails {
		result, err := stmt.Exec(emailArgs(email)...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert email %s: %w", email.FilePath, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

// EmailsExistBatch checks which emails already exist in the database
// Returns a map of file paths to their existence status
func (db *DB) EmailsExistBatch(filePaths []string) (map[string]bool, error) {
	result := make(map[string]bool, len(filePaths))

	// SQLite limits the number of variables in a query (default 999)
	const chunkSize = 500
	for chunk := range slices.Chunk(filePaths, chunkSize) {
		if err := db.checkExistenceChunk(chunk, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// checkExistenceChunk checks a chunk of file paths for existence
func (db *DB) checkExistenceChunk(filePaths []string, result map[string]bool) error {
	query := "SELECT file_path FROM emails WHERE file_path IN (?" +
		strings.Repeat(",?", len(filePaths)-1) + ")"

	args := make([]interface{}, len(filePaths))
	for i, fp := range filePaths {
		args[i] = fp
		result[fp] = false
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var filePath string
		if err := rows.Scan(&filePath); err != nil {
			return fmt.Errorf("failed to scan file path: %w", err)
		}
		result[filePath] = true
	}

	return rows.Err()
}

// GetUniqueSenders retrieves a list of unique sender email addresses
// ordered by frequency (most emails sent first)
func (db *DB) GetUniqueSenders(limit int) ([]string, error) {
	rows, err := db.Query(`
		SELECT sender, COUNT(*) as email_count
		FROM emails
		WHERE sender != ''
		GROUP BY sender
		ORDER BY email_count DESC, sender ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique senders: %w", err)
	}
	defer rows.Close()

	senders := []string{}
	for rows.Next() {
		var sender string
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, sender)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating senders: %w", err)
	}

	return senders, nil
}

// GetUniqueRecipients retrieves unique To, Cc and Bcc addresses ordered by frequency
// Recipients are stored as comma-separated values, so they are split here
func (db *DB) GetUniqueRecipients(limit int) ([]string, error) {
	rows, err := db.Query(`
		SELECT COALESCE(recipients, '') || ',' || COALESCE(cc, '') || ',' || COALESCE(bcc, '')
		FROM emails
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()

	recipientCount := make(map[string]int)
	for rows.Next() {
		var recipients sql.NullString
		if err := rows.Scan(&recipients); err != nil {
			return nil, fmt.Errorf("failed to scan recipients: %w", err)
		}

		for _, part := range strings.Split(recipients.String, ",") {
			if recipient := strings.TrimSpace(part); recipient != "" {
				recipientCount[recipient]++
			}
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}

	type recipientFreq struct {
		email string
		count int
	}
	freqs := make([]recipientFreq, 0, len(recipientCount))
	for email, count := range recipientCount {
		freqs = append(freqs, recipientFreq{email, count})
	}

	// Count descending, then address ascending
	slices.SortFunc(freqs, func(a, b recipientFreq) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.email, b.email)
	})

	result := make([]string, 0, min(limit, len(freqs)))
	for i := 0; i < len(freqs) && i < limit; i++ {
		result = append(result, freqs[i].email)
	}

	return result, nil
}

// Stats holds database statistics
type Stats struct {
	TotalEmails     int            `json:"total_emails"`
	WithAttachments int            `json:"with_attachments"`
	WithIssues      int            `json:"with_issues"`
	ByMessageClass  map[string]int `json:"by_message_class"`
	LastIndexed     time.Time      `json:"last_indexed"`
}

// GetStats returns current database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{ByMessageClass: map[string]int{}}

	err := db.QueryRow("SELECT COUNT(*) FROM emails").Scan(&stats.TotalEmails)
	if err != nil {
		return nil, fmt.Errorf("failed to count emails: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM emails WHERE has_attachments = 1").Scan(&stats.WithAttachments)
	if err != nil {
		return nil, fmt.Errorf("failed to count emails with attachments: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM emails WHERE issue_count > 0").Scan(&stats.WithIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to count emails with issues: %w", err)
	}

	rows, err := db.Query(`SELECT COALESCE(message_class, ''), COUNT(*) FROM emails GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to count message classes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var class string
		var count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, fmt.Errorf("failed to scan message class: %w", err)
		}
		stats.ByMessageClass[class] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message classes: %w", err)
	}

	var lastIndexed sql.NullString
	err = db.QueryRow("SELECT CAST(MAX(indexed_at) AS TEXT) FROM emails").Scan(&lastIndexed)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last indexed time: %w", err)
	}

	if lastIndexed.Valid {
		// If all formats fail, leave LastIndexed as zero time
		if t, err := parseTime(lastIndexed.String); err == nil {
			stats.LastIndexed = t
		}
	}

	return stats, nil
}

// GetEmailWithFullContent retrieves an email and decodes its full content from the .msg file
func (db *DB) GetEmailWithFullContent(id int64, opts ...parser.Option) (*EmailWithContent, error) {
	email, err := db.GetEmailByID(id)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, nil
	}

	absolutePath, err := db.ResolveEmailPath(email.FilePath)
	if err != nil {
		return nil, err
	}

	parsed, err := parser.ParseMSGFile(absolutePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .msg file %s: %w", absolutePath, err)
	}

	attachments, err := db.GetAttachmentsByEmailID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}

	content := &EmailWithContent{
		Email:         email,
		To:            parsed.GetTo(),
		CCList:        parsed.GetCc(),
		BCCList:       parsed.GetBcc(),
		RecipientList: parsed.Recipients,
		Attachments:   attachments,
	}
	content.BodyText, _ = parsed.GetBody()
	content.BodyHTML, _ = parsed.GetBodyHTML()
	if parsed.TransportHeaders != nil {
		content.TransportHeaders = *parsed.TransportHeaders
	}
	for _, is := range parsed.Issues {
		content.Issues = append(content.Issues, is.Error())
	}
	for _, att := range parsed.Attachments {
		if att.Embedded == nil {
			continue
		}
		if content.Embedded == nil {
			content.Embedded = make(map[int]*parser.Email)
		}
		content.Embedded[att.Ordinal] = att.Embedded
	}

	return content, nil
}

// DeleteEmail deletes an email and its attachments from the database
// The .msg file is NOT deleted from disk
func (db *DB) DeleteEmail(id int64) error {
	result, err := db.Exec("DELETE FROM emails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("email %d: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteEmailsBatch deletes multiple emails in a single transaction
func (db *DB) DeleteEmailsBatch(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM emails WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		_, err := stmt.Exec(id)
		if err != nil {
			return fmt.Errorf("failed to delete email %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
