package db

import (
	"fmt"
	"testing"
	"time"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestEmail creates a test email with default values
func CreateTestEmail(subject, sender, body string) *Email {
	return &Email{
		FilePath:        fmt.Sprintf("test/%s.msg", subject),
		MessageID:       fmt.Sprintf("<%s@test.com>", subject),
		MessageClass:    "IPM.Note",
		Subject:         subject,
		Sender:          sender,
		SenderName:      "Test Sender",
		Recipients:      "recipient@test.com",
		Date:            NewNullTime(time.Now()),
		BodyTextPreview: body,
		FileSize:        int64(len(body)),
	}
}

// InsertTestEmails inserts multiple test emails and returns them
func InsertTestEmails(t *testing.T, db *DB, emails []*Email) []*Email {
	t.Helper()

	for i, email := range emails {
		id, err := db.InsertEmail(email)
		if err != nil {
			t.Fatalf("Failed to insert test email %d: %v", i, err)
		}
		emails[i].ID = id
	}

	return emails
}

// CreateTestEmailWithDate creates a test email with a specific date
func CreateTestEmailWithDate(subject, sender, body string, date time.Time) *Email {
	email := CreateTestEmail(subject, sender, body)
	email.Date = NewNullTime(date)
	return email
}

// CreateTestEmailWithAttachments creates a test email with attachments
func CreateTestEmailWithAttachments(subject, sender, body string, attachmentCount int) *Email {
	email := CreateTestEmail(subject, sender, body)
	email.HasAttachments = attachmentCount > 0
	email.AttachmentCount = attachmentCount
	return email
}
