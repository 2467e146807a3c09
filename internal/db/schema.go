package db

// Schema stores metadata and a search preview only.
// Bodies, transport headers and attachment details are decoded from the .msg file on demand.
const schema = `
-- Main emails table (metadata only)
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_path TEXT UNIQUE NOT NULL,
    message_id TEXT,
    in_reply_to TEXT,        -- Message-ID of parent email (for threading)
    thread_references TEXT,  -- Comma-separated Message-IDs (conversation ancestry)
    message_class TEXT,      -- IPM.Note, IPM.Schedule.Meeting.Request, ...
    subject TEXT,
    sender TEXT NOT NULL,
    sender_name TEXT,
    recipients TEXT,
    cc TEXT,
    bcc TEXT,
    date DATETIME,
    body_text_preview TEXT,  -- First 10KB for FTS5 search only
    has_attachments BOOLEAN DEFAULT 0,
    attachment_count INTEGER DEFAULT 0,
    issue_count INTEGER DEFAULT 0,  -- Properties dropped while decoding
    file_size INTEGER,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search virtual table
CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    subject,
    sender,
    sender_name,
    recipients,
    body_text_preview,
    content='emails',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS emails_ai AFTER INSERT ON emails BEGIN
    INSERT INTO emails_fts(rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS emails_ad AFTER DELETE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS emails_au AFTER UPDATE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_text_preview);
    INSERT INTO emails_fts(rowid, subject, sender, sender_name, recipients, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_text_preview);
END;

-- Attachments table (metadata only; attachment data stays in the .msg file)
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL,
    ordinal INTEGER NOT NULL DEFAULT 0,
    filename TEXT NOT NULL,
    content_type TEXT,
    content_id TEXT,
    method INTEGER DEFAULT 0,  -- PR_ATTACH_METHOD
    size INTEGER,
    embedded BOOLEAN DEFAULT 0,
    FOREIGN KEY(email_id) REFERENCES emails(id) ON DELETE CASCADE
);

-- Settings table (for storing email folder path, preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date DESC);
CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_sender_date ON emails(sender, date DESC);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_emails_in_reply_to ON emails(in_reply_to);
CREATE INDEX IF NOT EXISTS idx_emails_message_class ON emails(message_class);
CREATE INDEX IF NOT EXISTS idx_attachments_email_id ON attachments(email_id);
`
