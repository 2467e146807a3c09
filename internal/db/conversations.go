package db

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCircularReference is returned when In-Reply-To links loop back on themselves
var ErrCircularReference = errors.New("circular reference in conversation")

const (
	maxThreadDepth = 50  // Deepest reply tree built by BuildConversationTree
	maxHops        = 100 // Longest parent chain followed by findConversationRoot
)

// ConversationEmail represents an email with conversation metadata
type ConversationEmail struct {
	*Email
	Children    []*ConversationEmail `json:"children,omitempty"` // Child emails (replies)
	ReplyCount  int                  `json:"reply_count"`        // Total number of replies in thread
	IsRootEmail bool                 `json:"is_root"`            // True if this is the start of a conversation
	ThreadDepth int                  `json:"depth"`              // Depth in conversation tree (0 = root)
}

// GetRootEmails retrieves only emails that are not replies (root emails)
// These are emails where in_reply_to is empty or points to non-existent message
func (db *DB) GetRootEmails(limit, offset int) ([]*Email, error) {
	return db.queryEmails("get root emails", `
		SELECT `+emailColumns+`
		FROM emails
		WHERE in_reply_to IS NULL OR in_reply_to = ''
		   OR in_reply_to NOT IN (SELECT message_id FROM emails WHERE message_id IS NOT NULL AND message_id != '')
		ORDER BY date DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

// GetEmailsByMessageID retrieves an email by its Message-ID, or nil when none matches
func (db *DB) GetEmailsByMessageID(messageID string) (*Email, error) {
	if messageID == "" {
		return nil, nil
	}

	emails, err := db.queryEmails("get email by message_id", `
		SELECT `+emailColumns+`
		FROM emails
		WHERE message_id = ?
		LIMIT 1
	`, messageID)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, nil
	}
	return emails[0], nil
}

// GetDirectReplies retrieves all emails that directly reply to the given message ID
func (db *DB) GetDirectReplies(messageID string) ([]*Email, error) {
	if messageID == "" {
		return []*Email{}, nil
	}

	return db.queryEmails("get direct replies", `
		SELECT `+emailColumns+`
		FROM emails
		WHERE in_reply_to = ?
		ORDER BY date ASC
	`, messageID)
}

// BuildConversationTree builds a nested conversation tree starting from a root email
func (db *DB) BuildConversationTree(rootEmail *Email) (*ConversationEmail, error) {
	conv := &ConversationEmail{
		Email:       rootEmail,
		Children:    make([]*ConversationEmail, 0),
		IsRootEmail: true,
	}

	visited := make(map[string]bool)
	if err := db.buildConversationTreeRecursive(conv, 1, visited); err != nil {
		return nil, err
	}

	return conv, nil
}

// buildConversationTreeRecursive attaches replies to parent, skipping messages already visited
func (db *DB) buildConversationTreeRecursive(parent *ConversationEmail, depth int, visited map[string]bool) error {
	if parent.Email.MessageID == "" || visited[parent.Email.MessageID] || depth > maxThreadDepth {
		return nil
	}
	visited[parent.Email.MessageID] = true

	replies, err := db.GetDirectReplies(parent.Email.MessageID)
	if err != nil {
		return err
	}

	for _, reply := range replies {
		if visited[reply.MessageID] {
			continue
		}
		childConv := &ConversationEmail{
			Email:       reply,
			Children:    make([]*ConversationEmail, 0),
			ThreadDepth: depth,
		}

		if err := db.buildConversationTreeRecursive(childConv, depth+1, visited); err != nil {
			return err
		}

		parent.Children = append(parent.Children, childConv)
		parent.ReplyCount += 1 + childConv.ReplyCount
	}

	return nil
}

// GetConversationEmails gets all emails in a conversation (flat list)
// Starting from any email in the conversation, finds the root and returns all related emails
func (db *DB) GetConversationEmails(emailID int64) ([]*Email, error) {
	email, err := db.GetEmailByID(emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("email %d: %w", emailID, ErrNotFound)
	}

	root, err := db.findConversationRoot(email)
	if err != nil {
		return nil, err
	}
	if root.MessageID == "" {
		return []*Email{root}, nil
	}

	return db.getConversationEmailsRecursive(root.MessageID, make(map[string]bool))
}

// findConversationRoot follows parent links until it reaches an email whose parent is not indexed.
// A loop is reported as ErrCircularReference; chains longer than maxHops stop at the last email reached.
func (db *DB) findConversationRoot(email *Email) (*Email, error) {
	current := email
	seen := map[string]bool{}
	if email.MessageID != "" {
		seen[email.MessageID] = true
	}

	for hops := 0; hops < maxHops; hops++ {
		parentID := current.ParentID()
		if parentID == "" {
			break
		}
		if seen[parentID] {
			return nil, fmt.Errorf("%w: %s", ErrCircularReference, parentID)
		}

		parent, err := db.GetEmailsByMessageID(parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		seen[parentID] = true
		current = parent
	}

	return current, nil
}

// getConversationEmailsRecursive recursively collects all emails in a conversation
func (db *DB) getConversationEmailsRecursive(messageID string, visited map[string]bool) ([]*Email, error) {
	if messageID == "" || visited[messageID] {
		return []*Email{}, nil
	}
	visited[messageID] = true

	email, err := db.GetEmailsByMessageID(messageID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return []*Email{}, nil
	}
	result := []*Email{email}

	replies, err := db.GetDirectReplies(messageID)
	if err != nil {
		return nil, err
	}

	for _, reply := range replies {
		descendants, err := db.getConversationEmailsRecursive(reply.MessageID, visited)
		if err != nil {
			return nil, err
		}
		result = append(result, descendants...)
	}

	return result, nil
}

// CountReplies counts the number of direct and indirect replies to an email
func (db *DB) CountReplies(messageID string) (int, error) {
	if messageID == "" {
		return 0, nil
	}

	// UNION (not UNION ALL) stops the recursion when replies form a loop
	var count int
	err := db.QueryRow(`
		WITH RECURSIVE replies AS (
			SELECT id, message_id, in_reply_to
			FROM emails
			WHERE in_reply_to = ?

			UNION

			SELECT e.id, e.message_id, e.in_reply_to
			FROM emails e
			INNER JOIN replies r ON e.in_reply_to = r.message_id
		)
		SELECT COUNT(*) FROM replies
	`, messageID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}

	return count, nil
}

// GetRootEmailsWithReplyCounts retrieves root emails with their reply counts
func (db *DB) GetRootEmailsWithReplyCounts(limit, offset int) ([]*ConversationEmail, error) {
	rootEmails, err := db.GetRootEmails(limit, offset)
	if err != nil {
		return nil, err
	}

	result := make([]*ConversationEmail, 0, len(rootEmails))
	for _, email := range rootEmails {
		replyCount, err := db.CountReplies(email.MessageID)
		if err != nil {
			replyCount = 0
		}

		result = append(result, &ConversationEmail{
			Email:       email,
			ReplyCount:  replyCount,
			IsRootEmail: true,
		})
	}

	return result, nil
}

// GetReferencesList parses the stored References into a slice
func (e *Email) GetReferencesList() []string {
	if e.ThreadReferences == "" {
		return []string{}
	}
	refs := strings.Split(e.ThreadReferences, ",")
	result := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref != "" {
			result = append(result, ref)
		}
	}
	return result
}

// ParentID returns the Message-ID this email replies to: In-Reply-To, else the last reference
func (e *Email) ParentID() string {
	if e.InReplyTo != "" {
		return e.InReplyTo
	}
	if refs := e.GetReferencesList(); len(refs) > 0 {
		return refs[len(refs)-1]
	}
	return ""
}

// GetConversationTree builds the thread containing the given email, starting from its root
func (db *DB) GetConversationTree(emailID int64) (*ConversationEmail, error) {
	email, err := db.GetEmailByID(emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("email %d: %w", emailID, ErrNotFound)
	}

	root, err := db.findConversationRoot(email)
	if err != nil {
		return nil, err
	}
	return db.BuildConversationTree(root)
}
