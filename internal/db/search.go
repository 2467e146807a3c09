package db

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// EmailSearchResult represents a search result with snippet
type EmailSearchResult struct {
	Email
	Snippet string `json:"snippet"`
}

// SearchFilter narrows a search beyond the full-text query
type SearchFilter struct {
	Query          string
	Sender         string
	Recipient      string // Matches To, Cc or Bcc
	MessageClass   string // Prefix match, e.g. "IPM.Note"
	HasAttachments bool
	DateFrom       string
	DateTo         string
	Limit          int
	Offset         int
}

// ftsQuery builds an FTS5 MATCH expression with prefix matching: "john doe" -> "john"* "doe"*
// Quoting each term keeps characters like @ and - from being read as FTS5 syntax
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	fuzzyTerms := make([]string, len(terms))
	for i, term := range terms {
		fuzzyTerms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return strings.Join(fuzzyTerms, " ")
}

// SearchEmails performs a full-text search on emails using FTS5
func (db *DB) SearchEmails(query string, limit int) ([]*EmailSearchResult, error) {
	return db.Search(SearchFilter{Query: query, Limit: limit})
}

// SearchEmailsWithFilters performs a search with additional filters
func (db *DB) SearchEmailsWithFilters(query, sender, recipient string, hasAttachments bool, dateFrom, dateTo string, limit int) ([]*EmailSearchResult, error) {
	return db.Search(SearchFilter{
		Query:          query,
		Sender:         sender,
		Recipient:      recipient,
		HasAttachments: hasAttachments,
		DateFrom:       dateFrom,
		DateTo:         dateTo,
		Limit:          limit,
	})
}

// Search runs a filtered, paginated search. Without a query, results are ordered by date
func (db *DB) Search(f SearchFilter) ([]*EmailSearchResult, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query := ftsQuery(f.Query)

	var conditions []string
	var args []interface{}

	if query != "" {
		conditions = append(conditions, "emails_fts MATCH ?")
		args = append(args, query)
	}

	if f.Sender != "" {
		conditions = append(conditions, "(e.sender LIKE ? OR e.sender_name LIKE ?)")
		args = append(args, "%"+f.Sender+"%", "%"+f.Sender+"%")
	}

	if f.Recipient != "" {
		conditions = append(conditions, "(e.recipients LIKE ? OR e.cc LIKE ? OR e.bcc LIKE ?)")
		pattern := "%" + f.Recipient + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if f.MessageClass != "" {
		conditions = append(conditions, "e.message_class LIKE ?")
		args = append(args, f.MessageClass+"%")
	}

	if f.HasAttachments {
		conditions = append(conditions, "e.has_attachments = 1")
	}

	if f.DateFrom != "" {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, f.DateTo)
	}

	sqlQuery := `SELECT ` + prefixColumns("e.", emailColumns)
	if query != "" {
		sqlQuery += `, snippet(emails_fts, 4, '<mark>', '</mark>', '...', 32) as snippet
		FROM emails e
		JOIN emails_fts ON e.id = emails_fts.rowid
		`
	} else {
		sqlQuery += `, '' as snippet
		FROM emails e
		`
	}

	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	if query != "" {
		sqlQuery += " ORDER BY rank"
	} else {
		sqlQuery += " ORDER BY e.date DESC"
	}

	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	defer rows.Close()

	results := []*EmailSearchResult{}
	for rows.Next() {
		var snippet string
		email, err := scanEmail(rows, &snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		// Generate snippet if not from FTS5
		if snippet == "" {
			snippet = truncateText(email.BodyTextPreview, 200)
		}

		results = append(results, &EmailSearchResult{Email: *email, Snippet: snippet})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// prefixColumns qualifies each column of a comma-separated list with prefix
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// truncateText truncates text to maxLen bytes without splitting a UTF-8 sequence
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
