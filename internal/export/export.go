// Package export converts decoded .msg items into RFC 5322 messages and mbox
// archives. Attachment data is never read from .msg files, so exports carry
// the message headers and bodies only.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message/mail"
	"github.com/felo/msg-viewer/internal/parser"
)

// Header builds the RFC 5322 header of email.
func Header(email *parser.Email) mail.Header {
	var h mail.Header

	if sent, ok := email.GetSentDate(); ok {
		h.SetDate(sent)
	}
	if from, ok := email.GetFrom(); ok {
		h.SetAddressList("From", []*mail.Address{address(from)})
	}
	setRecipients(&h, "To", email.RecipientsOf(parser.RecipientTo))
	setRecipients(&h, "Cc", email.RecipientsOf(parser.RecipientCc))
	setRecipients(&h, "Bcc", email.RecipientsOf(parser.RecipientBcc))

	if subject, ok := email.GetSubject(); ok {
		h.SetSubject(subject)
	}
	if id, ok := email.GetMessageID(); ok && id != "" {
		h.SetMessageID(msgID(id))
	}
	if email.InReplyTo != nil && *email.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msgID(*email.InReplyTo)})
	}
	if len(email.References) > 0 {
		refs := make([]string, 0, len(email.References))
		for _, ref := range email.References {
			refs = append(refs, msgID(ref))
		}
		h.SetMsgIDList("References", refs)
	}
	if email.MessageClass != nil {
		h.Set("X-MS-Message-Class", *email.MessageClass)
	}

	return h
}

func address(m parser.Mailbox) *mail.Address {
	return &mail.Address{Name: m.Name, Address: m.Address}
}

// setRecipients skips name-only recipients, which have no RFC 5322 form.
func setRecipients(h *mail.Header, key string, recipients []parser.Recipient) {
	var addrs []*mail.Address
	for _, r := range recipients {
		if r.Address == "" {
			continue
		}
		addrs = append(addrs, address(r.Mailbox()))
	}
	if len(addrs) > 0 {
		h.SetAddressList(key, addrs)
	}
}

func msgID(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}

func textHeader(contentType string) mail.InlineHeader {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return h
}

// WriteEML writes email to w as a MIME message. A message with both a plain
// and an HTML body carries them in a multipart/alternative part.
func WriteEML(w io.Writer, email *parser.Email) error {
	h := Header(email)
	text, hasText := email.GetBody()
	html, hasHTML := email.GetBodyHTML()

	if !hasText || !hasHTML {
		contentType, body := "text/plain", text
		if hasHTML {
			contentType, body = "text/html", html
		}
		h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")

		bw, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("failed to create message writer: %w", err)
		}
		if _, err := io.WriteString(bw, body); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}
		return bw.Close()
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create inline part: %w", err)
	}

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", text},
		{"text/html", html},
	} {
		pw, err := iw.CreatePart(textHeader(part.contentType))
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}

	if err := iw.Close(); err != nil {
		return err
	}
	return mw.Close()
}

// MboxWriter appends messages to an mbox stream.
type MboxWriter struct {
	mw    *mbox.Writer
	count int
}

// NewMboxWriter starts an mbox stream on w.
func NewMboxWriter(w io.Writer) *MboxWriter {
	return &MboxWriter{mw: mbox.NewWriter(w)}
}

// Add writes email as the next message of the mbox.
func (m *MboxWriter) Add(email *parser.Email) error {
	from := "MAILER-DAEMON"
	if sender, ok := email.GetFrom(); ok && sender.Address != "" {
		from = sender.Address
	}

	date, ok := email.GetSentDate()
	if !ok && email.ReceivedDate != nil {
		date = *email.ReceivedDate
	}
	if date.IsZero() {
		date = time.Unix(0, 0)
	}

	w, err := m.mw.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("failed to create mbox message: %w", err)
	}
	if err := WriteEML(w, email); err != nil {
		return err
	}
	m.count++
	return nil
}

// Count returns the number of messages written so far.
func (m *MboxWriter) Count() int {
	return m.count
}

// Close finishes the last message.
func (m *MboxWriter) Close() error {
	return m.mw.Close()
}
