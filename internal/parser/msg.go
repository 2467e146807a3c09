package parser

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
)

// RecipientKind classifies a recipient by PR_RECIPIENT_TYPE.
type RecipientKind int

const (
	RecipientTo RecipientKind = iota + 1
	RecipientCc
	RecipientBcc
)

func (k RecipientKind) String() string {
	switch k {
	case RecipientCc:
		return "cc"
	case RecipientBcc:
		return "bcc"
	}
	return "to"
}

// MarshalText renders the kind as "to", "cc" or "bcc".
func (k RecipientKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Mailbox is a display name and address pair.
type Mailbox struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// String formats the mailbox as an RFC 5322 address.
func (m Mailbox) String() string {
	if m.Address == "" {
		return m.Name
	}
	a := mail.Address{Name: m.Name, Address: m.Address}
	return a.String()
}

// Recipient is one entry of the message's recipient table.
type Recipient struct {
	Ordinal     int           `json:"ordinal"`
	Kind        RecipientKind `json:"kind"`
	Name        string        `json:"name,omitempty"`
	Address     string        `json:"address,omitempty"`
	AddressType string        `json:"address_type,omitempty"`

	Props *mapi.PropertySet `json:"-"`
}

// Mailbox returns the recipient's name and address.
func (r Recipient) Mailbox() Mailbox {
	return Mailbox{Name: r.Name, Address: r.Address}
}

// label is the string that goes into the To, Cc and Bcc lists.
func (r Recipient) label() string {
	if r.Address != "" {
		return r.Address
	}
	return r.Name
}

// Attachment describes one attachment storage. The attachment data is never
// read; DataSize is the size its record declares.
type Attachment struct {
	Ordinal      int    `json:"ordinal"`
	Filename     string `json:"filename,omitempty"`
	LongFilename string `json:"long_filename,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	ContentID    string `json:"content_id,omitempty"`
	Method       int    `json:"method"`
	Size         int64  `json:"size"`
	DataSize     int64  `json:"data_size"`
	Hidden       bool   `json:"hidden,omitempty"`

	// Embedded holds the decoded message for attach method 5.
	Embedded *Email `json:"embedded,omitempty"`
}

// Attachment methods (PR_ATTACH_METHOD).
const (
	AttachByValue         = 1
	AttachEmbeddedMessage = 5
	AttachOLE             = 6
)

// Name picks the most descriptive file name available.
func (a Attachment) Name() string {
	switch {
	case a.LongFilename != "":
		return a.LongFilename
	case a.Filename != "":
		return a.Filename
	case a.DisplayName != "":
		return a.DisplayName
	case a.Embedded != nil && a.Embedded.Subject != nil:
		return *a.Embedded.Subject + ".msg"
	}
	return fmt.Sprintf("attachment-%d", a.Ordinal)
}

// Issue records a property, recipient or attachment that was dropped while
// decoding. Scope names the entity, e.g. "message" or "recipient 2".
type Issue struct {
	Scope string
	Tag   mapi.PropTag
	Err   error
}

func (i Issue) Error() string {
	if i.Tag == 0 {
		return fmt.Sprintf("%s: %v", i.Scope, i.Err)
	}
	return fmt.Sprintf("%s: property %s: %v", i.Scope, i.Tag, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }

// Email is a decoded mail item. Optional fields are nil when the message does
// not carry them; the recipient lists are empty rather than nil.
type Email struct {
	From         *Mailbox    `json:"from,omitempty"`
	To           []string    `json:"to"`
	Cc           []string    `json:"cc"`
	Bcc          []string    `json:"bcc"`
	Recipients   []Recipient `json:"recipients"`
	Subject      *string     `json:"subject,omitempty"`
	Body         *string     `json:"body,omitempty"`
	BodyHTML     *string     `json:"body_html,omitempty"`
	SentDate     *time.Time  `json:"sent_date,omitempty"`
	ReceivedDate *time.Time  `json:"received_date,omitempty"`
	MessageID    *string     `json:"message_id,omitempty"`
	InReplyTo    *string     `json:"in_reply_to,omitempty"`
	References   []string    `json:"references,omitempty"`
	MessageClass *string     `json:"message_class,omitempty"`

	TransportHeaders *string      `json:"transport_headers,omitempty"`
	Attachments      []Attachment `json:"attachments"`

	// Root is the message's own property set.
	Root   *mapi.PropertySet `json:"-"`
	Issues []Issue           `json:"-"`
}

// GetFrom returns the sender.
func (e *Email) GetFrom() (Mailbox, bool) {
	if e.From == nil {
		return Mailbox{}, false
	}
	return *e.From, true
}

// GetSubject returns the subject.
func (e *Email) GetSubject() (string, bool) { return deref(e.Subject) }

// GetBody returns the plain text body.
func (e *Email) GetBody() (string, bool) { return deref(e.Body) }

// GetBodyHTML returns the HTML body.
func (e *Email) GetBodyHTML() (string, bool) { return deref(e.BodyHTML) }

// GetSentDate returns when the message was sent.
func (e *Email) GetSentDate() (time.Time, bool) {
	if e.SentDate == nil {
		return time.Time{}, false
	}
	return *e.SentDate, true
}

// GetMessageID returns the Internet Message-ID.
func (e *Email) GetMessageID() (string, bool) { return deref(e.MessageID) }

// GetTo returns the To addresses in recipient order.
func (e *Email) GetTo() []string { return e.To }

// GetCc returns the Cc addresses in recipient order.
func (e *Email) GetCc() []string { return e.Cc }

// GetBcc returns the Bcc addresses in recipient order.
func (e *Email) GetBcc() []string { return e.Bcc }

// RecipientsOf returns the recipients of one kind in ordinal order.
func (e *Email) RecipientsOf(kind RecipientKind) []Recipient {
	var out []Recipient
	for _, r := range e.Recipients {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

// ParseMSGFile decodes the .msg file at path.
func ParseMSGFile(path string, opts ...Option) (*Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %w", ErrContainer, err)
	}
	defer f.Close()

	return ParseMSG(f, opts...)
}

// ParseMSG decodes a .msg container read from ra.
func ParseMSG(ra io.ReaderAt, opts ...Option) (*Email, error) {
	container, err := cfb.Open(ra)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainer, err)
	}
	return NewReader(container, nil, opts...).Decode()
}
