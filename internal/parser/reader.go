// Package parser turns the property sets of an Outlook .msg container into
// an Email: sender, recipients, subject, bodies, dates and attachment
// metadata.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
	"github.com/felo/msg-viewer/internal/rtf"
)

var (
	// ErrContainer means the container could not be opened or traversed.
	ErrContainer = errors.New("container error")
	// ErrMissingPropertyStream means a message, recipient or attachment
	// storage has no __properties_version1.0 stream.
	ErrMissingPropertyStream = errors.New("missing property stream")
)

// maxEmbedDepth bounds recursion into attached messages.
const maxEmbedDepth = 8

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger dropped properties are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// WithCodepage forces the codepage for 8-bit strings, ignoring the
// message's own codepage properties.
func WithCodepage(cp int) Option {
	return func(r *Reader) { r.codepage = cp }
}

// WithLossyStrings replaces undecodable text with U+FFFD instead of dropping
// the property.
func WithLossyStrings() Option {
	return func(r *Reader) { r.strings = mapi.StringsReplace }
}

// WithStrictStrings makes any string decode failure fatal to Decode.
func WithStrictStrings() Option {
	return func(r *Reader) {
		r.strings = mapi.StringsReject
		r.strict = true
	}
}

// Reader decodes one message rooted at a storage path of a container.
type Reader struct {
	acc  cfb.Accessor
	root []string

	logger   *slog.Logger
	codepage int
	strings  mapi.StringMode
	strict   bool
}

// NewReader returns a Reader for the message stored at root in acc. An empty
// root is the container's root storage.
func NewReader(acc cfb.Accessor, root []string, opts ...Option) *Reader {
	r := &Reader{
		acc:    acc,
		root:   cfb.Join(root),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decode reads the message in a single pass. It fails only when the
// container or the message's own property stream is unusable; anything
// smaller is dropped and listed in Email.Issues.
func (r *Reader) Decode() (*Email, error) {
	kind := mapi.KindMessage
	if len(r.root) > 0 {
		kind = mapi.KindEmbedded
	}
	return r.decodeMessage(r.root, kind, 0)
}

func (r *Reader) readProps(path []string, kind mapi.StreamKind, cp int, opts mapi.DecodeOptions) (*mapi.PropertySet, error) {
	stream, err := r.acc.ReadStream(cfb.Join(path, mapi.PropertiesStream)...)
	if errors.Is(err, cfb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMissingPropertyStream, cfb.PathString(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainer, err)
	}
	res := mapi.Resolver{
		Source:   mapi.StorageSource(r.acc, path),
		Codepage: cp,
		Strings:  r.strings,
	}
	return mapi.DecodeSet(stream, kind, res, opts)
}

func (r *Reader) decodeMessage(path []string, kind mapi.StreamKind, depth int) (*Email, error) {
	set, err := r.readProps(path, kind, r.codepage, mapi.DecodeOptions{})
	if err != nil {
		return nil, err
	}
	storage, err := r.acc.OpenStorage(path...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainer, err)
	}

	email := &Email{
		Root:        set,
		To:          []string{},
		Cc:          []string{},
		Bcc:         []string{},
		Recipients:  []Recipient{},
		Attachments: []Attachment{},
	}
	email.Issues = append(email.Issues, scoped("message", set.Issues())...)

	cp := set.Codepage()
	recipients, issues := r.collectRecipients(path, storage.Storages(), cp)
	email.Issues = append(email.Issues, issues...)
	for _, rc := range recipients {
		email.Recipients = append(email.Recipients, rc)
		switch rc.Kind {
		case RecipientCc:
			email.Cc = append(email.Cc, rc.label())
		case RecipientBcc:
			email.Bcc = append(email.Bcc, rc.label())
		default:
			email.To = append(email.To, rc.label())
		}
	}

	attachments, issues, err := r.collectAttachments(path, storage.Storages(), cp, depth)
	if err != nil {
		return nil, err
	}
	email.Attachments = append(email.Attachments, attachments...)
	email.Issues = append(email.Issues, issues...)

	email.Issues = append(email.Issues, r.mapFields(email, set)...)

	for _, is := range email.Issues {
		if r.strict && errors.Is(is, mapi.ErrStringDecode) {
			return nil, is
		}
		r.logger.Debug("dropped property",
			"path", cfb.PathString(path),
			"scope", is.Scope,
			"tag", is.Tag.String(),
			"error", is.Err)
	}
	return email, nil
}

// mapFields copies well-known properties of the root set into email.
func (r *Reader) mapFields(email *Email, set *mapi.PropertySet) []Issue {
	var issues []Issue
	email.Subject = optString(set, mapi.PidTagSubject)
	email.Body = optString(set, mapi.PidTagBody)
	email.MessageID = optString(set, mapi.PidTagInternetMessageID)
	email.InReplyTo = optString(set, mapi.PidTagInReplyToID)
	email.MessageClass = optString(set, mapi.PidTagMessageClass)
	email.TransportHeaders = optString(set, mapi.PidTagTransportMessageHeaders)

	if refs, ok := set.String(mapi.PidTagInternetReferences); ok {
		email.References = strings.Fields(refs)
	}

	if html, ok := set.Text(mapi.PidTagBodyHTML); ok {
		email.BodyHTML = &html
	} else if compressed, ok := set.Bytes(mapi.PidTagRtfCompressed); ok {
		html, err := htmlFromRTF(compressed)
		if err != nil {
			issues = append(issues, Issue{
				Scope: "message",
				Tag:   mapi.NewTag(mapi.PidTagRtfCompressed, mapi.PtypBinary),
				Err:   err,
			})
		} else if html != "" {
			email.BodyHTML = &html
		}
	}

	if t, ok := set.Time(mapi.PidTagMessageDeliveryTime); ok {
		email.ReceivedDate = &t
	}
	if t, ok := set.Time(mapi.PidTagClientSubmitTime); ok {
		email.SentDate = &t
	} else if email.ReceivedDate != nil {
		t := *email.ReceivedDate
		email.SentDate = &t
	}

	email.From = sender(set)

	if email.TransportHeaders != nil {
		applyHeaders(email, parseTransportHeaders(*email.TransportHeaders))
	}
	return issues
}

func htmlFromRTF(compressed []byte) (string, error) {
	raw, err := rtf.Decompress(compressed)
	if err != nil {
		return "", err
	}
	html, _ := rtf.ExtractHTML(raw)
	return html, nil
}

// sender builds From from the sender properties, then from the
// sent-representing ones. An Exchange sender's PR_SENDER_EMAIL_ADDRESS is an
// X.500 DN, so the SMTP address wins there.
func sender(set *mapi.PropertySet) *Mailbox {
	var m Mailbox
	m.Name = firstString(set, mapi.PidTagSenderName, mapi.PidTagSentRepresentingName)

	addrType, _ := set.String(mapi.PidTagSenderAddressType)
	if strings.EqualFold(addrType, "EX") {
		m.Address = firstString(set, mapi.PidTagSenderSMTPAddress, mapi.PidTagSenderEmailAddress)
	} else {
		m.Address = firstString(set, mapi.PidTagSenderEmailAddress, mapi.PidTagSenderSMTPAddress)
	}
	if m.Address == "" {
		m.Address = firstString(set, mapi.PidTagSentRepresentingSMTPAddress, mapi.PidTagSentRepresentingEmailAddress)
	}

	if m.Name == "" && m.Address == "" {
		return nil
	}
	return &m
}

func optString(set *mapi.PropertySet, id mapi.PropID) *string {
	s, ok := set.String(id)
	if !ok {
		return nil
	}
	return &s
}

func firstString(set *mapi.PropertySet, ids ...mapi.PropID) string {
	for _, id := range ids {
		if s, ok := set.String(id); ok && s != "" {
			return s
		}
	}
	return ""
}

func scoped(scope string, issues []mapi.Issue) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		out = append(out, Issue{Scope: scope, Tag: is.Tag, Err: is.Err})
	}
	return out
}
