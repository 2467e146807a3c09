package mapitest

import (
	"bytes"
	"os"
	"time"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
)

// Message describes a simple mail item for fixture files. Empty fields are
// left out of the property stream.
type Message struct {
	Class       string
	Subject     string
	Body        string
	HTML        string
	FromName    string
	FromAddress string
	To          []string
	Cc          []string
	Sent        time.Time
	MessageID   string
	InReplyTo   string
	Attachments []string // File names of by-value attachments
}

func (msg Message) props() *Props {
	p := New(mapi.KindMessage).Header(mapi.Header{
		NextRecipientID:  uint32(len(msg.To) + len(msg.Cc)),
		NextAttachmentID: uint32(len(msg.Attachments)),
		RecipientCount:   uint32(len(msg.To) + len(msg.Cc)),
		AttachmentCount:  uint32(len(msg.Attachments)),
	})
	for _, s := range []struct {
		id    mapi.PropID
		value string
	}{
		{mapi.PidTagMessageClass, msg.Class},
		{mapi.PidTagSubject, msg.Subject},
		{mapi.PidTagBody, msg.Body},
		{mapi.PidTagBodyHTML, msg.HTML},
		{mapi.PidTagSenderName, msg.FromName},
		{mapi.PidTagSenderSMTPAddress, msg.FromAddress},
		{mapi.PidTagInternetMessageID, msg.MessageID},
		{mapi.PidTagInReplyToID, msg.InReplyTo},
	} {
		if s.value != "" {
			p.Unicode(s.id, s.value)
		}
	}
	if !msg.Sent.IsZero() {
		p.Time(mapi.PidTagClientSubmitTime, msg.Sent)
	}
	return p
}

// Container lays the message out in an in-memory container.
func (msg Message) Container() (*cfb.Memory, error) {
	m := cfb.NewMemory()
	if err := msg.props().WriteTo(m); err != nil {
		return nil, err
	}

	ordinal := 0
	for _, group := range []struct {
		kind  int32
		addrs []string
	}{{1, msg.To}, {2, msg.Cc}} {
		for _, addr := range group.addrs {
			rp := New(mapi.KindRecipient).
				Int32(mapi.PidTagRecipientType, group.kind).
				Unicode(mapi.PidTagAddressType, "SMTP").
				Unicode(mapi.PidTagSMTPAddress, addr)
			if err := rp.WriteTo(m, mapi.RecipientStorageName(ordinal)); err != nil {
				return nil, err
			}
			ordinal++
		}
	}

	for i, name := range msg.Attachments {
		ap := New(mapi.KindAttachment).
			Int32(mapi.PidTagAttachMethod, 1).
			Unicode(mapi.PidTagAttachLongFilename, name).
			Binary(mapi.PidTagAttachDataBinary, []byte(name))
		if err := ap.WriteTo(m, mapi.AttachmentStorageName(i)); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Encode renders the message as a compound file.
func (msg Message) Encode() ([]byte, error) {
	m, err := msg.Container()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the message as a .msg file at path.
func (msg Message) WriteFile(path string) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
