package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
	"github.com/felo/msg-viewer/internal/mapi/mapitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t *testing.T
	m *cfb.Memory
}

func newFixture(t *testing.T, root *mapitest.Props) *fixture {
	t.Helper()
	f := &fixture{t: t, m: cfb.NewMemory()}
	f.add(root)
	return f
}

func (f *fixture) add(p *mapitest.Props, path ...string) *fixture {
	f.t.Helper()
	require.NoError(f.t, p.WriteTo(f.m, path...))
	return f
}

func (f *fixture) recipient(ordinal int, p *mapitest.Props) *fixture {
	return f.add(p, mapi.RecipientStorageName(ordinal))
}

func (f *fixture) decode(opts ...Option) (*Email, error) {
	return NewReader(f.m, nil, opts...).Decode()
}

func newMessage() *mapitest.Props {
	return mapitest.New(mapi.KindMessage)
}

func smtpRecipient(kind int32, name, address string) *mapitest.Props {
	return mapitest.New(mapi.KindRecipient).
		Int32(mapi.PidTagRecipientType, kind).
		Unicode(mapi.PidTagDisplayName, name).
		Unicode(mapi.PidTagAddressType, "SMTP").
		Unicode(mapi.PidTagSMTPAddress, address)
}

func hasIssue(email *Email, target error) bool {
	for _, is := range email.Issues {
		if errors.Is(is, target) {
			return true
		}
	}
	return false
}

// TestDecode_EndToEnd decodes subject, body and a single To recipient
func TestDecode_EndToEnd(t *testing.T) {
	f := newFixture(t, newMessage().
		Unicode(mapi.PidTagSubject, "Hello").
		Unicode(mapi.PidTagBody, "World"))
	f.recipient(0, smtpRecipient(1, "A", "a@example.com"))

	email, err := f.decode()
	require.NoError(t, err)

	subject, ok := email.GetSubject()
	require.True(t, ok)
	assert.Equal(t, "Hello", subject)

	body, ok := email.GetBody()
	require.True(t, ok)
	assert.Equal(t, "World", body)

	assert.Equal(t, []string{"a@example.com"}, email.GetTo())
	assert.NotNil(t, email.GetCc())
	assert.Empty(t, email.GetCc())
	assert.Empty(t, email.GetBcc())
	assert.Empty(t, email.Issues)

	require.Len(t, email.Recipients, 1)
	assert.Equal(t, "A", email.Recipients[0].Name)
	assert.Equal(t, "SMTP", email.Recipients[0].AddressType)
	assert.Equal(t, `"A" <a@example.com>`, email.Recipients[0].Mailbox().String())
}

// TestDecode_RecipientOrdinals orders recipients by storage ordinal
func TestDecode_RecipientOrdinals(t *testing.T) {
	f := newFixture(t, newMessage())
	for _, n := range []int{2, 0, 1} {
		f.recipient(n, smtpRecipient(1, "", string(rune('a'+n))+"@example.com"))
	}

	email, err := f.decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, email.To)
	for i, rc := range email.Recipients {
		assert.Equal(t, i, rc.Ordinal)
	}
}

// TestDecode_RecipientKinds classifies recipients by PR_RECIPIENT_TYPE
func TestDecode_RecipientKinds(t *testing.T) {
	f := newFixture(t, newMessage())
	f.recipient(0, smtpRecipient(1, "", "to@example.com"))
	f.recipient(1, smtpRecipient(2, "", "cc@example.com"))
	f.recipient(2, smtpRecipient(3, "", "bcc@example.com"))
	f.recipient(3, smtpRecipient(0x10000002, "", "flagged-cc@example.com"))
	f.recipient(4, smtpRecipient(7, "", "unknown@example.com"))
	f.recipient(5, mapitest.New(mapi.KindRecipient).
		Unicode(mapi.PidTagDisplayName, "No Type").
		Unicode(mapi.PidTagEmailAddress, "legacy@example.com"))
	f.recipient(6, mapitest.New(mapi.KindRecipient).
		Int32(mapi.PidTagRecipientType, 2).
		Unicode(mapi.PidTagDisplayName, "Name Only"))

	email, err := f.decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"to@example.com", "unknown@example.com", "legacy@example.com"}, email.To)
	assert.Equal(t, []string{"cc@example.com", "flagged-cc@example.com", "Name Only"}, email.Cc)
	assert.Equal(t, []string{"bcc@example.com"}, email.Bcc)
	assert.Len(t, email.RecipientsOf(RecipientCc), 3)
}

// TestDecode_SMTPAddressPreferred prefers PR_SMTP_ADDRESS over the legacy address
func TestDecode_SMTPAddressPreferred(t *testing.T) {
	f := newFixture(t, newMessage())
	f.recipient(0, mapitest.New(mapi.KindRecipient).
		Int32(mapi.PidTagRecipientType, 1).
		Unicode(mapi.PidTagAddressType, "EX").
		Unicode(mapi.PidTagEmailAddress, "/O=EXCHANGE/CN=ALICE").
		Unicode(mapi.PidTagSMTPAddress, "alice@example.com"))

	email, err := f.decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, email.To)
}

// TestDecode_AbsentFields leaves optional fields nil
func TestDecode_AbsentFields(t *testing.T) {
	f := newFixture(t, newMessage().Unicode(mapi.PidTagMessageClass, "IPM.Note"))

	email, err := f.decode()
	require.NoError(t, err)

	_, ok := email.GetSubject()
	assert.False(t, ok)
	_, ok = email.GetBody()
	assert.False(t, ok)
	_, ok = email.GetSentDate()
	assert.False(t, ok)
	_, ok = email.GetFrom()
	assert.False(t, ok)
	assert.Nil(t, email.Subject)
	assert.Nil(t, email.BodyHTML)
	assert.Empty(t, email.To)
	assert.Empty(t, email.Attachments)

	require.NotNil(t, email.MessageClass)
	assert.Equal(t, "IPM.Note", *email.MessageClass)
}

// TestDecode_EmptySubjectIsPresent keeps an empty string distinct from absent
func TestDecode_EmptySubjectIsPresent(t *testing.T) {
	f := newFixture(t, newMessage().Unicode(mapi.PidTagSubject, ""))

	email, err := f.decode()
	require.NoError(t, err)
	subject, ok := email.GetSubject()
	assert.True(t, ok)
	assert.Equal(t, "", subject)
}

// TestDecode_CorruptRecord keeps other fields when one record is bad
func TestDecode_CorruptRecord(t *testing.T) {
	f := newFixture(t, newMessage().
		Record(mapi.NewTag(0x8001, mapi.PropType(0x0099)), [8]byte{}).
		Unicode(mapi.PidTagSubject, "Survivor"))

	email, err := f.decode()
	require.NoError(t, err)

	subject, ok := email.GetSubject()
	require.True(t, ok)
	assert.Equal(t, "Survivor", subject)
	require.Len(t, email.Issues, 1)
	assert.Equal(t, "message", email.Issues[0].Scope)
	assert.ErrorIs(t, email.Issues[0], mapi.ErrUnsupportedPropertyType)
}

// TestDecode_StringModes compares default, lossy and strict string handling
func TestDecode_StringModes(t *testing.T) {
	bad := newMessage().
		Sized(mapi.PidTagSubject, mapi.PtypString, 4, []byte{0x00, 0xD8, 0x41, 0x00}).
		Unicode(mapi.PidTagBody, "fine")

	email, err := newFixture(t, bad).decode()
	require.NoError(t, err)
	assert.Nil(t, email.Subject, "Undecodable subject should be dropped")
	assert.NotNil(t, email.Body)
	assert.True(t, hasIssue(email, mapi.ErrStringDecode))

	email, err = newFixture(t, bad).decode(WithLossyStrings())
	require.NoError(t, err)
	require.NotNil(t, email.Subject)
	assert.Contains(t, *email.Subject, "A")

	_, err = newFixture(t, bad).decode(WithStrictStrings())
	assert.ErrorIs(t, err, mapi.ErrStringDecode)
}

// TestDecode_MissingPropertyStream fails without the root property stream
func TestDecode_MissingPropertyStream(t *testing.T) {
	m := cfb.NewMemory()
	require.NoError(t, m.AddStream([]byte("x"), "unrelated"))

	_, err := NewReader(m, nil).Decode()
	assert.ErrorIs(t, err, ErrMissingPropertyStream)
}

// TestDecode_MalformedRootStream fails on a partial record
func TestDecode_MalformedRootStream(t *testing.T) {
	m := cfb.NewMemory()
	b := newMessage().Int32(mapi.PidTagImportance, 1).Bytes()
	require.NoError(t, m.AddStream(b[:len(b)-5], mapi.PropertiesStream))

	_, err := NewReader(m, nil).Decode()
	assert.ErrorIs(t, err, mapi.ErrMalformedPropertyStream)
}

// TestDecode_BrokenRecipientDropped drops only the undecodable recipient
func TestDecode_BrokenRecipientDropped(t *testing.T) {
	f := newFixture(t, newMessage())
	f.recipient(0, smtpRecipient(1, "", "ok@example.com"))
	require.NoError(t, f.m.AddStorage(mapi.RecipientStorageName(1)))
	require.NoError(t, f.m.AddStream([]byte{1, 2, 3}, mapi.RecipientStorageName(2), mapi.PropertiesStream))
	f.recipient(3, smtpRecipient(2, "", "also-ok@example.com"))

	email, err := f.decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"ok@example.com"}, email.To)
	assert.Equal(t, []string{"also-ok@example.com"}, email.Cc)
	assert.True(t, hasIssue(email, ErrMissingPropertyStream))
	assert.True(t, hasIssue(email, mapi.ErrMalformedPropertyStream))
}

// TestDecode_Sender covers Exchange, SMTP and sent-representing senders
func TestDecode_Sender(t *testing.T) {
	tests := []struct {
		name  string
		props *mapitest.Props
		want  Mailbox
	}{
		{
			name: "exchange sender uses SMTP address",
			props: newMessage().
				Unicode(mapi.PidTagSenderName, "Bob").
				Unicode(mapi.PidTagSenderAddressType, "EX").
				Unicode(mapi.PidTagSenderEmailAddress, "/O=EXCHANGE/CN=BOB").
				Unicode(mapi.PidTagSenderSMTPAddress, "bob@example.com"),
			want: Mailbox{Name: "Bob", Address: "bob@example.com"},
		},
		{
			name: "smtp sender",
			props: newMessage().
				Unicode(mapi.PidTagSenderName, "Carol").
				Unicode(mapi.PidTagSenderAddressType, "SMTP").
				Unicode(mapi.PidTagSenderEmailAddress, "carol@example.com"),
			want: Mailbox{Name: "Carol", Address: "carol@example.com"},
		},
		{
			name: "sent representing fallback",
			props: newMessage().
				Unicode(mapi.PidTagSentRepresentingName, "Dave").
				Unicode(mapi.PidTagSentRepresentingSMTPAddress, "dave@example.com"),
			want: Mailbox{Name: "Dave", Address: "dave@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := newFixture(t, tt.props).decode()
			require.NoError(t, err)
			from, ok := email.GetFrom()
			require.True(t, ok)
			assert.Equal(t, tt.want, from)
		})
	}
}

// TestDecode_SentDate prefers submit time, then delivery time, then headers
func TestDecode_SentDate(t *testing.T) {
	submit := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)

	email, err := newFixture(t, newMessage().
		Time(mapi.PidTagClientSubmitTime, submit).
		Time(mapi.PidTagMessageDeliveryTime, delivery)).decode()
	require.NoError(t, err)
	sent, ok := email.GetSentDate()
	require.True(t, ok)
	assert.Equal(t, submit, sent)
	require.NotNil(t, email.ReceivedDate)
	assert.Equal(t, delivery, *email.ReceivedDate)

	email, err = newFixture(t, newMessage().Time(mapi.PidTagMessageDeliveryTime, delivery)).decode()
	require.NoError(t, err)
	sent, ok = email.GetSentDate()
	require.True(t, ok)
	assert.Equal(t, delivery, sent)

	email, err = newFixture(t, newMessage().Filetime(mapi.PidTagClientSubmitTime, 0)).decode()
	require.NoError(t, err)
	_, ok = email.GetSentDate()
	assert.False(t, ok, "Zero FILETIME should leave the date absent")
}

// TestDecode_TransportHeaders fills gaps from the Internet headers
func TestDecode_TransportHeaders(t *testing.T) {
	headers := "Received: from mx.example.com\r\n" +
		"Date: Tue, 05 Mar 2024 09:15:00 +0100\r\n" +
		"Message-ID: <abc@example.com>\r\n" +
		"In-Reply-To: <parent@example.com>\r\n" +
		"References: <root@example.com> <parent@example.com>\r\n" +
		"From: Erin <erin@example.com>\r\n"

	email, err := newFixture(t, newMessage().
		Unicode(mapi.PidTagTransportMessageHeaders, headers)).decode()
	require.NoError(t, err)

	sent, ok := email.GetSentDate()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 8, 15, 0, 0, time.UTC), sent)

	id, ok := email.GetMessageID()
	require.True(t, ok)
	assert.Equal(t, "<abc@example.com>", id)
	require.NotNil(t, email.InReplyTo)
	assert.Equal(t, "<parent@example.com>", *email.InReplyTo)
	assert.Equal(t, []string{"<root@example.com>", "<parent@example.com>"}, email.References)

	from, ok := email.GetFrom()
	require.True(t, ok)
	assert.Equal(t, Mailbox{Name: "Erin", Address: "erin@example.com"}, from)
}

// TestDecode_ThreadingProperties reads Message-ID and references properties
func TestDecode_ThreadingProperties(t *testing.T) {
	email, err := newFixture(t, newMessage().
		Unicode(mapi.PidTagInternetMessageID, "<child@example.com>").
		Unicode(mapi.PidTagInReplyToID, "<parent@example.com>").
		Unicode(mapi.PidTagInternetReferences, "<root@example.com> <parent@example.com>").
		Unicode(mapi.PidTagTransportMessageHeaders, "Message-ID: <ignored@example.com>\r\n")).decode()
	require.NoError(t, err)

	require.NotNil(t, email.MessageID)
	assert.Equal(t, "<child@example.com>", *email.MessageID)
	require.NotNil(t, email.InReplyTo)
	assert.Equal(t, "<parent@example.com>", *email.InReplyTo)
	assert.Equal(t, []string{"<root@example.com>", "<parent@example.com>"}, email.References)
}

// TestDecode_Codepage decodes 8-bit strings with the message codepage
func TestDecode_Codepage(t *testing.T) {
	f := newFixture(t, newMessage().
		Int32(mapi.PidTagMessageCodepage, 1251).
		String8(mapi.PidTagSubject, []byte{0xCF, 0xF0, 0xE8}))
	f.recipient(0, mapitest.New(mapi.KindRecipient).
		String8(mapi.PidTagDisplayName, []byte{0xC8, 0xE2, 0xE0, 0xED}))

	email, err := f.decode()
	require.NoError(t, err)
	require.NotNil(t, email.Subject)
	assert.Equal(t, "При", *email.Subject)
	assert.Equal(t, []string{"Иван"}, email.To)

	email, err = f.decode(WithCodepage(1252))
	require.NoError(t, err)
	require.NotNil(t, email.Subject)
	assert.Equal(t, "Ïðè", *email.Subject)
}

func melaRTF(raw string) []byte {
	b := make([]byte, 16, 16+len(raw))
	binary.LittleEndian.PutUint32(b[0:], uint32(len(raw)+12))
	binary.LittleEndian.PutUint32(b[4:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(b[8:], 0x414C454D)
	return append(b, raw...)
}

// TestDecode_BodyHTML reads PR_BODY_HTML and falls back to encapsulated RTF
func TestDecode_BodyHTML(t *testing.T) {
	email, err := newFixture(t, newMessage().
		Binary(mapi.PidTagBodyHTML, []byte("<p>direct</p>")).
		Binary(mapi.PidTagRtfCompressed, melaRTF(`{\rtf1\fromhtml1 {\*\htmltag0 <p>}rtf{\*\htmltag0 </p>}}`))).decode()
	require.NoError(t, err)
	html, ok := email.GetBodyHTML()
	require.True(t, ok)
	assert.Equal(t, "<p>direct</p>", html)

	email, err = newFixture(t, newMessage().
		Binary(mapi.PidTagRtfCompressed, melaRTF(`{\rtf1\fromhtml1 {\*\htmltag0 <p>}Hi{\*\htmltag0 </p>}}`))).decode()
	require.NoError(t, err)
	html, ok = email.GetBodyHTML()
	require.True(t, ok)
	assert.Equal(t, "<p>Hi</p>", html)

	email, err = newFixture(t, newMessage().
		Binary(mapi.PidTagRtfCompressed, melaRTF(`{\rtf1 plain}`))).decode()
	require.NoError(t, err)
	assert.Nil(t, email.BodyHTML, "Plain RTF carries no HTML")

	email, err = newFixture(t, newMessage().
		Binary(mapi.PidTagRtfCompressed, []byte{1, 2, 3})).decode()
	require.NoError(t, err)
	assert.Nil(t, email.BodyHTML)
	assert.Len(t, email.Issues, 1)
}

// TestDecode_Attachments reads attachment metadata without the data
func TestDecode_Attachments(t *testing.T) {
	f := newFixture(t, newMessage().Unicode(mapi.PidTagSubject, "With files"))
	f.add(mapitest.New(mapi.KindAttachment).
		Int32(mapi.PidTagAttachMethod, AttachByValue).
		Unicode(mapi.PidTagAttachFilename, "image.png").
		Unicode(mapi.PidTagAttachMimeTag, "image/png").
		Unicode(mapi.PidTagAttachContentID, "img1").
		Bool(mapi.PidTagAttachmentHidden, true).
		Binary(mapi.PidTagAttachDataBinary, make([]byte, 10)),
		mapi.AttachmentStorageName(1))
	f.add(mapitest.New(mapi.KindAttachment).
		Int32(mapi.PidTagAttachMethod, AttachByValue).
		Int32(mapi.PidTagAttachSize, 400).
		Unicode(mapi.PidTagAttachFilename, "REPORT~1.PDF").
		Unicode(mapi.PidTagAttachLongFilename, "report.pdf").
		Binary(mapi.PidTagAttachDataBinary, make([]byte, 300)),
		mapi.AttachmentStorageName(0))

	email, err := f.decode()
	require.NoError(t, err)
	require.Len(t, email.Attachments, 2)

	pdf := email.Attachments[0]
	assert.Equal(t, 0, pdf.Ordinal)
	assert.Equal(t, "report.pdf", pdf.Name())
	assert.Equal(t, int64(400), pdf.Size)
	assert.Equal(t, int64(300), pdf.DataSize)

	png := email.Attachments[1]
	assert.Equal(t, "image.png", png.Name())
	assert.Equal(t, "image/png", png.MimeType)
	assert.Equal(t, "img1", png.ContentID)
	assert.True(t, png.Hidden)
	assert.Equal(t, int64(10), png.DataSize)
	assert.Empty(t, email.Issues)
}

// TestDecode_EmbeddedMessage decodes an attached message recursively
func TestDecode_EmbeddedMessage(t *testing.T) {
	attach := mapi.AttachmentStorageName(0)
	inner := mapi.StreamName(mapi.NewTag(mapi.PidTagAttachDataObject, mapi.PtypObject))

	f := newFixture(t, newMessage().Unicode(mapi.PidTagSubject, "Outer"))
	f.add(mapitest.New(mapi.KindAttachment).
		Int32(mapi.PidTagAttachMethod, AttachEmbeddedMessage).
		Record(mapi.NewTag(mapi.PidTagAttachDataObject, mapi.PtypObject), [8]byte{0xFF, 0xFF, 0xFF, 0xFF}),
		attach)
	f.add(mapitest.New(mapi.KindEmbedded).Unicode(mapi.PidTagSubject, "Inner"), attach, inner)
	f.add(smtpRecipient(1, "", "inner@example.com"), attach, inner, mapi.RecipientStorageName(0))

	email, err := f.decode()
	require.NoError(t, err)
	assert.Empty(t, email.To, "Embedded recipients stay with the embedded message")
	require.Len(t, email.Attachments, 1)

	emb := email.Attachments[0].Embedded
	require.NotNil(t, emb)
	subject, ok := emb.GetSubject()
	require.True(t, ok)
	assert.Equal(t, "Inner", subject)
	assert.Equal(t, []string{"inner@example.com"}, emb.To)
	assert.Equal(t, "Inner.msg", email.Attachments[0].Name())
}

// TestDecode_EmbeddedMessageMissing records an issue for a missing storage
func TestDecode_EmbeddedMessageMissing(t *testing.T) {
	f := newFixture(t, newMessage())
	f.add(mapitest.New(mapi.KindAttachment).
		Int32(mapi.PidTagAttachMethod, AttachEmbeddedMessage).
		Unicode(mapi.PidTagDisplayName, "Lost"),
		mapi.AttachmentStorageName(0))

	email, err := f.decode()
	require.NoError(t, err)
	require.Len(t, email.Attachments, 1)
	assert.Nil(t, email.Attachments[0].Embedded)
	assert.Equal(t, "Lost", email.Attachments[0].Name())
	assert.True(t, hasIssue(email, ErrMissingPropertyStream))
}

// TestDecode_WithLogger accepts a custom logger
func TestDecode_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := newFixture(t, newMessage().Record(mapi.NewTag(0x8001, mapi.PropType(0x0099)), [8]byte{}))
	_, err := f.decode(WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "dropped property")
	assert.Contains(t, buf.String(), "80010099")
}

// TestParseMSG_NotACompoundFile rejects non-CFB input
func TestParseMSG_NotACompoundFile(t *testing.T) {
	_, err := ParseMSG(bytes.NewReader([]byte("definitely not a compound file")))
	assert.ErrorIs(t, err, ErrContainer)

	_, err = ParseMSGFile("testdata/does-not-exist.msg", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	assert.ErrorIs(t, err, ErrContainer)
}

// TestParseMSGFile_RoundTrip decodes a compound file written to disk
func TestParseMSGFile_RoundTrip(t *testing.T) {
	sent := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	path := t.TempDir() + "/note.msg"
	require.NoError(t, mapitest.Message{
		Class:       "IPM.Note",
		Subject:     "Quarterly numbers",
		Body:        "See attached.",
		FromName:    "Alice",
		FromAddress: "alice@example.com",
		To:          []string{"bob@example.com"},
		Cc:          []string{"carol@example.com"},
		Sent:        sent,
		MessageID:   "<q2@example.com>",
		Attachments: []string{"numbers.xlsx"},
	}.WriteFile(path))

	email, err := ParseMSGFile(path)
	require.NoError(t, err)

	subject, ok := email.GetSubject()
	require.True(t, ok)
	assert.Equal(t, "Quarterly numbers", subject)
	body, _ := email.GetBody()
	assert.Equal(t, "See attached.", body)

	from, ok := email.GetFrom()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", from.Address)

	assert.Equal(t, []string{"bob@example.com"}, email.GetTo())
	assert.Equal(t, []string{"carol@example.com"}, email.GetCc())
	assert.Empty(t, email.GetBcc())

	got, ok := email.GetSentDate()
	require.True(t, ok)
	assert.True(t, got.Equal(sent))

	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "numbers.xlsx", email.Attachments[0].Name())
	assert.Equal(t, AttachByValue, email.Attachments[0].Method)
	assert.Empty(t, email.Issues)
}
