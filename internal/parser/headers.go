package parser

import (
	"bufio"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// parseTransportHeaders parses PR_TRANSPORT_MESSAGE_HEADERS. Malformed
// blocks yield an empty header.
func parseTransportHeaders(raw string) mail.Header {
	block := strings.TrimRight(raw, "\r\n\x00 \t") + "\r\n\r\n"
	h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(block)))
	if err != nil {
		return mail.Header{}
	}
	return mail.Header{Header: message.Header{Header: h}}
}

// applyHeaders fills fields the property set did not provide from the
// message's original Internet headers.
func applyHeaders(email *Email, h mail.Header) {
	if email.SentDate == nil && h.Has("Date") {
		if t, err := h.Date(); err == nil && !t.IsZero() {
			t = t.UTC()
			email.SentDate = &t
		}
	}
	if email.MessageID == nil {
		if id, err := h.MessageID(); err == nil && id != "" {
			id = "<" + id + ">"
			email.MessageID = &id
		}
	}
	if email.InReplyTo == nil {
		if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
			id := "<" + ids[0] + ">"
			email.InReplyTo = &id
		}
	}
	if len(email.References) == 0 {
		if ids, err := h.MsgIDList("References"); err == nil {
			for _, id := range ids {
				email.References = append(email.References, "<"+id+">")
			}
		}
	}
	if email.From == nil {
		if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
			email.From = &Mailbox{Name: addrs[0].Name, Address: addrs[0].Address}
		}
	}
}
