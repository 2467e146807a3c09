package mapi

import (
	"encoding/binary"
	"fmt"
)

// RecordSize is the width of one property entry in a properties stream.
const RecordSize = 16

// Record is one fixed-width property entry.
type Record struct {
	Tag   PropTag
	Flags uint32
	// Payload holds the value for inline types. For every other type the
	// first four bytes are the declared byte length of the auxiliary stream.
	Payload [8]byte
}

// Inline reports whether the value sits in Payload.
func (r Record) Inline() bool { return r.Tag.Type().Inline() }

// Size returns the declared auxiliary stream length.
func (r Record) Size() uint32 { return binary.LittleEndian.Uint32(r.Payload[0:4]) }

// Uint64 returns the raw payload as a little-endian integer.
func (r Record) Uint64() uint64 { return binary.LittleEndian.Uint64(r.Payload[:]) }

// DecodeRecords splits b into 16-byte property records, keeping stream order.
// A trailing partial record is an error rather than being dropped.
func DecodeRecords(b []byte) ([]Record, error) {
	if len(b)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPropertyStream, len(b), RecordSize)
	}
	recs := make([]Record, 0, len(b)/RecordSize)
	for off := 0; off < len(b); off += RecordSize {
		var r Record
		// The tag is one little-endian u32, so the type code precedes the ID on disk
		r.Tag = PropTag(binary.LittleEndian.Uint32(b[off : off+4]))
		r.Flags = binary.LittleEndian.Uint32(b[off+4 : off+8])
		copy(r.Payload[:], b[off+8:off+16])
		recs = append(recs, r)
	}
	return recs, nil
}

// StreamKind selects the header that precedes the records of a properties stream.
type StreamKind int

const (
	KindMessage StreamKind = iota
	KindEmbedded
	KindRecipient
	KindAttachment
)

// HeaderSize is the number of bytes before the first record.
func (k StreamKind) HeaderSize() int {
	switch k {
	case KindMessage:
		return 32
	case KindEmbedded:
		return 24
	default:
		return 8
	}
}

func (k StreamKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindEmbedded:
		return "embedded message"
	case KindRecipient:
		return "recipient"
	case KindAttachment:
		return "attachment"
	}
	return fmt.Sprintf("StreamKind(%d)", int(k))
}

// Header carries the counters stored in a message-level properties stream.
// Recipient and attachment streams leave it zero.
type Header struct {
	NextRecipientID  uint32
	NextAttachmentID uint32
	RecipientCount   uint32
	AttachmentCount  uint32
}

// DecodePropertyStream strips the header for kind and decodes the records
// that follow it.
func DecodePropertyStream(b []byte, kind StreamKind) (Header, []Record, error) {
	var h Header
	n := kind.HeaderSize()
	if len(b) < n {
		return h, nil, fmt.Errorf("%w: %s stream is %d bytes, header needs %d", ErrMalformedPropertyStream, kind, len(b), n)
	}
	if kind == KindMessage || kind == KindEmbedded {
		h.NextRecipientID = binary.LittleEndian.Uint32(b[8:12])
		h.NextAttachmentID = binary.LittleEndian.Uint32(b[12:16])
		h.RecipientCount = binary.LittleEndian.Uint32(b[16:20])
		h.AttachmentCount = binary.LittleEndian.Uint32(b[20:24])
	}
	recs, err := DecodeRecords(b[n:])
	if err != nil {
		return h, nil, err
	}
	return h, recs, nil
}
