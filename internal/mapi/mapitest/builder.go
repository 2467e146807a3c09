// Package mapitest builds property streams and their auxiliary streams for
// tests, writing them into an in-memory container.
package mapitest

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/felo/msg-viewer/internal/mapi"
)

type stream struct {
	name string
	data []byte
}

// Props accumulates records in the order they are added.
type Props struct {
	kind    mapi.StreamKind
	header  mapi.Header
	records []mapi.Record
	streams []stream
}

// New starts a property set for a storage of the given kind.
func New(kind mapi.StreamKind) *Props {
	return &Props{kind: kind}
}

// Header sets the counters written into a message-level header.
func (p *Props) Header(h mapi.Header) *Props {
	p.header = h
	return p
}

// Record appends a raw record without any auxiliary stream.
func (p *Props) Record(tag mapi.PropTag, payload [8]byte) *Props {
	p.records = append(p.records, mapi.Record{Tag: tag, Flags: 0x6, Payload: payload})
	return p
}

// Stream adds an auxiliary stream verbatim.
func (p *Props) Stream(name string, data []byte) *Props {
	p.streams = append(p.streams, stream{name: name, data: data})
	return p
}

func (p *Props) inline(id mapi.PropID, t mapi.PropType, v uint64) *Props {
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], v)
	return p.Record(mapi.NewTag(id, t), payload)
}

func (p *Props) sized(id mapi.PropID, t mapi.PropType, declared int, data []byte) *Props {
	var payload [8]byte
	binary.LittleEndian.PutUint32(payload[:4], uint32(declared))
	tag := mapi.NewTag(id, t)
	p.Record(tag, payload)
	return p.Stream(mapi.StreamName(tag), data)
}

// Int16 adds an inline Integer16.
func (p *Props) Int16(id mapi.PropID, v int16) *Props {
	return p.inline(id, mapi.PtypInteger16, uint64(uint16(v)))
}

// Int32 adds an inline Integer32.
func (p *Props) Int32(id mapi.PropID, v int32) *Props {
	return p.inline(id, mapi.PtypInteger32, uint64(uint32(v)))
}

// Int64 adds an inline Integer64.
func (p *Props) Int64(id mapi.PropID, v int64) *Props {
	return p.inline(id, mapi.PtypInteger64, uint64(v))
}

// Bool adds an inline Boolean.
func (p *Props) Bool(id mapi.PropID, v bool) *Props {
	var n uint64
	if v {
		n = 1
	}
	return p.inline(id, mapi.PtypBoolean, n)
}

// Float64 adds an inline Floating64.
func (p *Props) Float64(id mapi.PropID, v float64) *Props {
	return p.inline(id, mapi.PtypFloating64, math.Float64bits(v))
}

// Filetime adds an inline Time with a raw tick count.
func (p *Props) Filetime(id mapi.PropID, ticks uint64) *Props {
	return p.inline(id, mapi.PtypTime, ticks)
}

// Time adds an inline Time.
func (p *Props) Time(id mapi.PropID, t time.Time) *Props {
	return p.Filetime(id, mapi.TimeToFiletime(t))
}

// Unicode adds a String property. The declared size counts the two-byte
// terminator, which is not stored, as Outlook writes it.
func (p *Props) Unicode(id mapi.PropID, s string) *Props {
	data := mapi.EncodeUTF16(s)
	return p.sized(id, mapi.PtypString, len(data)+2, data)
}

// String8 adds an 8-bit String8 property from already-encoded bytes.
func (p *Props) String8(id mapi.PropID, b []byte) *Props {
	return p.sized(id, mapi.PtypString8, len(b)+1, b)
}

// Binary adds a Binary property.
func (p *Props) Binary(id mapi.PropID, b []byte) *Props {
	return p.sized(id, mapi.PtypBinary, len(b), b)
}

// Sized adds a stream-referenced property with an explicit declared size.
func (p *Props) Sized(id mapi.PropID, t mapi.PropType, declared int, data []byte) *Props {
	return p.sized(id, t, declared, data)
}

// MultiInt32 adds a MultipleInteger32 property.
func (p *Props) MultiInt32(id mapi.PropID, vs []int32) *Props {
	data := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return p.sized(id, mapi.PtypMultipleInteger32, len(data), data)
}

// MultiUnicode adds a MultipleString property: a length table plus one
// element stream per value.
func (p *Props) MultiUnicode(id mapi.PropID, vs []string) *Props {
	tag := mapi.NewTag(id, mapi.PtypMultipleString)
	table := make([]byte, 4*len(vs))
	for i, v := range vs {
		data := mapi.EncodeUTF16(v)
		binary.LittleEndian.PutUint32(table[4*i:], uint32(len(data)+2))
		p.Stream(mapi.ElementStreamName(tag, i), data)
	}
	return p.sized(id, mapi.PtypMultipleString, len(table), table)
}

// MultiBinary adds a MultipleBinary property.
func (p *Props) MultiBinary(id mapi.PropID, vs [][]byte) *Props {
	tag := mapi.NewTag(id, mapi.PtypMultipleBinary)
	table := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(table[8*i:], uint32(len(v)))
		p.Stream(mapi.ElementStreamName(tag, i), v)
	}
	return p.sized(id, mapi.PtypMultipleBinary, len(table), table)
}

// Bytes renders the properties stream: header followed by the records.
func (p *Props) Bytes() []byte {
	hs := p.kind.HeaderSize()
	b := make([]byte, hs+mapi.RecordSize*len(p.records))
	if p.kind == mapi.KindMessage || p.kind == mapi.KindEmbedded {
		binary.LittleEndian.PutUint32(b[8:], p.header.NextRecipientID)
		binary.LittleEndian.PutUint32(b[12:], p.header.NextAttachmentID)
		binary.LittleEndian.PutUint32(b[16:], p.header.RecipientCount)
		binary.LittleEndian.PutUint32(b[20:], p.header.AttachmentCount)
	}
	for i, r := range p.records {
		off := hs + mapi.RecordSize*i
		binary.LittleEndian.PutUint32(b[off:], uint32(r.Tag))
		binary.LittleEndian.PutUint32(b[off+4:], r.Flags)
		copy(b[off+8:off+16], r.Payload[:])
	}
	return b
}

// Source returns the auxiliary streams as a StreamSource, for exercising a
// Resolver without a container.
func (p *Props) Source() mapi.StreamSource {
	m := cfb.NewMemory()
	for _, s := range p.streams {
		_ = m.AddStream(s.data, s.name)
	}
	return mapi.StorageSource(m, nil)
}

// WriteTo stores the properties stream and every auxiliary stream under path.
func (p *Props) WriteTo(m *cfb.Memory, path ...string) error {
	if err := m.AddStream(p.Bytes(), cfb.Join(path, mapi.PropertiesStream)...); err != nil {
		return err
	}
	for _, s := range p.streams {
		if err := m.AddStream(s.data, cfb.Join(path, s.name)...); err != nil {
			return err
		}
	}
	return nil
}
