package mapi

import (
	"bytes"
	"time"
)

// PropertySet holds the decoded properties of one storage, keyed by
// property ID. Tags keeps the order the records appeared in the stream.
type PropertySet struct {
	header   Header
	codepage int
	order    []PropTag
	records  map[PropID]Record
	values   map[PropID]Value
	issues   []Issue
}

// DecodeOptions tune DecodeSet.
type DecodeOptions struct {
	// Skip leaves matching records unresolved. They stay reachable through
	// Record so their declared sizes can still be reported.
	Skip func(Record) bool
}

// DecodeSet decodes a properties stream of the given kind. Only a malformed
// stream fails; per-record problems end up in Issues. When r.Codepage is zero
// the codepage is taken from the set's own codepage properties.
func DecodeSet(stream []byte, kind StreamKind, r Resolver, opts DecodeOptions) (*PropertySet, error) {
	h, recs, err := DecodePropertyStream(stream, kind)
	if err != nil {
		return nil, err
	}

	if r.Codepage == 0 {
		r.Codepage = codepageFromRecords(recs)
	}

	s := &PropertySet{
		header:   h,
		codepage: r.Codepage,
		order:    make([]PropTag, 0, len(recs)),
		records:  make(map[PropID]Record, len(recs)),
		values:   make(map[PropID]Value, len(recs)),
	}
	for _, rec := range recs {
		id := rec.Tag.ID()
		if _, dup := s.records[id]; dup {
			s.issues = append(s.issues, Issue{Tag: rec.Tag, Err: ErrDuplicateProperty})
			continue
		}
		s.records[id] = rec
		s.order = append(s.order, rec.Tag)

		if opts.Skip != nil && opts.Skip(rec) {
			continue
		}
		v, err := r.Resolve(rec)
		if err != nil {
			s.issues = append(s.issues, Issue{Tag: rec.Tag, Err: err})
			continue
		}
		s.values[id] = v
	}
	return s, nil
}

func codepageFromRecords(recs []Record) int {
	var internet int
	for _, rec := range recs {
		if rec.Tag.Type() != PtypInteger32 {
			continue
		}
		switch rec.Tag.ID() {
		case PidTagMessageCodepage:
			if cp := int(rec.Size()); cp > 0 {
				return cp
			}
		case PidTagInternetCodepage:
			internet = int(rec.Size())
		}
	}
	return internet
}

// Header returns the counters from a message-level stream header.
func (s *PropertySet) Header() Header { return s.header }

// Codepage returns the codepage used for String8 values in this set.
func (s *PropertySet) Codepage() int { return s.codepage }

// Len returns the number of distinct properties in the stream.
func (s *PropertySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Tags returns the property tags in stream order.
func (s *PropertySet) Tags() []PropTag {
	if s == nil {
		return nil
	}
	return append([]PropTag(nil), s.order...)
}

// Issues lists the records dropped while decoding.
func (s *PropertySet) Issues() []Issue {
	if s == nil {
		return nil
	}
	return append([]Issue(nil), s.issues...)
}

// Record returns the raw record for id, resolved or not.
func (s *PropertySet) Record(id PropID) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

// Get returns the resolved value for id.
func (s *PropertySet) Get(id PropID) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[id]
	return v, ok
}

// String returns a String or String8 value.
func (s *PropertySet) String(id PropID) (string, bool) {
	v, ok := s.Get(id)
	if !ok || v.Type.IsMulti() || (v.Type != PtypString && v.Type != PtypString8) {
		return "", false
	}
	return v.Str, true
}

// Int returns an integer-typed value.
func (s *PropertySet) Int(id PropID) (int64, bool) {
	v, ok := s.Get(id)
	if !ok {
		return 0, false
	}
	switch v.Type {
	case PtypInteger16, PtypInteger32, PtypInteger64, PtypErrorCode, PtypCurrency:
		return v.Int, true
	}
	return 0, false
}

// Bool returns a Boolean value.
func (s *PropertySet) Bool(id PropID) (bool, bool) {
	v, ok := s.Get(id)
	if !ok || v.Type != PtypBoolean {
		return false, false
	}
	return v.Bool, true
}

// Time returns a Time or FloatingTime value. An unset timestamp is absent.
func (s *PropertySet) Time(id PropID) (time.Time, bool) {
	v, ok := s.Get(id)
	if !ok || (v.Type != PtypTime && v.Type != PtypFloatingTime) || v.Time.IsZero() {
		return time.Time{}, false
	}
	return v.Time, true
}

// Bytes returns a Binary value.
func (s *PropertySet) Bytes(id PropID) ([]byte, bool) {
	v, ok := s.Get(id)
	if !ok || v.Type != PtypBinary {
		return nil, false
	}
	return v.Bytes, true
}

// Strings returns a multi-valued string property. An empty, non-nil slice
// means the property exists with no elements.
func (s *PropertySet) Strings(id PropID) ([]string, bool) {
	v, ok := s.Get(id)
	if !ok || (v.Type != PtypMultipleString && v.Type != PtypMultipleString8) {
		return nil, false
	}
	return v.Strs, true
}

// Ints returns a multi-valued integer property.
func (s *PropertySet) Ints(id PropID) ([]int64, bool) {
	v, ok := s.Get(id)
	if !ok || !v.Type.IsMulti() {
		return nil, false
	}
	switch v.Type.Base() {
	case PtypInteger16, PtypInteger32, PtypInteger64, PtypCurrency:
		return v.Ints, true
	}
	return nil, false
}

// Text returns a string property, also accepting Binary data holding 8-bit
// text in the set's codepage (PR_BODY_HTML is written either way).
func (s *PropertySet) Text(id PropID) (string, bool) {
	if str, ok := s.String(id); ok {
		return str, true
	}
	b, ok := s.Bytes(id)
	if !ok {
		return "", false
	}
	str, err := DecodeString8(bytes.TrimSuffix(b, []byte{0}), s.codepage, StringsReplace)
	if err != nil {
		return "", false
	}
	return str, true
}
