package mapi

import (
	"time"

	"github.com/google/uuid"
)

// Value is a decoded property value. Type selects the populated field:
//
//	Boolean                               Bool
//	Integer16/32/64, ErrorCode, Currency  Int
//	Object                                Int (declared size of the sub-storage)
//	Floating32/64                         Float
//	FloatingTime                          Float (days since 1899-12-30) and Time
//	Time                                  Time (zero when absent)
//	String8, String                       Str
//	Binary                                Bytes
//	GUID                                  GUID
//	Multiple integer types                Ints
//	Multiple floating types               Floats
//	MultipleTime                          Times
//	MultipleString8, MultipleString       Strs
//	MultipleBinary                        Binaries
//	MultipleGUID                          GUIDs
//
// Multi-valued fields are non-nil once resolved, so an empty list is
// distinguishable from an absent property.
type Value struct {
	Type PropType

	Bool  bool
	Int   int64
	Float float64
	Time  time.Time
	Str   string
	Bytes []byte
	GUID  uuid.UUID

	Ints     []int64
	Floats   []float64
	Times    []time.Time
	Strs     []string
	Binaries [][]byte
	GUIDs    []uuid.UUID
}

// Len returns the element count of a multi-valued value, or 1 for a scalar.
func (v Value) Len() int {
	if !v.Type.IsMulti() {
		return 1
	}
	switch v.Type.Base() {
	case PtypInteger16, PtypInteger32, PtypInteger64, PtypCurrency:
		return len(v.Ints)
	case PtypFloating32, PtypFloating64, PtypFloatingTime:
		return len(v.Floats)
	case PtypTime:
		return len(v.Times)
	case PtypString8, PtypString:
		return len(v.Strs)
	case PtypBinary:
		return len(v.Binaries)
	case PtypGUID:
		return len(v.GUIDs)
	}
	return 0
}

// guidFromBytes converts the on-disk GUID layout (first three fields little
// endian) to the RFC 4122 byte order uuid.UUID uses.
func guidFromBytes(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}
