package mapi

import (
	"errors"
	"fmt"
)

// ErrMalformedPropertyStream is a structural failure: the whole property set
// is unusable.
var ErrMalformedPropertyStream = errors.New("malformed property stream")

// Per-record failures. The offending record is dropped and decoding goes on.
var (
	ErrUnsupportedPropertyType = errors.New("unsupported property type")
	ErrMissingAuxiliaryStream  = errors.New("missing auxiliary stream")
	ErrLengthMismatch          = errors.New("auxiliary stream length does not match declared size")
	ErrStringDecode            = errors.New("string decode error")
	ErrTimestampOutOfRange     = errors.New("timestamp out of range")
	ErrDuplicateProperty       = errors.New("duplicate property id")
)

// Issue records one property that was dropped while decoding a set.
type Issue struct {
	Tag PropTag
	Err error
}

func (i Issue) Error() string {
	return fmt.Sprintf("property %s: %v", i.Tag, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }
