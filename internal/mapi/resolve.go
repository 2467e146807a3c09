package mapi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/felo/msg-viewer/internal/cfb"
	"github.com/google/uuid"
)

// StreamSource reads auxiliary streams of the storage being decoded by name.
type StreamSource interface {
	ReadStream(name string) ([]byte, error)
}

// StreamSourceFunc adapts a function to StreamSource.
type StreamSourceFunc func(name string) ([]byte, error)

// ReadStream implements StreamSource.
func (f StreamSourceFunc) ReadStream(name string) ([]byte, error) { return f(name) }

// StorageSource reads streams from the storage at path in acc.
func StorageSource(acc cfb.Accessor, path []string) StreamSource {
	return StreamSourceFunc(func(name string) ([]byte, error) {
		return acc.ReadStream(cfb.Join(path, name)...)
	})
}

// Resolver turns records into values. It is stateless between calls.
type Resolver struct {
	Source   StreamSource
	Codepage int
	Strings  StringMode
}

// Resolve decodes the value of rec. Errors are per record and wrap one of
// the per-record sentinels.
func (r *Resolver) Resolve(rec Record) (Value, error) {
	t := rec.Tag.Type()
	if !t.Known() {
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedPropertyType, t)
	}
	if t.Inline() {
		return resolveInline(rec)
	}
	if t == PtypObject {
		return Value{Type: t, Int: int64(rec.Size())}, nil
	}
	if t.IsMulti() {
		if t.elemSize() > 0 {
			return r.resolveMultiFixed(rec)
		}
		return r.resolveMultiVariable(rec)
	}

	data, err := r.read(StreamName(rec.Tag))
	if err != nil {
		return Value{}, err
	}
	if err := checkLength(t, rec.Size(), len(data)); err != nil {
		return Value{}, err
	}
	return r.decodeVariable(t, TrimTerminator(t, rec.Size(), data))
}

func (r *Resolver) read(name string) ([]byte, error) {
	if r.Source == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingAuxiliaryStream, name)
	}
	data, err := r.Source.ReadStream(name)
	if errors.Is(err, cfb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMissingAuxiliaryStream, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// checkLength compares a stream's length with the size declared in its
// record. Writers count the string terminator in the declared size whether or
// not they store it, so one terminator of slack is accepted for strings.
func checkLength(t PropType, declared uint32, actual int) error {
	if int64(declared) == int64(actual) {
		return nil
	}
	switch t.Base() {
	case PtypString:
		if int64(declared) == int64(actual)+2 {
			return nil
		}
	case PtypString8:
		if int64(declared) == int64(actual)+1 {
			return nil
		}
	}
	return fmt.Errorf("%w: declared %d, stream has %d", ErrLengthMismatch, declared, actual)
}

func resolveInline(rec Record) (Value, error) {
	t := rec.Tag.Type()
	p := rec.Payload[:]
	v := Value{Type: t}
	switch t {
	case PtypInteger16:
		v.Int = int64(int16(binary.LittleEndian.Uint16(p)))
	case PtypInteger32:
		v.Int = int64(int32(binary.LittleEndian.Uint32(p)))
	case PtypErrorCode:
		v.Int = int64(binary.LittleEndian.Uint32(p))
	case PtypBoolean:
		v.Bool = binary.LittleEndian.Uint16(p) != 0
	case PtypInteger64, PtypCurrency:
		v.Int = int64(binary.LittleEndian.Uint64(p))
	case PtypFloating32:
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case PtypFloating64:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(p))
	case PtypFloatingTime:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(p))
		tm, err := OLEDateToTime(v.Float)
		if err != nil {
			return Value{}, err
		}
		v.Time = tm
	case PtypTime:
		tm, err := FiletimeToTime(binary.LittleEndian.Uint64(p))
		if err != nil {
			return Value{}, err
		}
		v.Time = tm
	default:
		return Value{}, fmt.Errorf("%w: %s is not inline", ErrUnsupportedPropertyType, t)
	}
	return v, nil
}

// decodeVariable decodes one single-valued variable-length element.
func (r *Resolver) decodeVariable(t PropType, data []byte) (Value, error) {
	v := Value{Type: t}
	switch t.Base() {
	case PtypString:
		s, err := DecodeUTF16(data, r.Strings)
		if err != nil {
			return Value{}, err
		}
		v.Str = s
	case PtypString8:
		s, err := DecodeString8(data, r.Codepage, r.Strings)
		if err != nil {
			return Value{}, err
		}
		v.Str = s
	case PtypBinary:
		v.Bytes = append([]byte{}, data...)
	case PtypGUID:
		if len(data) != 16 {
			return Value{}, fmt.Errorf("%w: GUID of %d bytes", ErrLengthMismatch, len(data))
		}
		v.GUID = guidFromBytes(data)
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedPropertyType, t)
	}
	return v, nil
}

// resolveMultiFixed decodes a packed array of fixed-width elements.
func (r *Resolver) resolveMultiFixed(rec Record) (Value, error) {
	t := rec.Tag.Type()
	data, err := r.read(StreamName(rec.Tag))
	if err != nil {
		return Value{}, err
	}
	if err := checkLength(t, rec.Size(), len(data)); err != nil {
		return Value{}, err
	}
	size := t.elemSize()
	if len(data)%size != 0 {
		return Value{}, fmt.Errorf("%w: %d bytes is not a multiple of element size %d", ErrLengthMismatch, len(data), size)
	}

	n := len(data) / size
	v := Value{Type: t}
	switch t.Base() {
	case PtypInteger16, PtypInteger32, PtypInteger64, PtypCurrency:
		v.Ints = make([]int64, 0, n)
	case PtypFloating32, PtypFloating64, PtypFloatingTime:
		v.Floats = make([]float64, 0, n)
	case PtypTime:
		v.Times = make([]time.Time, 0, n)
	case PtypGUID:
		v.GUIDs = make([]uuid.UUID, 0, n)
	}

	for off := 0; off < len(data); off += size {
		e := data[off : off+size]
		switch t.Base() {
		case PtypInteger16:
			v.Ints = append(v.Ints, int64(int16(binary.LittleEndian.Uint16(e))))
		case PtypInteger32:
			v.Ints = append(v.Ints, int64(int32(binary.LittleEndian.Uint32(e))))
		case PtypInteger64, PtypCurrency:
			v.Ints = append(v.Ints, int64(binary.LittleEndian.Uint64(e)))
		case PtypFloating32:
			v.Floats = append(v.Floats, float64(math.Float32frombits(binary.LittleEndian.Uint32(e))))
		case PtypFloating64, PtypFloatingTime:
			v.Floats = append(v.Floats, math.Float64frombits(binary.LittleEndian.Uint64(e)))
		case PtypTime:
			// Unset or out-of-range elements keep their slot as the zero time
			tm, _ := FiletimeToTime(binary.LittleEndian.Uint64(e))
			v.Times = append(v.Times, tm)
		case PtypGUID:
			v.GUIDs = append(v.GUIDs, guidFromBytes(e))
		}
	}
	return v, nil
}

// resolveMultiVariable reads the length table of a variable-length
// multi-valued property, then one element stream per entry in table order.
func (r *Resolver) resolveMultiVariable(rec Record) (Value, error) {
	t := rec.Tag.Type()
	table, err := r.read(StreamName(rec.Tag))
	if err != nil {
		return Value{}, err
	}
	if err := checkLength(PtypBinary, rec.Size(), len(table)); err != nil {
		return Value{}, err
	}

	// Binary entries carry four reserved bytes after each length
	entry := 4
	if t.Base() == PtypBinary {
		entry = 8
	}
	if len(table)%entry != 0 {
		return Value{}, fmt.Errorf("%w: length table of %d bytes", ErrLengthMismatch, len(table))
	}

	n := len(table) / entry
	v := Value{Type: t}
	if t.Base() == PtypBinary {
		v.Binaries = make([][]byte, 0, n)
	} else {
		v.Strs = make([]string, 0, n)
	}
	for i := 0; i < n; i++ {
		declared := binary.LittleEndian.Uint32(table[i*entry:])
		data, err := r.read(ElementStreamName(rec.Tag, i))
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		if err := checkLength(t, declared, len(data)); err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		elem, err := r.decodeVariable(t.Base(), TrimTerminator(t, declared, data))
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		if t.Base() == PtypBinary {
			v.Binaries = append(v.Binaries, elem.Bytes)
		} else {
			v.Strs = append(v.Strs, elem.Str)
		}
	}
	return v, nil
}
