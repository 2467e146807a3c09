package mapi

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

func init() {
	// Names that Outlook codepages map to but go-message does not register
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// DefaultCodepage applies to String8 values when the message names none.
const DefaultCodepage = 1252

// StringMode controls what happens to text that fails to decode.
type StringMode int

const (
	// StringsReject fails the property with ErrStringDecode.
	StringsReject StringMode = iota
	// StringsReplace substitutes U+FFFD for undecodable units.
	StringsReplace
)

var codepageEncodings = map[int]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	10000: charmap.Macintosh,
	20127: charmap.ISO8859_1,
	20866: charmap.KOI8R,
	21866: charmap.KOI8U,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28593: charmap.ISO8859_3,
	28594: charmap.ISO8859_4,
	28595: charmap.ISO8859_5,
	28596: charmap.ISO8859_6,
	28597: charmap.ISO8859_7,
	28598: charmap.ISO8859_8,
	28599: charmap.ISO8859_9,
	28603: charmap.ISO8859_13,
	28605: charmap.ISO8859_15,
	65001: unicode.UTF8,
}

// codepageNames covers multi-byte codepages looked up by IANA name.
var codepageNames = map[int]string{
	932:   "Shift_JIS",
	936:   "GBK",
	949:   "EUC-KR",
	950:   "Big5",
	20932: "EUC-JP",
	50220: "ISO-2022-JP",
	50221: "ISO-2022-JP",
	50222: "ISO-2022-JP",
	51932: "EUC-JP",
	51949: "EUC-KR",
	52936: "HZ-GB-2312",
	54936: "GB18030",
}

// CodepageName returns the charset name for a Windows codepage.
func CodepageName(cp int) string {
	if name, ok := codepageNames[cp]; ok {
		return name
	}
	switch {
	case cp == 65001:
		return "utf-8"
	case cp >= 28591 && cp <= 28605:
		return fmt.Sprintf("iso-8859-%d", cp-28590)
	}
	return fmt.Sprintf("windows-%d", cp)
}

func codepageEncoding(cp int) (encoding.Encoding, bool) {
	if enc, ok := codepageEncodings[cp]; ok {
		return enc, true
	}
	enc, err := ianaindex.IANA.Encoding(CodepageName(cp))
	if err != nil || enc == nil {
		return nil, false
	}
	return enc, true
}

// DecodeString8 decodes 8-bit text in codepage cp. Unknown codepages fall
// back to go-message's charset table. Terminators are left to the caller.
func DecodeString8(b []byte, cp int, mode StringMode) (string, error) {
	if cp == 0 {
		cp = DefaultCodepage
	}
	var out []byte
	if cp == 1252 {
		out = decodeWindows1252(b)
	} else if enc, ok := codepageEncoding(cp); ok {
		decoded, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("%w: codepage %d: %v", ErrStringDecode, cp, err)
		}
		out = decoded
	} else {
		r, err := charset.Reader(CodepageName(cp), bytes.NewReader(b))
		if err != nil {
			return "", fmt.Errorf("%w: unknown codepage %d", ErrStringDecode, cp)
		}
		if out, err = io.ReadAll(r); err != nil {
			return "", fmt.Errorf("%w: codepage %d: %v", ErrStringDecode, cp, err)
		}
	}

	if mode == StringsReject {
		// Single- and multi-byte decoders emit U+FFFD for unmapped input;
		// UTF-8 passes it through, so validate the source instead.
		if cp == 65001 {
			if !utf8.Valid(b) {
				return "", fmt.Errorf("%w: invalid UTF-8", ErrStringDecode)
			}
		} else if bytes.ContainsRune(out, utf8.RuneError) {
			return "", fmt.Errorf("%w: byte not mapped in codepage %d", ErrStringDecode, cp)
		}
	}
	return string(out), nil
}

// decodeWindows1252 follows Windows' own table, which maps the five bytes
// charmap.Windows1252 leaves undefined (0x81, 0x8D, 0x8F, 0x90, 0x9D) to the
// C1 controls of the same value.
func decodeWindows1252(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		r := charmap.Windows1252.DecodeByte(c)
		if r == utf8.RuneError {
			r = rune(c)
		}
		out = utf8.AppendRune(out, r)
	}
	return out
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeUTF16 decodes UTF-16LE text. Unpaired surrogates and odd lengths are
// errors in StringsReject mode. Terminators are left to the caller.
func DecodeUTF16(b []byte, mode StringMode) (string, error) {
	if mode == StringsReject {
		if len(b)%2 != 0 {
			return "", fmt.Errorf("%w: odd UTF-16 length %d", ErrStringDecode, len(b))
		}
		if i := invalidUTF16(b); i >= 0 {
			return "", fmt.Errorf("%w: unpaired surrogate at byte %d", ErrStringDecode, i)
		}
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStringDecode, err)
	}
	return string(out), nil
}

// TrimTerminator drops the single NUL terminator of a string stream of type t
// when the writer stored it. A stream shorter than its declared size already
// omits it, so its trailing NULs are part of the value.
func TrimTerminator(t PropType, declared uint32, data []byte) []byte {
	if int64(declared) != int64(len(data)) {
		return data
	}
	switch t.Base() {
	case PtypString:
		if n := len(data); n >= 2 && n%2 == 0 && data[n-2] == 0 && data[n-1] == 0 {
			return data[:n-2]
		}
	case PtypString8:
		if n := len(data); n >= 1 && data[n-1] == 0 {
			return data[:n-1]
		}
	}
	return data
}

// EncodeUTF16 encodes s as UTF-16LE without a terminator.
func EncodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	return b
}

// invalidUTF16 returns the byte offset of the first unpaired surrogate, or -1.
func invalidUTF16(b []byte) int {
	for i := 0; i+1 < len(b); i += 2 {
		u := rune(b[i]) | rune(b[i+1])<<8
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+3 >= len(b) {
				return i
			}
			next := rune(b[i+2]) | rune(b[i+3])<<8
			if next < 0xDC00 || next > 0xDFFF {
				return i
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return i
		}
	}
	return -1
}
