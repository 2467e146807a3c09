// Package rtf decompresses PR_RTF_COMPRESSED bodies (MS-OXRTFCP) and recovers
// the HTML that Outlook encapsulates in RTF (MS-OXRTFEX).
package rtf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	magicCompressed   = 0x75465A4C // "LZFu"
	magicUncompressed = 0x414C454D // "MELA"

	headerSize = 16
	dictSize   = 4096

	// rawSize comes from the file; cap the allocation it drives.
	maxRawSize = 64 << 20
)

// The dictionary starts pre-filled with this 207-byte prefix.
var seedDict = []byte(`{\rtf1\ansi\mac\deff0\deftab720{\fonttbl;}` +
	`{\f0\fnil \froman \fswiss \fmodern \fscript ` +
	`\fdecor MS Sans SerifSymbolArialTimes New Roman` +
	"Courier{\\colortbl\\red0\\green0\\blue0\r\n\\par " +
	`\pard\plain\f0\fs20\b\i\u\tab\tx`)

var (
	ErrFormat   = errors.New("not a compressed RTF stream")
	ErrChecksum = errors.New("compressed RTF checksum mismatch")
)

// Decompress returns the RTF held in a PR_RTF_COMPRESSED value.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFormat, len(data))
	}
	compSize := int(binary.LittleEndian.Uint32(data[0:4]))
	rawSize := int(binary.LittleEndian.Uint32(data[4:8]))
	magic := binary.LittleEndian.Uint32(data[8:12])
	crc := binary.LittleEndian.Uint32(data[12:16])

	// compSize counts everything after its own four bytes
	end := compSize + 4
	if end > len(data) || end < headerSize {
		end = len(data)
	}
	body := data[headerSize:end]

	switch magic {
	case magicUncompressed:
		if rawSize < len(body) {
			body = body[:rawSize]
		}
		return append([]byte(nil), body...), nil
	case magicCompressed:
		if sum := checksum(body); sum != crc {
			return nil, fmt.Errorf("%w: header %08X, computed %08X", ErrChecksum, crc, sum)
		}
		return inflate(body, rawSize), nil
	}
	return nil, fmt.Errorf("%w: magic %08X", ErrFormat, magic)
}

// checksum is CRC-32 with a zero initial value and no final inversion.
func checksum(b []byte) uint32 {
	return ^crc32.Update(^uint32(0), crc32.IEEETable, b)
}

// inflate runs the LZ77 loop. Each control byte covers eight tokens, LSB
// first: a clear bit is a literal byte, a set bit a 12-bit offset and 4-bit
// length into the dictionary. A reference to the current write position ends
// the stream.
func inflate(in []byte, rawSize int) []byte {
	var dict [dictSize]byte
	copy(dict[:], seedDict)
	wpos := len(seedDict)

	out := make([]byte, 0, min(rawSize, maxRawSize))
	put := func(b byte) {
		out = append(out, b)
		dict[wpos] = b
		wpos = (wpos + 1) % dictSize
	}

	pos := 0
	for pos < len(in) && len(out) < rawSize {
		control := in[pos]
		pos++
		for bit := 0; bit < 8 && pos < len(in) && len(out) < rawSize; bit++ {
			if control&(1<<bit) == 0 {
				put(in[pos])
				pos++
				continue
			}
			if pos+1 >= len(in) {
				return out
			}
			ref := int(binary.BigEndian.Uint16(in[pos:]))
			pos += 2
			offset, length := ref>>4, ref&0x0F+2
			if offset == wpos {
				return out
			}
			for i := 0; i < length && len(out) < rawSize; i++ {
				put(dict[(offset+i)%dictSize])
			}
		}
	}
	return out
}
