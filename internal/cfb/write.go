package cfb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"
)

const (
	sectorSize     = 512
	miniSectorSize = 64
	miniCutoff     = 4096
	dirEntrySize   = 128
	headerFATSlots = 109
	maxNameUnits   = 31

	freeSect   uint32 = 0xFFFFFFFF
	endOfChain uint32 = 0xFFFFFFFE
	fatSect    uint32 = 0xFFFFFFFD
	noStream   uint32 = 0xFFFFFFFF
)

// Directory entry object types
const (
	typeStorage byte = 1
	typeStream  byte = 2
	typeRoot    byte = 5
)

var signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

var le = binary.LittleEndian

type dirEntry struct {
	name               string
	typ                byte
	left, right, child uint32
	start, size        uint32
	data               []byte
}

func (e *dirEntry) encode(b []byte) {
	units := utf16.Encode([]rune(e.name))
	for i, u := range units {
		le.PutUint16(b[2*i:], u)
	}
	le.PutUint16(b[64:], uint16((len(units)+1)*2))
	b[66] = e.typ
	b[67] = 1 // black
	le.PutUint32(b[68:], e.left)
	le.PutUint32(b[72:], e.right)
	le.PutUint32(b[76:], e.child)
	le.PutUint32(b[116:], e.start)
	le.PutUint32(b[120:], e.size)
}

func sectorsFor(n, size int) int {
	return (n + size - 1) / size
}

func padTo(b []byte, size int) []byte {
	if rem := len(b) % size; rem != 0 {
		b = append(b, make([]byte, size-rem)...)
	}
	return b
}

// flatten lists the tree in directory order. Siblings are chained through
// their right links, which readers walk in order.
func (m *Memory) flatten() ([]*dirEntry, error) {
	entries := []*dirEntry{{name: rootEntryName, typ: typeRoot, left: noStream, right: noStream, child: noStream}}

	var walk func(n *node, parent int, path []string) error
	walk = func(n *node, parent int, path []string) error {
		prev := -1
		for _, c := range n.children {
			if len(utf16.Encode([]rune(c.name))) > maxNameUnits {
				return fmt.Errorf("entry %s: name longer than %d characters", PathString(Join(path, c.name)), maxNameUnits)
			}
			idx := len(entries)
			e := &dirEntry{name: c.name, typ: typeStream, left: noStream, right: noStream, child: noStream, data: c.data}
			if c.storage {
				e.typ = typeStorage
			}
			entries = append(entries, e)

			if prev < 0 {
				entries[parent].child = uint32(idx)
			} else {
				entries[prev].right = uint32(idx)
			}
			prev = idx

			if c.storage {
				if err := walk(c, idx, Join(path, c.name)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(m.root, 0, nil); err != nil {
		return nil, err
	}
	return entries, nil
}

// WriteTo encodes the container as a version 3 compound file with 512-byte
// sectors. Streams shorter than 4096 bytes go to the mini stream.
func (m *Memory) WriteTo(w io.Writer) (int64, error) {
	entries, err := m.flatten()
	if err != nil {
		return 0, err
	}

	var mini []byte
	var miniFAT []uint32
	var large []*dirEntry
	for _, e := range entries[1:] {
		if e.typ != typeStream {
			continue
		}
		e.size = uint32(len(e.data))
		switch {
		case len(e.data) == 0:
			e.start = endOfChain
		case len(e.data) < miniCutoff:
			e.start = uint32(len(miniFAT))
			n := sectorsFor(len(e.data), miniSectorSize)
			for i := 0; i < n; i++ {
				next := uint32(len(miniFAT) + 1)
				if i == n-1 {
					next = endOfChain
				}
				miniFAT = append(miniFAT, next)
			}
			mini = append(mini, padTo(append([]byte(nil), e.data...), miniSectorSize)...)
		default:
			large = append(large, e)
		}
	}

	dirSectors := sectorsFor(len(entries)*dirEntrySize, sectorSize)
	miniFATSectors := sectorsFor(len(miniFAT)*4, sectorSize)
	miniSectors := sectorsFor(len(mini), sectorSize)
	used := dirSectors + miniFATSectors + miniSectors
	for _, e := range large {
		used += sectorsFor(len(e.data), sectorSize)
	}

	fatSectors := 1
	for fatSectors*sectorSize/4 < used+fatSectors {
		fatSectors++
	}
	if fatSectors > headerFATSlots {
		return 0, fmt.Errorf("container too large: %d FAT sectors", fatSectors)
	}

	fat := make([]uint32, fatSectors*sectorSize/4)
	for i := range fat {
		fat[i] = freeSect
	}
	next := 0
	for i := 0; i < fatSectors; i++ {
		fat[next] = fatSect
		next++
	}
	alloc := func(count int) uint32 {
		if count == 0 {
			return endOfChain
		}
		start := next
		for i := 0; i < count; i++ {
			fat[next] = uint32(next + 1)
			if i == count-1 {
				fat[next] = endOfChain
			}
			next++
		}
		return uint32(start)
	}

	dirStart := alloc(dirSectors)
	miniFATStart := alloc(miniFATSectors)
	entries[0].start = alloc(miniSectors)
	entries[0].size = uint32(len(mini))
	for _, e := range large {
		e.start = alloc(sectorsFor(len(e.data), sectorSize))
	}

	var buf bytes.Buffer

	hdr := make([]byte, sectorSize)
	copy(hdr, signature)
	le.PutUint16(hdr[24:], 0x003E)
	le.PutUint16(hdr[26:], 3)
	le.PutUint16(hdr[28:], 0xFFFE)
	le.PutUint16(hdr[30:], 9)
	le.PutUint16(hdr[32:], 6)
	le.PutUint32(hdr[44:], uint32(fatSectors))
	le.PutUint32(hdr[48:], dirStart)
	le.PutUint32(hdr[56:], miniCutoff)
	le.PutUint32(hdr[60:], miniFATStart)
	le.PutUint32(hdr[64:], uint32(miniFATSectors))
	le.PutUint32(hdr[68:], endOfChain)
	for i := 0; i < headerFATSlots; i++ {
		slot := freeSect
		if i < fatSectors {
			slot = uint32(i)
		}
		le.PutUint32(hdr[76+4*i:], slot)
	}
	buf.Write(hdr)

	fatBytes := make([]byte, len(fat)*4)
	for i, v := range fat {
		le.PutUint32(fatBytes[4*i:], v)
	}
	buf.Write(fatBytes)

	dir := make([]byte, dirSectors*sectorSize)
	for i := 0; i < len(dir)/dirEntrySize; i++ {
		slot := dir[i*dirEntrySize : (i+1)*dirEntrySize]
		if i < len(entries) {
			entries[i].encode(slot)
			continue
		}
		// Unused slots keep an empty name and no links
		le.PutUint32(slot[68:], noStream)
		le.PutUint32(slot[72:], noStream)
		le.PutUint32(slot[76:], noStream)
	}
	buf.Write(dir)

	if miniFATSectors > 0 {
		table := make([]byte, miniFATSectors*sectorSize)
		for i := 0; i < len(table)/4; i++ {
			v := freeSect
			if i < len(miniFAT) {
				v = miniFAT[i]
			}
			le.PutUint32(table[4*i:], v)
		}
		buf.Write(table)
	}

	buf.Write(padTo(mini, sectorSize))
	for _, e := range large {
		buf.Write(padTo(append([]byte(nil), e.data...), sectorSize))
	}

	return buf.WriteTo(w)
}
