package rtf

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/felo/msg-viewer/internal/mapi"
)

// Destinations whose content is never part of the document text.
var skippedDestinations = map[string]bool{
	"fonttbl":    true,
	"colortbl":   true,
	"stylesheet": true,
	"info":       true,
	"pict":       true,
	"header":     true,
	"footer":     true,
	"generator":  true,
}

// IsEncapsulatedHTML reports whether rtf was generated from an HTML body.
func IsEncapsulatedHTML(rtf []byte) bool {
	head := rtf
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte(`\fromhtml`))
}

// ExtractHTML recovers the original HTML from RTF produced with \fromhtml1.
// Markup comes from {\*\htmltag} groups, text from the runs between them;
// anything inside \htmlrtf ... \htmlrtf0 exists only for RTF readers and is
// dropped. It reports false when rtf does not encapsulate HTML.
func ExtractHTML(rtf []byte) (string, bool) {
	if !IsEncapsulatedHTML(rtf) {
		return "", false
	}
	x := &extractor{src: rtf, codepage: mapi.DefaultCodepage, uc: 1}
	x.run()
	return strings.TrimSpace(x.out.String()), true
}

type group struct {
	skip    bool
	htmltag bool
	fresh   bool // no token seen yet, so a control word here names the destination
}

type extractor struct {
	src []byte
	pos int

	stack   []group
	htmlrtf bool
	seenTag bool

	codepage int
	uc       int
	pendSkip int

	highSurrogate rune

	pending []byte
	out     strings.Builder
}

func (x *extractor) top() *group {
	if len(x.stack) == 0 {
		x.stack = append(x.stack, group{})
	}
	return &x.stack[len(x.stack)-1]
}

func (x *extractor) emitting() bool {
	g := x.top()
	if g.skip {
		return false
	}
	return g.htmltag || (x.seenTag && !x.htmlrtf)
}

// emitByte queues a byte in the document codepage.
func (x *extractor) emitByte(b byte) {
	if x.pendSkip > 0 {
		x.pendSkip--
		return
	}
	if x.emitting() {
		x.pending = append(x.pending, b)
	}
}

func (x *extractor) emitString(s string) {
	if !x.emitting() {
		return
	}
	x.flush()
	x.out.WriteString(s)
}

func (x *extractor) flush() {
	if len(x.pending) == 0 {
		return
	}
	s, err := mapi.DecodeString8(x.pending, x.codepage, mapi.StringsReplace)
	if err != nil {
		s = string(x.pending)
	}
	x.out.WriteString(s)
	x.pending = x.pending[:0]
}

func (x *extractor) run() {
	for x.pos < len(x.src) {
		c := x.src[x.pos]
		switch c {
		case '{':
			x.openGroup()
		case '}':
			x.pos++
			if len(x.stack) > 0 {
				x.stack = x.stack[:len(x.stack)-1]
			}
		case '\\':
			x.control()
		case '\r', '\n':
			x.pos++
		default:
			x.pos++
			x.top().fresh = false
			x.emitByte(c)
		}
	}
	x.flush()
}

func (x *extractor) openGroup() {
	parent := *x.top()
	g := group{skip: parent.skip, htmltag: parent.htmltag, fresh: true}
	x.pos++

	rest := x.src[x.pos:]
	switch {
	case bytes.HasPrefix(rest, []byte(`\*\htmltag`)):
		x.pos += len(`\*\htmltag`)
		for x.pos < len(x.src) && isDigit(x.src[x.pos]) {
			x.pos++
		}
		if x.pos < len(x.src) && x.src[x.pos] == ' ' {
			x.pos++
		}
		g.htmltag = true
		g.fresh = false
		x.seenTag = true
	case bytes.HasPrefix(rest, []byte(`\*`)):
		x.pos += 2
		g.skip = true
	}
	x.stack = append(x.stack, g)
}

// control consumes one control word or control symbol at x.pos.
func (x *extractor) control() {
	x.pos++
	if x.pos >= len(x.src) {
		return
	}
	c := x.src[x.pos]
	if !isAlpha(c) {
		x.pos++
		x.symbol(c)
		return
	}

	start := x.pos
	for x.pos < len(x.src) && isAlpha(x.src[x.pos]) {
		x.pos++
	}
	word := string(x.src[start:x.pos])

	param, hasParam := 0, false
	pstart := x.pos
	if x.pos < len(x.src) && x.src[x.pos] == '-' {
		x.pos++
	}
	for x.pos < len(x.src) && isDigit(x.src[x.pos]) {
		x.pos++
	}
	if x.pos > pstart {
		if n, err := strconv.Atoi(string(x.src[pstart:x.pos])); err == nil {
			param, hasParam = n, true
		}
	}
	if x.pos < len(x.src) && x.src[x.pos] == ' ' {
		x.pos++
	}
	x.word(word, param, hasParam)
}

func (x *extractor) symbol(c byte) {
	x.top().fresh = false
	switch c {
	case '\\', '{', '}':
		x.emitByte(c)
	case '~':
		x.emitString("&nbsp;")
	case '_':
		x.emitString("&#8209;")
	case '\'':
		if x.pos+2 > len(x.src) {
			x.pos = len(x.src)
			return
		}
		n, err := strconv.ParseUint(string(x.src[x.pos:x.pos+2]), 16, 8)
		x.pos += 2
		if err == nil {
			x.emitByte(byte(n))
		}
	}
}

func (x *extractor) word(w string, param int, hasParam bool) {
	g := x.top()
	fresh := g.fresh
	g.fresh = false
	if fresh && skippedDestinations[w] {
		g.skip = true
		return
	}

	switch w {
	case "htmlrtf":
		x.htmlrtf = !hasParam || param != 0
	case "ansicpg":
		if hasParam && param > 0 {
			x.codepage = param
		}
	case "uc":
		if hasParam && param >= 0 {
			x.uc = param
		}
	case "u":
		if !hasParam {
			return
		}
		if param < 0 {
			param += 0x10000
		}
		r := rune(param)
		switch {
		case utf16.IsSurrogate(r) && r < 0xDC00:
			x.highSurrogate = r
		case utf16.IsSurrogate(r):
			x.emitString(string(utf16.DecodeRune(x.highSurrogate, r)))
			x.highSurrogate = 0
		default:
			x.emitString(string(r))
		}
		x.pendSkip = x.uc
	case "par", "line":
		x.emitString("\r\n")
	case "tab":
		x.emitString("\t")
	}
}

func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
