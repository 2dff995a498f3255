package protocol

import (
	"strings"
	"unicode/utf8"
)

// LineIndex maps between byte offsets in a text and protocol positions.
// Characters are counted in UTF-16 code units.
type LineIndex struct {
	text  string
	lines []int // byte offset of each line start
}

// NewLineIndex indexes text for position conversion.
func NewLineIndex(text string) *LineIndex {
	idx := &LineIndex{text: text, lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			idx.lines = append(idx.lines, i+1)
		}
	}
	return idx
}

// LineCount returns the number of lines. Empty text has one line.
func (idx *LineIndex) LineCount() int {
	return len(idx.lines)
}

// line returns the content of line n without its terminator.
func (idx *LineIndex) line(n int) string {
	start := idx.lines[n]
	end := len(idx.text)
	if n+1 < len(idx.lines) {
		end = idx.lines[n+1] - 1
	}
	return strings.TrimSuffix(idx.text[start:end], "\r")
}

// Offset converts a position to a byte offset. Lines past the end clamp to
// the end of text; characters past the end of a line clamp to its end.
func (idx *LineIndex) Offset(pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(idx.lines) {
		return len(idx.text)
	}
	return idx.lines[pos.Line] + utf16ToByteOffset(idx.line(pos.Line), pos.Character)
}

// Position converts a byte offset to a position.
func (idx *LineIndex) Position(offset int) Position {
	if offset <= 0 {
		return Position{}
	}
	if offset > len(idx.text) {
		offset = len(idx.text)
	}
	// last line start <= offset
	lo, hi := 0, len(idx.lines)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if idx.lines[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	line := idx.line(lo)
	col := offset - idx.lines[lo]
	if col > len(line) {
		col = len(line)
	}
	return Position{Line: lo, Character: UTF16Len(line[:col])}
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// utf16ToByteOffset converts a UTF-16 offset within a line to a byte offset.
// An offset that splits a surrogate pair rounds up to the next rune.
func utf16ToByteOffset(s string, utf16Off int) int {
	if utf16Off <= 0 {
		return 0
	}
	count := 0
	for i, r := range s {
		if count >= utf16Off {
			return i
		}
		if r >= 0x10000 {
			count += 2
		} else {
			count++
		}
	}
	return len(s)
}

// ApplyEdit replaces the text covered by rng with newText.
func ApplyEdit(text string, rng Range, newText string) (string, error) {
	if err := rng.Validate(); err != nil {
		return "", err
	}
	idx := NewLineIndex(text)
	start, end := idx.Offset(rng.Start), idx.Offset(rng.End)
	if !utf8.ValidString(newText) {
		return "", Errorf(CodeInvalidParams, "edit text is not valid UTF-8")
	}
	return text[:start] + newText + text[end:], nil
}
