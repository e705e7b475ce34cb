// Package source resolves line/column positions in a text buffer to
// absolute character offsets.
package source

import (
	"github.com/jupierce/coverage-annotator/pkg/coverage"
)

// Index maps 1-based (line, column) positions of a text to rune offsets.
//
// Every character, including the newline ending a line, occupies one column
// of its line, so column len(line)+1 is the newline's offset and also the
// end-of-line position. The position one past the last character of the
// text resolves to Len().
type Index struct {
	text []rune
	// starts[i] is the offset of the first character of line i+1
	starts []int
}

// NewIndex scans text once and records where each line starts.
func NewIndex(text string) *Index {
	runes := []rune(text)
	starts := []int{0}
	for i, r := range runes {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Index{text: runes, starts: starts}
}

// Len returns the number of characters in the text.
func (x *Index) Len() int { return len(x.text) }

// Lines returns the number of lines. A trailing newline starts a final,
// empty line.
func (x *Index) Lines() int { return len(x.starts) }

// Offset resolves p to an offset. The second result is false when p does
// not occur in the text.
func (x *Index) Offset(p coverage.Position) (int, bool) {
	if p.Line < 1 || p.Line > len(x.starts) || p.Column < 1 {
		return 0, false
	}
	start := x.starts[p.Line-1]
	end := len(x.text) // one past the last column of the final line
	if p.Line < len(x.starts) {
		end = x.starts[p.Line] - 1 // the newline
	}
	off := start + p.Column - 1
	if off > end {
		return 0, false
	}
	return off, true
}

// Slice returns the text between two offsets. Offsets are clamped to the
// text.
func (x *Index) Slice(from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(x.text) {
		to = len(x.text)
	}
	if from >= to {
		return ""
	}
	return string(x.text[from:to])
}
