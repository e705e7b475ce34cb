package markup

import "strings"

// PartKind identifies the shape of a Part.
type PartKind int

const (
	// PartText is a literal run of text.
	PartText PartKind = iota
	// PartLineBreak is a single newline.
	PartLineBreak
	// PartIndent is a line made only of spaces.
	PartIndent
	// PartIndentedText is a run of leading spaces followed by text.
	PartIndentedText
)

// Part is one piece of plain text between two markers.
type Part struct {
	Kind PartKind
	// Width is the number of leading spaces (indent kinds only).
	Width int
	// Text is the visible text, without the leading spaces.
	Text string
}

// SplitText decomposes s into parts, left to right. Lines are separated by
// line breaks; each non-empty line is classified by its run of leading
// spaces so indentation can be styled apart from code.
func SplitText(s string) []Part {
	if s == "" {
		return nil
	}

	var parts []Part
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			parts = append(parts, Part{Kind: PartLineBreak})
		}
		if line == "" {
			continue
		}

		rest := strings.TrimLeft(line, " ")
		width := len(line) - len(rest)
		switch {
		case rest == "":
			parts = append(parts, Part{Kind: PartIndent, Width: width})
		case width > 0:
			parts = append(parts, Part{Kind: PartIndentedText, Width: width, Text: rest})
		default:
			parts = append(parts, Part{Kind: PartText, Text: line})
		}
	}
	return parts
}
