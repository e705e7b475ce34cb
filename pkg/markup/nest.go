package markup

import (
	"errors"
	"fmt"

	"github.com/jupierce/coverage-annotator/pkg/source"
)

// ErrUnbalanced is returned when the markers of a file do not nest: a close
// with nothing open, a close ending a region other than the innermost open
// one (crossing regions), or regions still open at end of text.
var ErrUnbalanced = errors.New("markup: unbalanced region markers")

// Content is a node of the nested tree. A leaf holds Parts; a wrapped node
// holds the content that fell between a region's open and close.
type Content struct {
	Parts []Part

	Wrapped  bool
	Count    int
	Children []Content
}

// Leaf returns a leaf node.
func Leaf(parts ...Part) Content { return Content{Parts: parts} }

// Wrap returns a wrapped node.
func Wrap(count int, children ...Content) Content {
	return Content{Wrapped: true, Count: count, Children: children}
}

type frame struct {
	region int
	count  int
	saved  []Content
}

// Build walks the markers of t in ascending offset order and nests the text
// of idx between them. Content is appended in document order at every
// depth; an open saves the current list and a close wraps what accumulated
// since and splices it back into the saved list.
func Build(idx *source.Index, t *MarkerTable) ([]Content, error) {
	var (
		current []Content
		stack   []frame
		cursor  int
	)

	for _, off := range t.Offsets() {
		if parts := SplitText(idx.Slice(cursor, off)); len(parts) > 0 {
			current = append(current, Leaf(parts...))
		}
		cursor = off

		for _, m := range t.At(off) {
			switch m.Kind {
			case Open:
				stack = append(stack, frame{region: m.Region, count: m.Count, saved: current})
				current = nil
			case Close:
				if len(stack) == 0 {
					return nil, fmt.Errorf("%w: close of region %d at offset %d with no open region", ErrUnbalanced, m.Region, off)
				}
				top := stack[len(stack)-1]
				if top.region != m.Region {
					return nil, fmt.Errorf("%w: region %d closes at offset %d while region %d is still open", ErrUnbalanced, m.Region, off, top.region)
				}
				stack = stack[:len(stack)-1]
				current = append(top.saved, Wrap(top.count, current...))
			}
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: %d region(s) still open at end of text", ErrUnbalanced, len(stack))
	}
	if parts := SplitText(idx.Slice(cursor, idx.Len())); len(parts) > 0 {
		current = append(current, Leaf(parts...))
	}
	return current, nil
}
