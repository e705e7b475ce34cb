package markup

import (
	"fmt"
	"strings"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/source"
)

// NodeKind identifies a render primitive.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeLineBreak
	NodeWhitespace
	NodeGroup
)

// Node is a render primitive. Groups carry the metadata of one region and
// the primitives of its content.
type Node struct {
	Kind NodeKind
	// Text is set for NodeText.
	Text string
	// Width is the number of spaces of a NodeWhitespace.
	Width int

	Count    int
	Children []Node
}

// Covered reports whether a group's region executed at least once.
func (n Node) Covered() bool { return n.Count > 0 }

// State is the CSS class of a group: "covered" or "uncovered".
func (n Node) State() string {
	if n.Covered() {
		return "covered"
	}
	return "uncovered"
}

// Title is the tooltip of a group, stating the exact count.
func (n Node) Title() string {
	if n.Count == 1 {
		return "Evaluated 1 time"
	}
	return fmt.Sprintf("Evaluated %d times", n.Count)
}

// Render flattens content depth-first into render nodes, keeping left to
// right order at every level.
func Render(content []Content) []Node {
	var nodes []Node
	for _, c := range content {
		if c.Wrapped {
			nodes = append(nodes, Node{Kind: NodeGroup, Count: c.Count, Children: Render(c.Children)})
			continue
		}
		for _, p := range c.Parts {
			switch p.Kind {
			case PartText:
				nodes = append(nodes, Node{Kind: NodeText, Text: p.Text})
			case PartLineBreak:
				nodes = append(nodes, Node{Kind: NodeLineBreak})
			case PartIndent:
				nodes = append(nodes, Node{Kind: NodeWhitespace, Width: p.Width})
			case PartIndentedText:
				nodes = append(nodes,
					Node{Kind: NodeWhitespace, Width: p.Width},
					Node{Kind: NodeText, Text: p.Text},
				)
			}
		}
	}
	return nodes
}

// PlainText concatenates the characters carried by nodes, ignoring group
// boundaries.
func PlainText(nodes []Node) string {
	var b strings.Builder
	writePlain(&b, nodes)
	return b.String()
}

func writePlain(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Kind {
		case NodeText:
			b.WriteString(n.Text)
		case NodeLineBreak:
			b.WriteByte('\n')
		case NodeWhitespace:
			b.WriteString(strings.Repeat(" ", n.Width))
		case NodeGroup:
			writePlain(b, n.Children)
		}
	}
}

// Result is the outcome of annotating one text with one set of regions.
type Result struct {
	Nodes []Node
	// Lines is the number of lines in the text.
	Lines int
	// Dropped counts regions whose positions did not resolve.
	Dropped int
}

// Annotate runs the whole pipeline over one text: index, markers, nesting
// and rendering. The only error is ErrUnbalanced.
func Annotate(text string, regions []coverage.Region) (*Result, error) {
	idx := source.NewIndex(text)
	table, dropped := BuildMarkers(idx, regions)
	content, err := Build(idx, table)
	if err != nil {
		return nil, err
	}
	return &Result{
		Nodes:   Render(content),
		Lines:   idx.Lines(),
		Dropped: dropped,
	}, nil
}
