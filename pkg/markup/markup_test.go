package markup

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/source"
)

func region(fromLine, fromCol, toLine, toCol, count int) coverage.Region {
	return coverage.Region{
		From:  coverage.Position{Line: fromLine, Column: fromCol},
		To:    coverage.Position{Line: toLine, Column: toCol},
		Count: count,
	}
}

func text(s string) Node { return Node{Kind: NodeText, Text: s} }
func ws(n int) Node { return Node{Kind: NodeWhitespace, Width: n} }
func group(count int, children ...Node) Node {
	return Node{Kind: NodeGroup, Count: count, Children: children}
}

var lineBreak = Node{Kind: NodeLineBreak}

func TestAnnotateNestedExample(t *testing.T) {
	res, err := Annotate("a\n  b\n", []coverage.Region{
		region(2, 3, 2, 4, 0),
		region(1, 1, 3, 1, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, []Node{
		group(3,
			text("a"),
			lineBreak,
			ws(2),
			group(0, text("b")),
			lineBreak,
		),
	}, res.Nodes)
	assert.Equal(t, 3, res.Lines)
	assert.Zero(t, res.Dropped)

	outer := res.Nodes[0]
	assert.Equal(t, "covered", outer.State())
	assert.Equal(t, "uncovered", outer.Children[3].State())
	assert.Equal(t, "Evaluated 3 times", outer.Title())
}

func TestAnnotate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		regions []coverage.Region
		want    []Node
		dropped int
	}{
		{
			name: "no regions",
			text: "x = 1\n",
			want: []Node{text("x = 1"), lineBreak},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name:    "zero width region",
			text:    "abcd",
			regions: []coverage.Region{region(1, 3, 1, 3, 2)},
			want:    []Node{text("ab"), group(2), text("cd")},
		},
		{
			name: "adjacent regions",
			text: "abcd",
			regions: []coverage.Region{
				region(1, 3, 1, 5, 0),
				region(1, 1, 1, 3, 1),
			},
			want: []Node{group(1, text("ab")), group(0, text("cd"))},
		},
		{
			name: "shared end",
			text: "abcdef",
			regions: []coverage.Region{
				region(1, 4, 1, 6, 0),
				region(1, 1, 1, 6, 2),
			},
			want: []Node{group(2, text("abc"), group(0, text("de"))), text("f")},
		},
		{
			name: "shared start",
			text: "abcdef",
			regions: []coverage.Region{
				region(1, 1, 1, 3, 5),
				region(1, 1, 1, 7, 1),
			},
			want: []Node{group(1, group(5, text("ab")), text("cdef"))},
		},
		{
			name: "identical spans nest",
			text: "ab",
			regions: []coverage.Region{
				region(1, 1, 1, 3, 1),
				region(1, 1, 1, 3, 5),
			},
			want: []Node{group(1, group(5, text("ab")))},
		},
		{
			name: "zero width at close of previous region",
			text: "abcd",
			regions: []coverage.Region{
				region(1, 1, 1, 3, 1),
				region(1, 3, 1, 3, 0),
			},
			want: []Node{group(1, text("ab")), group(0), text("cd")},
		},
		{
			name: "out of range dropped",
			text: "ab\ncd",
			regions: []coverage.Region{
				region(1, 1, 1, 2, 1),
				region(2, 1, 9, 1, 1),
				region(1, 9, 2, 1, 1),
			},
			want:    []Node{group(1, text("a")), text("b"), lineBreak, text("cd")},
			dropped: 2,
		},
		{
			name:    "inverted region dropped",
			text:    "abc",
			regions: []coverage.Region{region(1, 3, 1, 1, 1)},
			want:    []Node{text("abc")},
			dropped: 1,
		},
		{
			name: "region ending at end of input",
			text: "ab\n  cd",
			regions: []coverage.Region{
				region(2, 3, 2, 5, 0),
			},
			want: []Node{text("ab"), lineBreak, ws(2), group(0, text("cd"))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Annotate(tt.text, tt.regions)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Nodes)
			assert.Equal(t, tt.dropped, res.Dropped)
			assert.Equal(t, tt.text, PlainText(res.Nodes))
		})
	}
}

func TestAnnotateCrossingRegions(t *testing.T) {
	_, err := Annotate("abcdefghij", []coverage.Region{
		region(1, 1, 1, 6, 1),
		region(1, 4, 1, 9, 1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnbalanced))
}

func TestBuildUnbalanced(t *testing.T) {
	idx := source.NewIndex("abc")

	closeFirst := &MarkerTable{
		offsets: []int{1},
		markers: map[int][]Marker{1: {{Kind: Close, Region: 0}}},
	}
	_, err := Build(idx, closeFirst)
	assert.True(t, errors.Is(err, ErrUnbalanced))
	assert.Contains(t, err.Error(), "no open region")

	leftOpen := &MarkerTable{
		offsets: []int{1},
		markers: map[int][]Marker{1: {{Kind: Open, Count: 1, Region: 0}}},
	}
	_, err = Build(idx, leftOpen)
	assert.True(t, errors.Is(err, ErrUnbalanced))
	assert.Contains(t, err.Error(), "still open")
}

func TestBuildMarkersOrder(t *testing.T) {
	idx := source.NewIndex("abcdef")
	table, dropped := BuildMarkers(idx, []coverage.Region{
		region(1, 4, 1, 4, 9), // zero width at 3
		region(1, 1, 1, 4, 1), // [0,3)
		region(1, 2, 1, 4, 2), // [1,3)
		region(1, 4, 1, 7, 3), // [3,6)
	})
	assert.Zero(t, dropped)
	assert.Equal(t, []int{0, 1, 3, 6}, table.Offsets())
	assert.Equal(t, 4, table.Len())

	// sorted ids: [0,3)=0 [1,3)=1 [3,6)=2 zero-width=3
	assert.Equal(t, []Marker{
		{Kind: Close, Region: 1},
		{Kind: Close, Region: 0},
		{Kind: Open, Count: 3, Region: 2},
		{Kind: Open, Count: 9, Region: 3},
		{Kind: Close, Region: 3},
	}, table.At(3))
	assert.Equal(t, "open#2(3)", table.At(3)[2].String())
	assert.Equal(t, "close#1", table.At(3)[0].String())
}

func TestRenderIndentedText(t *testing.T) {
	nodes := Render([]Content{
		Leaf(Part{Kind: PartIndentedText, Width: 4, Text: "x"}),
		Wrap(0),
	})
	assert.Equal(t, []Node{ws(4), text("x"), group(0)}, nodes)
}

func TestNodeTitle(t *testing.T) {
	assert.Equal(t, "Evaluated 0 times", group(0).Title())
	assert.Equal(t, "Evaluated 1 time", group(1).Title())
	assert.Equal(t, "Evaluated 1234 times", group(1234).Title())
	assert.False(t, group(0).Covered())
	assert.True(t, group(7).Covered())
}

// randomSource builds lines of indented words.
func randomSource(r *rand.Rand) string {
	var b strings.Builder
	lines := 1 + r.Intn(8)
	for i := 0; i < lines; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(" ", r.Intn(5)))
		for w := r.Intn(4); w > 0; w-- {
			b.WriteString("tok ")
		}
	}
	return b.String()
}

// positionOf converts a rune offset back to a line/column position.
func positionOf(runes []rune, off int) coverage.Position {
	p := coverage.Position{Line: 1, Column: 1}
	for _, r := range runes[:off] {
		if r == '\n' {
			p.Line++
			p.Column = 1
		} else {
			p.Column++
		}
	}
	return p
}

type testSpan struct{ from, to, count int }

// nestedSpans generates well-nested spans inside [lo, hi].
func nestedSpans(r *rand.Rand, lo, hi, depth int, out *[]testSpan) {
	if depth > 4 || hi < lo {
		return
	}
	cursor := lo
	for cursor <= hi && r.Intn(3) > 0 {
		from := cursor + r.Intn(hi-cursor+1)
		to := from + r.Intn(hi-from+1)
		*out = append(*out, testSpan{from: from, to: to, count: r.Intn(3)})
		nestedSpans(r, from, to, depth+1, out)
		cursor = to + 1
	}
}

func countGroups(nodes []Node) int {
	n := 0
	for _, node := range nodes {
		if node.Kind == NodeGroup {
			n += 1 + countGroups(node.Children)
		}
	}
	return n
}

func TestAnnotateRandomNestedRegions(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		src := randomSource(r)
		runes := []rune(src)

		var spans []testSpan
		nestedSpans(r, 0, len(runes), 0, &spans)
		r.Shuffle(len(spans), func(a, b int) { spans[a], spans[b] = spans[b], spans[a] })

		regions := make([]coverage.Region, 0, len(spans))
		for _, s := range spans {
			regions = append(regions, coverage.Region{
				From:  positionOf(runes, s.from),
				To:    positionOf(runes, s.to),
				Count: s.count,
			})
		}

		res, err := Annotate(src, regions)
		require.NoError(t, err, "source %q regions %v", src, regions)
		assert.Equal(t, src, PlainText(res.Nodes))
		assert.Equal(t, len(regions), countGroups(res.Nodes))
		assert.Zero(t, res.Dropped)
	}
}
