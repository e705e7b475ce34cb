// Package markup turns counted regions over a source text into a correctly
// nested tree of annotated fragments and flattens that tree into render
// nodes.
package markup

import (
	"fmt"
	"sort"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/source"
)

// MarkerKind distinguishes region boundaries.
type MarkerKind int

const (
	Open MarkerKind = iota
	Close
)

// Marker is an open or close boundary of one region.
type Marker struct {
	Kind MarkerKind
	// Count is the execution count of the region (Open only).
	Count int
	// Region identifies the region the marker belongs to, so a Close can be
	// checked against the region it is expected to end.
	Region int
}

func (m Marker) String() string {
	if m.Kind == Open {
		return fmt.Sprintf("open#%d(%d)", m.Region, m.Count)
	}
	return fmt.Sprintf("close#%d", m.Region)
}

// MarkerTable holds markers keyed by offset.
type MarkerTable struct {
	offsets []int
	markers map[int][]Marker
}

// Offsets returns the offsets carrying markers in ascending order.
func (t *MarkerTable) Offsets() []int { return t.offsets }

// At returns the markers at off in processing order.
func (t *MarkerTable) At(off int) []Marker { return t.markers[off] }

// Len returns the number of offsets carrying markers.
func (t *MarkerTable) Len() int { return len(t.offsets) }

type span struct {
	from, to int
	count    int
}

// BuildMarkers resolves each region against idx and places its markers.
// Regions whose endpoints do not resolve, or that end before they start,
// are dropped; the number dropped is returned.
//
// Regions are ordered by start ascending and end descending, so an outer
// region opens before an inner one sharing its start. At each offset the
// closes come first, innermost first, followed by the opens; a zero-width
// region's open and close are adjacent.
func BuildMarkers(idx *source.Index, regions []coverage.Region) (*MarkerTable, int) {
	spans := make([]span, 0, len(regions))
	dropped := 0
	for _, r := range regions {
		from, ok := idx.Offset(r.From)
		if !ok {
			dropped++
			continue
		}
		to, ok := idx.Offset(r.To)
		if !ok || to < from {
			dropped++
			continue
		}
		spans = append(spans, span{from: from, to: to, count: r.Count})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].from != spans[j].from {
			return spans[i].from < spans[j].from
		}
		return spans[i].to > spans[j].to
	})

	closes := make(map[int][]Marker)
	opens := make(map[int][]Marker)
	for id, s := range spans {
		opens[s.from] = append(opens[s.from], Marker{Kind: Open, Count: s.count, Region: id})
		if s.to == s.from {
			opens[s.from] = append(opens[s.from], Marker{Kind: Close, Region: id})
			continue
		}
		closes[s.to] = append(closes[s.to], Marker{Kind: Close, Region: id})
	}

	t := &MarkerTable{markers: make(map[int][]Marker, len(opens)+len(closes))}
	for off, list := range closes {
		// closes were collected outermost first
		ordered := make([]Marker, 0, len(list)+len(opens[off]))
		for i := len(list) - 1; i >= 0; i-- {
			ordered = append(ordered, list[i])
		}
		t.markers[off] = ordered
	}
	for off, list := range opens {
		t.markers[off] = append(t.markers[off], list...)
	}
	for off := range t.markers {
		t.offsets = append(t.offsets, off)
	}
	sort.Ints(t.offsets)

	return t, dropped
}
