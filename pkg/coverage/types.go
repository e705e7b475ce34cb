package coverage

import (
	"fmt"
	"sort"
)

// Position is a 1-based line/column location in a source file. Columns
// count characters, not bytes.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p comes strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Region is one counted span of source text.
type Region struct {
	From  Position `json:"from"`
	To    Position `json:"to"`
	Count int      `json:"count"`
}

// Kind identifies a family of regions (expressions, case branches, ...).
// Kinds are open-ended; unrecognized ones are still rendered.
type Kind string

const (
	KindExpressions     Kind = "expressions"
	KindCaseBranches    Kind = "caseBranches"
	KindDeclarations    Kind = "declarations"
	KindIfElseBranches  Kind = "ifElseBranches"
	KindLambdaBodies    Kind = "lambdaBodies"
	KindLetDeclarations Kind = "letDeclarations"
	KindStatements      Kind = "statements"
)

var kindLabels = map[Kind]string{
	KindExpressions:     "Expressions",
	KindCaseBranches:    "Case branches",
	KindDeclarations:    "Declarations",
	KindIfElseBranches:  "If/Else branches",
	KindLambdaBodies:    "Lambda bodies",
	KindLetDeclarations: "Let declarations",
	KindStatements:      "Statements",
}

// Label returns the human readable name of the kind, or "unknown".
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return "unknown"
}

// Known reports whether k has a dedicated label.
func (k Kind) Known() bool {
	_, ok := kindLabels[k]
	return ok
}

// Regions holds the regions of a single module grouped by kind.
type Regions map[Kind][]Region

// Kinds returns the kinds present in r: known kinds first in a fixed
// order, then unknown ones alphabetically.
func (r Regions) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		ri, rj := kindRank(kinds[i]), kindRank(kinds[j])
		if ri != rj {
			return ri < rj
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}

var kindOrder = []Kind{
	KindDeclarations,
	KindLetDeclarations,
	KindLambdaBodies,
	KindCaseBranches,
	KindIfElseBranches,
	KindExpressions,
	KindStatements,
}

func kindRank(k Kind) int {
	for i, known := range kindOrder {
		if k == known {
			return i
		}
	}
	return len(kindOrder)
}

// Payload is the decoded coverage data for a whole run.
type Payload struct {
	// Modules maps module name -> kind -> regions.
	Modules map[string]Regions
	// Paths maps module name -> source file path, when known.
	Paths map[string]string
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{
		Modules: make(map[string]Regions),
		Paths:   make(map[string]string),
	}
}

// Add appends regions of the given kind to a module.
func (p *Payload) Add(module string, kind Kind, regions ...Region) {
	m, ok := p.Modules[module]
	if !ok {
		m = make(Regions)
		p.Modules[module] = m
	}
	m[kind] = append(m[kind], regions...)
}

// ModuleNames returns the module names in sorted order.
func (p *Payload) ModuleNames() []string {
	names := make([]string, 0, len(p.Modules))
	for name := range p.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
