package coverage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNoModules is returned when a payload decodes but carries no module data.
var ErrNoModules = errors.New("coverage: payload contains no modules")

// ModuleError records a module whose coverage entries could not be decoded.
// Such a module is kept in the payload with no regions.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// rawPayload mirrors the coverage.json layout written by the instrumented
// test runner.
type rawPayload struct {
	CoverageData map[string]json.RawMessage `json:"coverageData"`
	ModuleMap    map[string]string          `json:"moduleMap"`
}

type rawPosition struct {
	Line   *int `json:"line"`
	Column *int `json:"column"`
}

type rawEntry struct {
	Type  string       `json:"type"`
	From  *rawPosition `json:"from"`
	To    *rawPosition `json:"to"`
	Count *int         `json:"count"`
}

// singular entry types as emitted by the instrumenter
var entryKinds = map[string]Kind{
	"expression":     KindExpressions,
	"caseBranch":     KindCaseBranches,
	"declaration":    KindDeclarations,
	"ifElseBranch":   KindIfElseBranches,
	"lambdaBody":     KindLambdaBodies,
	"letDeclaration": KindLetDeclarations,
	"statement":      KindStatements,
}

// KindForEntryType maps an entry "type" field to its kind. Plural kind
// names are accepted as-is; anything else passes through unchanged.
func KindForEntryType(t string) Kind {
	if k, ok := entryKinds[t]; ok {
		return k
	}
	return Kind(t)
}

// DecodeFile reads and decodes a coverage payload from path.
func DecodeFile(path string) (*Payload, []*ModuleError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read coverage file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode parses a coverage payload. Each module under "coverageData" is
// either a list of typed entries or an object of kind -> regions. A module
// that fails to decode is returned as a ModuleError and is present in the
// payload with no regions, so its source still renders unannotated.
func Decode(r io.Reader) (*Payload, []*ModuleError, error) {
	var raw rawPayload
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode coverage payload: %w", err)
	}
	if len(raw.CoverageData) == 0 {
		return nil, nil, ErrNoModules
	}

	p := NewPayload()
	var moduleErrs []*ModuleError

	for module, msg := range raw.CoverageData {
		regions, err := decodeModule(msg)
		if err != nil {
			moduleErrs = append(moduleErrs, &ModuleError{Module: module, Err: err})
			regions = make(Regions)
		}
		p.Modules[module] = regions
	}
	for module, path := range raw.ModuleMap {
		p.Paths[module] = path
	}

	return p, moduleErrs, nil
}

func decodeModule(msg json.RawMessage) (Regions, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return make(Regions), nil
	}

	switch trimmed[0] {
	case '[':
		var entries []rawEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
		regions := make(Regions)
		for i, e := range entries {
			if e.Type == "" {
				return nil, fmt.Errorf("entry %d: missing type", i)
			}
			region, err := e.region()
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			kind := KindForEntryType(e.Type)
			regions[kind] = append(regions[kind], region)
		}
		return regions, nil
	case '{':
		var grouped map[string][]rawEntry
		if err := json.Unmarshal(trimmed, &grouped); err != nil {
			return nil, fmt.Errorf("decode kinds: %w", err)
		}
		regions := make(Regions)
		for kind, entries := range grouped {
			list := make([]Region, 0, len(entries))
			for i, e := range entries {
				region, err := e.region()
				if err != nil {
					return nil, fmt.Errorf("%s entry %d: %w", kind, i, err)
				}
				list = append(list, region)
			}
			regions[Kind(kind)] = list
		}
		return regions, nil
	default:
		return nil, fmt.Errorf("unexpected module value %q", string(trimmed[:1]))
	}
}

func (e rawEntry) region() (Region, error) {
	from, err := e.From.position("from")
	if err != nil {
		return Region{}, err
	}
	to, err := e.To.position("to")
	if err != nil {
		return Region{}, err
	}
	if e.Count == nil {
		return Region{}, errors.New("missing count")
	}
	if *e.Count < 0 {
		return Region{}, fmt.Errorf("negative count %d", *e.Count)
	}
	return Region{From: from, To: to, Count: *e.Count}, nil
}

func (p *rawPosition) position(field string) (Position, error) {
	if p == nil {
		return Position{}, fmt.Errorf("missing %s", field)
	}
	if p.Line == nil || p.Column == nil {
		return Position{}, fmt.Errorf("%s: missing line or column", field)
	}
	if *p.Line < 1 || *p.Column < 1 {
		return Position{}, fmt.Errorf("%s: invalid position %d:%d", field, *p.Line, *p.Column)
	}
	return Position{Line: *p.Line, Column: *p.Column}, nil
}
