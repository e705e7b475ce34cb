package coverage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"
)

// SourceLookup returns the text of a file by its module-relative path.
type SourceLookup func(relPath string) (string, bool)

// GoModulePath reads the module path from dir/go.mod, or returns "" when
// there is none.
func GoModulePath(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

// RelativeGoPath strips modulePath from a profile file name, e.g.
// "example.com/m/pkg/a.go" -> "pkg/a.go".
func RelativeGoPath(fileName, modulePath string) string {
	if modulePath == "" || !strings.HasPrefix(fileName, modulePath) {
		return fileName
	}
	return strings.TrimPrefix(strings.TrimPrefix(fileName, modulePath), "/")
}

// LoadGoProfiles parses a Go coverage profile (coverage.out) and converts it
// into a payload of statement regions, one module per source file.
func LoadGoProfiles(path, modulePath string, lookup SourceLookup) (*Payload, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, ErrNoModules
	}
	return FromGoProfiles(profiles, modulePath, lookup), nil
}

// FromGoProfiles converts parsed Go profiles into a payload keyed by
// profile file name. Go profiles use byte columns; when the source is
// available they are converted to character columns so multi-byte text
// lines up with the indexer.
func FromGoProfiles(profiles []*cover.Profile, modulePath string, lookup SourceLookup) *Payload {
	p := NewPayload()
	for _, profile := range profiles {
		relPath := RelativeGoPath(profile.FileName, modulePath)

		var lines []string
		if lookup != nil {
			if text, ok := lookup(relPath); ok {
				lines = strings.Split(text, "\n")
			}
		}

		regions := make([]Region, 0, len(profile.Blocks))
		for _, block := range profile.Blocks {
			regions = append(regions, Region{
				From:  Position{Line: block.StartLine, Column: runeColumn(lines, block.StartLine, block.StartCol)},
				To:    Position{Line: block.EndLine, Column: runeColumn(lines, block.EndLine, block.EndCol)},
				Count: block.Count,
			})
		}
		p.Add(profile.FileName, KindStatements, regions...)
		p.Paths[profile.FileName] = relPath
	}
	return p
}

// runeColumn converts a 1-based byte column on line into a 1-based
// character column. Columns that fall outside the known text are returned
// unchanged.
func runeColumn(lines []string, line, byteCol int) int {
	if line < 1 || line > len(lines) {
		return byteCol
	}
	text := lines[line-1]
	if byteCol < 1 || byteCol-1 > len(text) {
		return byteCol
	}
	return utf8.RuneCountInString(text[:byteCol-1]) + 1
}
