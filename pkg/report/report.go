// Package report renders every module of a coverage payload and assembles
// the annotated sources into a single HTML page.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jupierce/coverage-annotator/pkg/config"
	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/log"
	"github.com/jupierce/coverage-annotator/pkg/markup"
)

// Sources supplies the text of a module's source file.
type Sources interface {
	Lookup(module, path string) (string, bool)
}

// MapSources serves sources from memory, keyed by module name.
type MapSources map[string]string

func (m MapSources) Lookup(module, _ string) (string, bool) {
	text, ok := m[module]
	return text, ok
}

// DirSources reads module files from a list of directories. The module's
// recorded path is tried first, then the module name with dots turned into
// directory separators.
type DirSources struct {
	Dirs []string
	// Ext is appended to module-derived paths, e.g. ".elm".
	Ext string
}

func (d DirSources) Lookup(module, path string) (string, bool) {
	for _, candidate := range d.candidates(module, path) {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return string(data), true
		}
	}
	return "", false
}

func (d DirSources) candidates(module, path string) []string {
	var rel []string
	if path != "" {
		if filepath.IsAbs(path) {
			return []string{path}
		}
		rel = append(rel, path)
	}
	rel = append(rel, filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))+d.Ext)

	dirs := d.Dirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	var out []string
	for _, dir := range dirs {
		for _, r := range rel {
			out = append(out, filepath.Join(dir, r))
		}
	}
	return out
}

// Section is the annotated view of one coverage kind within a module.
type Section struct {
	Kind   coverage.Kind
	Label  string
	Counts coverage.Counts
	Nodes  []markup.Node
	Lines  int
	// Error is set when the regions of this kind do not nest.
	Error string
}

// ModuleReport holds the rendered sections of one module.
type ModuleReport struct {
	Module    string
	Path      string
	Total     coverage.Counts
	HasSource bool
	Sections  []Section
}

// Anchor is the HTML id of the module's detail block.
func (m ModuleReport) Anchor() string {
	return "module-" + strings.NewReplacer(".", "-", "/", "-", " ", "-").Replace(m.Module)
}

// Report is everything needed to write the HTML page.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Summary     coverage.Summary
	Labels      map[coverage.Kind]string
	Modules     []ModuleReport
}

// Builder renders payloads into reports.
type Builder struct {
	cfg     *config.Config
	logger  *log.Logger
	sources Sources
}

// NewBuilder returns a Builder using cfg for labels, strictness and
// concurrency.
func NewBuilder(cfg *config.Config, logger *log.Logger, sources Sources) *Builder {
	if logger == nil {
		logger = log.Discard()
	}
	return &Builder{cfg: cfg, logger: logger, sources: sources}
}

// Build renders every module of p. Modules are independent and rendered
// concurrently. In strict mode a module whose regions do not nest fails
// the whole build; otherwise that section carries the error and is left
// out of the annotated view.
func (b *Builder) Build(ctx context.Context, p *coverage.Payload) (*Report, error) {
	names := p.ModuleNames()
	modules := make([]ModuleReport, len(names))

	var (
		mu      sync.Mutex
		skipped int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mr, err := b.buildModule(name, p.Paths[name], p.Modules[name])
			if err != nil {
				return err
			}
			if !mr.HasSource {
				mu.Lock()
				skipped++
				mu.Unlock()
			}
			modules[i] = mr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if skipped > 0 {
		b.logger.Warning("%d of %d modules have no source and are listed in the summary only", skipped, len(names))
	}

	summary := coverage.Summarize(p)
	labels := make(map[coverage.Kind]string, len(summary.Kinds))
	for kind := range summary.Kinds {
		labels[kind] = b.cfg.Label(kind)
	}

	return &Report{
		Title:       b.cfg.Title,
		GeneratedAt: time.Now(),
		Summary:     summary,
		Labels:      labels,
		Modules:     modules,
	}, nil
}

func (b *Builder) buildModule(name, path string, regions coverage.Regions) (ModuleReport, error) {
	mr := ModuleReport{Module: name, Path: path}
	for _, list := range regions {
		mr.Total.Add(coverage.Count(list))
	}

	text, ok := b.sources.Lookup(name, path)
	if !ok {
		b.logger.Debug("no source for module %s (path %q)", name, path)
		return mr, nil
	}
	mr.HasSource = true

	kinds := regions.Kinds()
	if len(kinds) == 0 {
		// no coverage data: show the plain source once
		res, err := markup.Annotate(text, nil)
		if err != nil {
			return mr, fmt.Errorf("module %s: %w", name, err)
		}
		mr.Sections = append(mr.Sections, Section{Label: "Source", Nodes: res.Nodes, Lines: res.Lines})
		return mr, nil
	}

	for _, kind := range kinds {
		list := regions[kind]
		section := Section{
			Kind:   kind,
			Label:  b.cfg.Label(kind),
			Counts: coverage.Count(list),
		}
		if !kind.Known() {
			b.logger.Debug("module %s: unrecognized coverage kind %q", name, kind)
		}

		res, err := markup.Annotate(text, list)
		if err != nil {
			if b.cfg.Strict {
				return mr, fmt.Errorf("module %s %s: %w", name, kind, err)
			}
			b.logger.Warning("module %s %s: %v", name, kind, err)
			section.Error = err.Error()
			mr.Sections = append(mr.Sections, section)
			continue
		}
		if res.Dropped > 0 {
			b.logger.Debug("module %s %s: dropped %d region(s) with positions outside the source", name, kind, res.Dropped)
		}
		section.Nodes = res.Nodes
		section.Lines = res.Lines
		mr.Sections = append(mr.Sections, section)
	}
	b.logger.Trace("rendered module %s (%d sections)", name, len(mr.Sections))
	return mr, nil
}
