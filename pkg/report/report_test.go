package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/coverage-annotator/pkg/config"
	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/log"
	"github.com/jupierce/coverage-annotator/pkg/markup"
)

func region(fromLine, fromCol, toLine, toCol, count int) coverage.Region {
	return coverage.Region{
		From:  coverage.Position{Line: fromLine, Column: fromCol},
		To:    coverage.Position{Line: toLine, Column: toCol},
		Count: count,
	}
}

func testPayload() *coverage.Payload {
	p := coverage.NewPayload()
	p.Add("Main", coverage.KindDeclarations, region(1, 1, 3, 1, 3))
	p.Add("Main", coverage.KindExpressions, region(2, 3, 2, 4, 0))
	p.Add("Main", coverage.Kind("recordUpdates"), region(1, 1, 1, 2, 1))
	p.Add("Missing", coverage.KindExpressions, region(1, 1, 1, 2, 0))
	p.Add("Crossing", coverage.KindExpressions,
		region(1, 1, 1, 4, 1),
		region(1, 2, 1, 6, 1),
	)
	p.Paths["Main"] = "src/Main.elm"
	return p
}

func testSources() MapSources {
	return MapSources{
		"Main":     "a\n  b\n",
		"Crossing": "a < b && c\n",
	}
}

func TestBuild(t *testing.T) {
	cfg := config.Default()
	b := NewBuilder(cfg, log.Discard(), testSources())

	r, err := b.Build(context.Background(), testPayload())
	require.NoError(t, err)

	require.Len(t, r.Modules, 3)
	assert.Equal(t, "Crossing", r.Modules[0].Module)
	assert.Equal(t, "Main", r.Modules[1].Module)
	assert.Equal(t, "Missing", r.Modules[2].Module)

	main := r.Modules[1]
	assert.True(t, main.HasSource)
	assert.Equal(t, "src/Main.elm", main.Path)
	assert.Equal(t, coverage.Counts{Hit: 2, Total: 3}, main.Total)
	require.Len(t, main.Sections, 3)
	assert.Equal(t, "Declarations", main.Sections[0].Label)
	assert.Equal(t, "Expressions", main.Sections[1].Label)
	assert.Equal(t, "unknown", main.Sections[2].Label)
	assert.Equal(t, 3, main.Sections[0].Lines)
	assert.Equal(t, "a\n  b\n", markup.PlainText(main.Sections[1].Nodes))

	assert.False(t, r.Modules[2].HasSource)
	assert.Empty(t, r.Modules[2].Sections)

	crossing := r.Modules[0]
	require.Len(t, crossing.Sections, 1)
	assert.Contains(t, crossing.Sections[0].Error, "unbalanced")
	assert.Nil(t, crossing.Sections[0].Nodes)

	assert.Equal(t, coverage.Counts{Hit: 4, Total: 6}, r.Summary.Total)
	assert.Equal(t, "Expressions", r.Labels[coverage.KindExpressions])
}

func TestBuildStrict(t *testing.T) {
	cfg := config.Default()
	cfg.Strict = true
	b := NewBuilder(cfg, nil, testSources())

	_, err := b.Build(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, markup.ErrUnbalanced))
	assert.Contains(t, err.Error(), "module Crossing expressions")
}

func TestBuildModuleWithoutRegions(t *testing.T) {
	p := coverage.NewPayload()
	p.Modules["Empty"] = coverage.Regions{}
	b := NewBuilder(config.Default(), nil, MapSources{"Empty": "x = 1"})

	r, err := b.Build(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, r.Modules[0].Sections, 1)
	assert.Equal(t, "Source", r.Modules[0].Sections[0].Label)
	assert.Equal(t, "x = 1", markup.PlainText(r.Modules[0].Sections[0].Nodes))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(config.Default(), nil, testSources())
	_, err := b.Build(ctx, testPayload())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnnotatedHTML(t *testing.T) {
	res, err := markup.Annotate("a\n  b<c\n", []coverage.Region{
		region(1, 1, 3, 1, 3),
		region(2, 3, 2, 4, 0),
		region(2, 5, 2, 5, 1),
	})
	require.NoError(t, err)

	got := string(AnnotatedHTML(res.Nodes))
	want := `<span class="covered" title="Evaluated 3 times">a` + "\n" +
		`<span class="whitespace">  </span><span class="uncovered" title="Evaluated 0 times">b</span>&lt;` +
		`<span class="covered" title="Evaluated 1 time"></span>c` + "\n" +
		`</span>`
	assert.Equal(t, want, got)
}

func TestWriteHTML(t *testing.T) {
	b := NewBuilder(config.Default(), nil, testSources())
	r, err := b.Build(context.Background(), testPayload())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "<title>Coverage report</title>")
	assert.Contains(t, out, `<a href="#module-Main">Main</a>`)
	assert.Contains(t, out, `id="module-Main"`)
	assert.NotContains(t, out, `id="module-Missing"`)
	assert.Contains(t, out, `<span class="uncovered" title="Evaluated 0 times">b</span>`)
	assert.Contains(t, out, "Regions could not be nested")
	assert.Contains(t, out, "1\n2\n3</pre>")
	assert.Equal(t, 1, strings.Count(out, "<td>Total</td>"))
}

func TestWriteFile(t *testing.T) {
	b := NewBuilder(config.Default(), nil, testSources())
	r, err := b.Build(context.Background(), testPayload())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "coverage.html")
	require.NoError(t, WriteFile(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}

func TestDirSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "Data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Data", "List.elm"), []byte("module Data.List"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Main.elm"), []byte("module Main"), 0644))

	s := DirSources{Dirs: []string{filepath.Join(dir, "src"), dir}, Ext: ".elm"}

	text, ok := s.Lookup("Data.List", "")
	assert.True(t, ok)
	assert.Equal(t, "module Data.List", text)

	text, ok = s.Lookup("Whatever", "Main.elm")
	assert.True(t, ok)
	assert.Equal(t, "module Main", text)

	_, ok = s.Lookup("Nope", "")
	assert.False(t, ok)
}

func TestColorClass(t *testing.T) {
	assert.Equal(t, "excellent", colorClass(70))
	assert.Equal(t, "good", colorClass(55))
	assert.Equal(t, "moderate", colorClass(30))
	assert.Equal(t, "poor", colorClass(15))
	assert.Equal(t, "critical", colorClass(0))
}
