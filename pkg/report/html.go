package report

import (
	"bufio"
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/markup"
)

// AnnotatedHTML serializes render nodes into HTML spans. Groups become
// spans with a covered/uncovered class and a title carrying the count;
// indentation becomes a whitespace span. Line breaks are kept as newlines
// since the output sits in a <pre> block.
func AnnotatedHTML(nodes []markup.Node) template.HTML {
	var buf strings.Builder
	writeNodes(&buf, nodes)
	return template.HTML(buf.String())
}

func writeNodes(buf *strings.Builder, nodes []markup.Node) {
	for _, n := range nodes {
		switch n.Kind {
		case markup.NodeText:
			buf.WriteString(html.EscapeString(n.Text))
		case markup.NodeLineBreak:
			buf.WriteByte('\n')
		case markup.NodeWhitespace:
			buf.WriteString(`<span class="whitespace">`)
			buf.WriteString(strings.Repeat(" ", n.Width))
			buf.WriteString("</span>")
		case markup.NodeGroup:
			fmt.Fprintf(buf, `<span class="%s" title="%s">`, n.State(), html.EscapeString(n.Title()))
			writeNodes(buf, n.Children)
			buf.WriteString("</span>")
		}
	}
}

// lineNumbers produces the gutter for a view of n lines.
func lineNumbers(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

func colorClass(pct float64) string {
	switch {
	case pct >= 70:
		return "excellent"
	case pct >= 50:
		return "good"
	case pct >= 30:
		return "moderate"
	case pct >= 15:
		return "poor"
	}
	return "critical"
}

var funcMap = template.FuncMap{
	"annotate":    AnnotatedHTML,
	"lineNumbers": lineNumbers,
	"colorClass":  colorClass,
	"pct": func(c coverage.Counts) float64 {
		return c.Percent()
	},
	"formatPct": func(pct float64) string {
		return fmt.Sprintf("%.1f%%", pct)
	},
	"kindCounts": func(ms coverage.ModuleSummary, kind coverage.Kind) string {
		c, ok := ms.Kinds[kind]
		if !ok {
			return "n/a"
		}
		return fmt.Sprintf("%d/%d", c.Hit, c.Total)
	},
	"label": func(labels map[coverage.Kind]string, kind coverage.Kind) string {
		if l, ok := labels[kind]; ok {
			return l
		}
		return kind.Label()
	},
}

var reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))

type templateData struct {
	*Report
	Kinds []coverage.Kind
}

// WriteHTML executes the report template into w.
func WriteHTML(w io.Writer, r *Report) error {
	kinds := make(coverage.Regions, len(r.Summary.Kinds))
	for kind := range r.Summary.Kinds {
		kinds[kind] = nil
	}
	data := templateData{Report: r, Kinds: kinds.Kinds()}
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, creating parent directories.
func WriteFile(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 256*1024)
	if err := WriteHTML(w, r); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output file: %w", err)
	}
	return f.Close()
}

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            background: #f5f5f5;
            line-height: 1.6;
        }

        .container { max-width: 1800px; margin: 0 auto; padding: 20px; }

        .header {
            background: white;
            padding: 20px 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            margin-bottom: 20px;
        }
        .header h1 { color: #333; font-size: 22px; margin-bottom: 4px; }
        .header .subtitle { color: #666; font-size: 13px; }

        table.overview {
            width: 100%;
            border-collapse: collapse;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            margin-bottom: 20px;
            font-size: 13px;
        }
        table.overview th, table.overview td { padding: 8px 12px; text-align: left; border-bottom: 1px solid #eee; }
        table.overview th { background: #fafafa; color: #555; }
        table.overview tfoot td { font-weight: 600; }
        table.overview a { color: #667eea; text-decoration: none; }

        .pct { font-weight: 600; }
        .excellent { color: #10b981; }
        .good { color: #84cc16; }
        .moderate { color: #eab308; }
        .poor { color: #f97316; }
        .critical { color: #ef4444; }

        .module {
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            margin-bottom: 20px;
            padding: 16px 20px;
        }
        .module h2 { font-size: 16px; color: #333; }
        .module h3 { font-size: 13px; color: #555; margin: 12px 0 6px; }
        .module .path { color: #888; font-size: 12px; }
        .module .error { color: #ef4444; font-size: 12px; }

        .source {
            display: flex;
            font-family: 'SF Mono', Monaco, 'Cascadia Code', 'Roboto Mono', Consolas, monospace;
            font-size: 12px;
            line-height: 1.5;
            overflow-x: auto;
            border: 1px solid #eee;
        }
        .source pre { margin: 0; padding: 4px 8px; }
        .source .gutter { color: #999; text-align: right; background: #fafafa; user-select: none; }
        .source .covered { background: rgba(16, 185, 129, 0.15); }
        .source .uncovered { background: rgba(239, 68, 68, 0.25); }
        .source .whitespace { background: none; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>{{.Title}}</h1>
        <div class="subtitle">Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}} &middot; {{len .Modules}} modules &middot; {{.Summary.Total.Hit}}/{{.Summary.Total.Total}} regions covered</div>
    </div>

    <table class="overview">
        <thead>
            <tr>
                <th>Module</th>
                {{range .Kinds}}<th>{{label $.Labels .}}</th>{{end}}
                <th>Coverage</th>
            </tr>
        </thead>
        <tbody>
        {{range $i, $m := .Summary.Modules}}
            <tr>
                <td>{{with index $.Modules $i}}{{if .HasSource}}<a href="#{{.Anchor}}">{{.Module}}</a>{{else}}{{.Module}}{{end}}{{end}}</td>
                {{range $.Kinds}}<td>{{kindCounts $m .}}</td>{{end}}
                {{$p := pct $m.Total}}<td class="pct {{colorClass $p}}">{{formatPct $p}}</td>
            </tr>
        {{end}}
        </tbody>
        <tfoot>
            <tr>
                <td>Total</td>
                {{range .Kinds}}{{$c := index $.Summary.Kinds .}}<td>{{$c.Hit}}/{{$c.Total}}</td>{{end}}
                {{$p := pct .Summary.Total}}<td class="pct {{colorClass $p}}">{{formatPct $p}}</td>
            </tr>
        </tfoot>
    </table>

    {{range .Modules}}{{if .HasSource}}
    <div class="module" id="{{.Anchor}}">
        <h2>{{.Module}}</h2>
        {{if .Path}}<div class="path">{{.Path}}</div>{{end}}
        {{range .Sections}}
        <h3>{{.Label}}{{if .Kind}} &middot; {{.Counts.Hit}}/{{.Counts.Total}}{{end}}</h3>
        {{if .Error}}<div class="error">Regions could not be nested: {{.Error}}</div>{{else}}
        <div class="source"><pre class="gutter">{{lineNumbers .Lines}}</pre><pre class="code">{{annotate .Nodes}}</pre></div>
        {{end}}
        {{end}}
    </div>
    {{end}}{{end}}
</div>
</body>
</html>
`
