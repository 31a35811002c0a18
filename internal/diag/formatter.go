package diag

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Formatter renders diagnostics with source code snippets and underlines.
type Formatter struct {
	out         io.Writer
	sourceCache map[string]string
}

// NewFormatter creates a formatter writing to w. A nil w writes to stderr.
func NewFormatter(w io.Writer) *Formatter {
	if w == nil {
		w = os.Stderr
	}
	return &Formatter{
		out:         w,
		sourceCache: make(map[string]string),
	}
}

// AddSource registers in-memory source text for a filename, bypassing disk.
func (f *Formatter) AddSource(filename, src string) {
	f.sourceCache[filename] = src
}

func (f *Formatter) loadSource(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("no filename")
	}
	if src, ok := f.sourceCache[filename]; ok {
		return src, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	f.sourceCache[filename] = string(data)
	return string(data), nil
}

// Format renders a single diagnostic.
func (f *Formatter) Format(d Diagnostic) {
	f.printHeader(d)

	spans := d.LabeledSpans
	if len(spans) == 0 && d.Span.IsValid() {
		spans = []LabeledSpan{{Span: d.Span, Style: "primary"}}
	}

	byFile := make(map[string][]LabeledSpan)
	var order []string
	for _, ls := range spans {
		name := ls.Span.Filename
		if _, seen := byFile[name]; !seen {
			order = append(order, name)
		}
		byFile[name] = append(byFile[name], ls)
	}

	for _, name := range order {
		src, err := f.loadSource(name)
		if err != nil {
			if d.Span.IsValid() {
				fmt.Fprintf(f.out, "  --> %s:%d:%d\n", name, d.Span.Line, d.Span.Column)
			}
			continue
		}
		f.printFileSpans(name, src, byFile[name])
	}

	if d.Help != "" {
		fmt.Fprintf(f.out, "help: %s\n", d.Help)
	}
	for _, note := range d.Notes {
		fmt.Fprintf(f.out, "note: %s\n", note)
	}
}

func (f *Formatter) printHeader(d Diagnostic) {
	severity := string(d.Severity)
	if severity == "" {
		severity = string(SeverityError)
	}
	if d.Code != "" {
		fmt.Fprintf(f.out, "%s[%s]: %s\n", severity, d.Code, d.Message)
	} else {
		fmt.Fprintf(f.out, "%s: %s\n", severity, d.Message)
	}
}

func (f *Formatter) printFileSpans(filename, src string, spans []LabeledSpan) {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Span.Line != spans[j].Span.Line {
			return spans[i].Span.Line < spans[j].Span.Line
		}
		return spans[i].Span.Column < spans[j].Span.Column
	})

	lines := strings.Split(src, "\n")
	first := spans[0].Span
	fmt.Fprintf(f.out, "  --> %s:%d:%d\n", filename, first.Line, first.Column)

	gutter := len(fmt.Sprintf("%d", spans[len(spans)-1].Span.Line))
	fmt.Fprintf(f.out, "%s |\n", strings.Repeat(" ", gutter))

	for _, ls := range spans {
		line := ls.Span.Line
		if line < 1 || line > len(lines) {
			continue
		}
		text := lines[line-1]
		fmt.Fprintf(f.out, "%*d | %s\n", gutter, line, text)

		// Underline the span on this line.
		col := ls.Span.Column
		if col < 1 {
			col = 1
		}
		width := ls.Span.End - ls.Span.Start
		if width < 1 {
			width = 1
		}
		if col-1+width > len(text)+1 {
			width = len(text) - col + 2
			if width < 1 {
				width = 1
			}
		}
		marker := "^"
		if ls.Style == "secondary" {
			marker = "-"
		}
		underline := strings.Repeat(" ", col-1) + strings.Repeat(marker, width)
		if ls.Label != "" {
			underline += " " + ls.Label
		}
		fmt.Fprintf(f.out, "%s | %s\n", strings.Repeat(" ", gutter), underline)
	}
}
