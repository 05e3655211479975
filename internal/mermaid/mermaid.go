// Package mermaid renders codemaps as Mermaid flowcharts.
package mermaid

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vietddude/deepwiki/internal/core/domain"
)

type traceColor struct {
	fill   string
	stroke string
}

// Subgraph palette, cycled by trace index.
var traceColors = []traceColor{
	{"#e8f5e9", "#4caf50"},
	{"#e3f2fd", "#2196f3"},
	{"#fff3e0", "#ff9800"},
	{"#f3e5f5", "#9c27b0"},
	{"#fff8e1", "#ffc107"},
	{"#fce4ec", "#e91e63"},
	{"#e0f2f1", "#009688"},
	{"#fbe9e7", "#ff5722"},
}

// SanitizeID replaces every character that is not a letter or digit with '_'.
func SanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}

// EscapeLabel makes s safe inside a quoted node label.
func EscapeLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}

func traceID(t domain.Trace) string {
	return SanitizeID("trace_" + t.ID)
}

func locationID(l domain.Location) string {
	return SanitizeID("loc_" + l.ID)
}

// Generate renders cm as a top-to-bottom flowchart: one subgraph per trace, solid
// links between consecutive locations of a trace, and dashed links from the last
// location of each trace to the first of the next. Output is deterministic.
func Generate(cm *domain.Codemap) string {
	var b strings.Builder
	b.WriteString("flowchart TB")
	if cm == nil {
		return b.String()
	}

	for _, t := range cm.Traces {
		fmt.Fprintf(&b, "\n\n    subgraph %s[\"%s. %s\"]", traceID(t), t.ID, EscapeLabel(t.Title))
		for _, l := range t.Locations {
			fmt.Fprintf(&b, "\n        %s[\"%s\\n%s:%d\"]",
				locationID(l), EscapeLabel(l.Title), fileName(l.Path), l.LineNumber)
		}
		b.WriteString("\n    end")
		for i := 0; i+1 < len(t.Locations); i++ {
			fmt.Fprintf(&b, "\n    %s --> %s", locationID(t.Locations[i]), locationID(t.Locations[i+1]))
		}
	}

	for i := 0; i+1 < len(cm.Traces); i++ {
		cur, next := cm.Traces[i].Locations, cm.Traces[i+1].Locations
		if len(cur) == 0 || len(next) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n    %s -.-> %s", locationID(cur[len(cur)-1]), locationID(next[0]))
	}

	b.WriteString("\n")
	for i, t := range cm.Traces {
		c := traceColors[i%len(traceColors)]
		fmt.Fprintf(&b, "\n    style %s fill:%s,stroke:%s,stroke-width:2px", traceID(t), c.fill, c.stroke)
	}
	return b.String()
}

// fileName returns the last slash-separated element of p, empty for a trailing slash.
func fileName(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}
