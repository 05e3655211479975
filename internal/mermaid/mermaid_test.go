package mermaid

import (
	"strings"
	"testing"

	"github.com/vietddude/deepwiki/internal/core/domain"
)

func TestSanitizeID(t *testing.T) {
	tests := map[string]string{
		"trace_1":     "trace_1",
		"loc_1a-b.c":  "loc_1a_b_c",
		"trace_x y/z": "trace_x_y_z",
		"loc_é1":      "loc_é1",
	}
	for in, want := range tests {
		if got := SanitizeID(in); got != want {
			t.Errorf("SanitizeID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"src/app/main.go": "main.go",
		"main.go":         "main.go",
		"":                "",
		"a/":              "",
		"/":               "",
	}
	for in, want := range tests {
		if got := fileName(in); got != want {
			t.Errorf("fileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeLabel(t *testing.T) {
	if got := EscapeLabel("say \"hi\"\nnow"); got != "say #quot;hi#quot; now" {
		t.Errorf("EscapeLabel = %q", got)
	}
}

func TestGenerate(t *testing.T) {
	cm := &domain.Codemap{
		Traces: []domain.Trace{
			{
				ID:    "1",
				Title: "Request \"entry\"",
				Locations: []domain.Location{
					{ID: "1a", Path: "src/server/main.go", LineNumber: 10, Title: "main"},
					{ID: "1b", Path: "handler.go", LineNumber: 42, Title: "serve"},
				},
			},
			{
				ID:    "2",
				Title: "Storage",
				Locations: []domain.Location{
					{ID: "2a", Path: "db/store.go", LineNumber: 7, Title: "save"},
				},
			},
		},
	}

	want := strings.Join([]string{
		"flowchart TB",
		"",
		`    subgraph trace_1["1. Request #quot;entry#quot;"]`,
		`        loc_1a["main\nmain.go:10"]`,
		`        loc_1b["serve\nhandler.go:42"]`,
		"    end",
		"    loc_1a --> loc_1b",
		"",
		`    subgraph trace_2["2. Storage"]`,
		`        loc_2a["save\nstore.go:7"]`,
		"    end",
		"    loc_1b -.-> loc_2a",
		"",
		"    style trace_1 fill:#e8f5e9,stroke:#4caf50,stroke-width:2px",
		"    style trace_2 fill:#e3f2fd,stroke:#2196f3,stroke-width:2px",
	}, "\n")

	got := Generate(cm)
	if got != want {
		t.Errorf("Generate mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
	if Generate(cm) != got {
		t.Error("output must be deterministic")
	}
}

func TestGenerate_ColorsCycle(t *testing.T) {
	cm := &domain.Codemap{}
	for i := 0; i < 9; i++ {
		cm.Traces = append(cm.Traces, domain.Trace{ID: string(rune('a' + i))})
	}
	out := Generate(cm)
	if !strings.Contains(out, "style trace_i fill:#e8f5e9,stroke:#4caf50") {
		t.Errorf("ninth trace should reuse the first color:\n%s", out)
	}
	if strings.Contains(out, "-.->") {
		t.Error("traces without locations must not be linked")
	}
}

func TestGenerate_Nil(t *testing.T) {
	if got := Generate(nil); got != "flowchart TB" {
		t.Errorf("Generate(nil) = %q", got)
	}
}
