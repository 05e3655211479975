package domain

// Location is a single point in a codemap trace.
type Location struct {
	ID          string `json:"id"`
	LineContent string `json:"line_content"`
	Path        string `json:"path"`
	LineNumber  int    `json:"line_number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Trace is an ordered sequence of related locations.
type Trace struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Locations   []Location `json:"locations"`
}

// Codemap is the payload produced by codemap mode.
type Codemap struct {
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Traces        []Trace        `json:"traces"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	WorkspaceInfo map[string]any `json:"workspace_info,omitempty"`
}
