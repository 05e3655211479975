package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryRequest is the body of a query submission.
type QueryRequest struct {
	EngineID          string   `json:"engine_id"`
	UserQuery         string   `json:"user_query"`
	Keywords          []string `json:"keywords"`
	RepoNames         []string `json:"repo_names"`
	AdditionalContext string   `json:"additional_context"`
	QueryID           string   `json:"query_id"`
	UseNotes          bool     `json:"use_notes"`
	AttachedContext   []any    `json:"attached_context"`
	GenerateSummary   bool     `json:"generate_summary"`
}

// NewQueryRequest builds the wire request for spec under queryID.
func NewQueryRequest(queryID string, spec QuerySpec) QueryRequest {
	return QueryRequest{
		EngineID:          spec.Mode.EngineID(),
		UserQuery:         spec.Question,
		Keywords:          []string{},
		RepoNames:         spec.Repositories,
		AdditionalContext: spec.Context,
		QueryID:           queryID,
		AttachedContext:   []any{},
		GenerateSummary:   spec.GenerateSummary,
	}
}

// RemoteState is the state the remote service reports for a query.
type RemoteState string

const (
	RemotePending RemoteState = "pending"
	RemoteRunning RemoteState = "running"
	RemoteDone    RemoteState = "done"
	RemoteFailed  RemoteState = "failed"
)

// Terminal reports whether the remote query has finished.
func (s RemoteState) Terminal() bool {
	return s == RemoteDone || s == RemoteFailed
}

// Chunk is one streamed piece of a query response.
type Chunk struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// QueryEntry is one query (or follow-up) inside a status response.
type QueryEntry struct {
	State    RemoteState     `json:"state"`
	Response []Chunk         `json:"response,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// ErrorMessage renders the entry's error field, which the service sends either as a
// string or as an object.
func (e QueryEntry) ErrorMessage() string {
	raw := bytes.TrimSpace(e.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "query failed"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "query failed"
		}
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}
	return string(raw)
}

// StatusResponse is the body returned by the query status endpoint.
type StatusResponse struct {
	QueryID string       `json:"query_id,omitempty"`
	Queries []QueryEntry `json:"queries"`
}

// Latest returns the last query entry, or nil when there is none yet.
func (r *StatusResponse) Latest() *QueryEntry {
	if len(r.Queries) == 0 {
		return nil
	}
	return &r.Queries[len(r.Queries)-1]
}

// State returns the state of the latest entry. An empty response counts as pending.
func (r *StatusResponse) State() RemoteState {
	if last := r.Latest(); last != nil && last.State != "" {
		return last.State
	}
	return RemotePending
}

// ParseStatus decodes a raw status payload.
func ParseStatus(raw []byte) (*StatusResponse, error) {
	var resp StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &resp, nil
}

// Result is the presentation of a completed query.
type Result struct {
	QueryID string          `json:"query_id"`
	Status  string          `json:"status"`
	Answer  string          `json:"answer,omitempty"`
	Codemap *Codemap        `json:"codemap,omitempty"`
	Queries json.RawMessage `json:"queries"`
}

// BuildResult derives a Result from a raw terminal status payload. The queries field
// is carried through byte-for-byte.
func BuildResult(queryID string, raw []byte) (*Result, error) {
	var envelope struct {
		QueryID string          `json:"query_id"`
		Queries json.RawMessage `json:"queries"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	status, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	if envelope.QueryID != "" {
		queryID = envelope.QueryID
	}
	queries := envelope.Queries
	if len(queries) == 0 {
		queries = json.RawMessage("[]")
	}

	res := &Result{
		QueryID: queryID,
		Status:  "completed",
		Queries: queries,
	}
	if last := status.Latest(); last != nil {
		res.Answer, res.Codemap = extractAnswer(last.Response)
	}
	return res, nil
}

// extractAnswer concatenates the text chunks of a response and picks out the first
// chunk that decodes to a codemap.
func extractAnswer(chunks []Chunk) (string, *Codemap) {
	var (
		sb      strings.Builder
		codemap *Codemap
	)
	for _, c := range chunks {
		if c.Type != "chunk" || len(c.Data) == 0 {
			continue
		}
		data := c.Data
		var text string
		if err := json.Unmarshal(data, &text); err == nil {
			trimmed := strings.TrimSpace(text)
			if !strings.HasPrefix(trimmed, "{") {
				sb.WriteString(text)
				continue
			}
			data = json.RawMessage(trimmed)
		}
		if codemap != nil {
			continue
		}
		var cm Codemap
		if err := json.Unmarshal(data, &cm); err == nil && len(cm.Traces) > 0 {
			codemap = &cm
		} else if text != "" {
			sb.WriteString(text)
		}
	}
	return sb.String(), codemap
}
