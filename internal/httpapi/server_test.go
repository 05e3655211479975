package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/infra/rpc/gate"
	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/lifecycle"
	"github.com/vietddude/deepwiki/internal/tools"
)

type fakeTools struct {
	result    tools.Result
	lastInput tools.QueryInput
	lastArg   string
	mermaid   bool
	progress  []lifecycle.Progress
}

func (f *fakeTools) Query(ctx context.Context, in tools.QueryInput, progress chan<- lifecycle.Progress) tools.Result {
	f.lastInput = in
	for _, p := range f.progress {
		progress <- p
	}
	return f.result
}

func (f *fakeTools) GetResult(ctx context.Context, id string, includeMermaid bool) tools.Result {
	f.lastArg, f.mermaid = id, includeMermaid
	return f.result
}

func (f *fakeTools) RepoStatus(ctx context.Context, repo string) tools.Result {
	f.lastArg = repo
	return f.result
}

func (f *fakeTools) SearchRepos(ctx context.Context, term string) tools.Result {
	f.lastArg = term
	return f.result
}

func (f *fakeTools) WarmRepo(ctx context.Context, repo string) tools.Result {
	f.lastArg = repo
	return f.result
}

type fakeHealth struct {
	health provider.HealthStatus
}

func (f *fakeHealth) Health() provider.HealthStatus { return f.health }
func (f *fakeHealth) GateStats() gate.Stats         { return gate.Stats{Capacity: 5} }

func newTestServer(ft *fakeTools, fh *fakeHealth) *httptest.Server {
	if fh == nil {
		fh = &fakeHealth{health: provider.HealthStatus{Available: true}}
	}
	s := NewServer(Config{Port: 0}, ft, fh, nil)
	return httptest.NewServer(s.Handler())
}

func TestRoutes(t *testing.T) {
	ft := &fakeTools{result: tools.Result{Data: map[string]any{"ok": true}}}
	ts := newTestServer(ft, nil)
	defer ts.Close()

	tests := []struct {
		method  string
		path    string
		wantArg string
	}{
		{http.MethodGet, "/v1/query/q-123?mermaid=true", "q-123"},
		{http.MethodGet, "/v1/repos?search=react", "react"},
		{http.MethodGet, "/v1/repos/facebook/react/status", "facebook/react"},
		{http.MethodPost, "/v1/repos/facebook/react/warm", "facebook/react"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if ft.lastArg != tt.wantArg {
				t.Errorf("argument = %q, want %q", ft.lastArg, tt.wantArg)
			}
		})
	}
	if !ft.mermaid {
		t.Error("mermaid flag not passed through")
	}
}

func TestQuery_JSON(t *testing.T) {
	ft := &fakeTools{result: tools.Result{Data: tools.QueryOutput{QueryID: "q1", Status: "completed"}}}
	ts := newTestServer(ft, nil)
	defer ts.Close()

	body := `{"question":"How does it work?","repos":["a/b"],"mode":"deep"}`
	resp, err := http.Post(ts.URL+"/v1/query", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Data tools.QueryOutput `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.QueryID != "q1" {
		t.Errorf("query id = %q", out.Data.QueryID)
	}
	if ft.lastInput.Mode != "deep" || ft.lastInput.Repos[0] != "a/b" {
		t.Errorf("input not decoded: %+v", ft.lastInput)
	}
}

func TestQuery_BadBody(t *testing.T) {
	ts := newTestServer(&fakeTools{}, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/query", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		kind apierr.Kind
		want int
	}{
		{apierr.KindValidation, http.StatusBadRequest},
		{apierr.KindNotFound, http.StatusNotFound},
		{apierr.KindRateLimit, http.StatusTooManyRequests},
		{apierr.KindTimeout, http.StatusGatewayTimeout},
		{apierr.KindServer, http.StatusBadGateway},
		{apierr.KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ft := &fakeTools{result: tools.Result{Error: apierr.New(tt.kind, "failed")}}
			ts := newTestServer(ft, nil)
			defer ts.Close()

			resp, err := http.Get(ts.URL + "/v1/repos/a/b/status")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var out map[string]map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out["error"]["kind"] != string(tt.kind) || out["error"]["suggestion"] == "" {
				t.Errorf("unexpected body %v", out)
			}
		})
	}
}

func TestQuery_Stream(t *testing.T) {
	ft := &fakeTools{
		result: tools.Result{Data: tools.QueryOutput{QueryID: "q1", Status: "completed"}},
		progress: []lifecycle.Progress{
			{JobID: "q1", Attempt: 1, MaxAttempts: 120, Message: "Query status: running"},
			{JobID: "q1", Attempt: 2, MaxAttempts: 120, Message: "Query status: running"},
		},
	}
	ts := newTestServer(ft, nil)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/query",
		strings.NewReader(`{"question":"How?","repos":["a/b"]}`))
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	if len(events) == 0 || events[len(events)-1] != "result" {
		t.Fatalf("stream should end with a result event, got %v", events)
	}
	for _, e := range events[:len(events)-1] {
		if e != "progress" {
			t.Errorf("unexpected event %q before result", e)
		}
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     provider.HealthStatus
		wantStatus string
		wantCode   int
	}{
		{
			name:       "healthy",
			health:     provider.HealthStatus{Available: true, MonitorStats: &provider.MonitorStats{Status: provider.StatusHealthy}},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name:       "throttled",
			health:     provider.HealthStatus{Available: true, MonitorStats: &provider.MonitorStats{Status: provider.StatusThrottled}},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name:       "unavailable",
			health:     provider.HealthStatus{Available: false},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(&fakeTools{}, &fakeHealth{health: tt.health})
			defer ts.Close()

			resp, err := http.Get(ts.URL + "/health")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("code = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			var body map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&body)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %q, want %q", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestHealthDetailedAndMetrics(t *testing.T) {
	ts := newTestServer(&fakeTools{}, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body map[string]json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if _, ok := body["gate"]; !ok {
		t.Errorf("detailed health should include gate stats: %v", body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
