package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/core/domain"
	"github.com/vietddude/deepwiki/internal/lifecycle"
)

type fakeLifecycle struct {
	job      *domain.Job
	err      error
	snapshot *lifecycle.Snapshot
	spec     domain.QuerySpec
	panics   bool
}

func (f *fakeLifecycle) Run(ctx context.Context, spec domain.QuerySpec, progress chan<- lifecycle.Progress) (*domain.Job, error) {
	if f.panics {
		panic("boom")
	}
	f.spec = spec
	return f.job, f.err
}

func (f *fakeLifecycle) GetResult(ctx context.Context, id string) (*lifecycle.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

type fakeRepos struct {
	err error
}

func (f *fakeRepos) RepoStatus(ctx context.Context, repo string) (domain.RepoInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.RepoInfo{"repo_name": repo, "indexed": true}, nil
}

func (f *fakeRepos) ListRepos(ctx context.Context, term string) (*domain.RepoSearch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RepoSearch{SearchTerm: term, Count: 1, Repositories: []json.RawMessage{json.RawMessage(`"a/b"`)}}, nil
}

func (f *fakeRepos) WarmRepo(ctx context.Context, repo string) (domain.RepoInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.RepoInfo{"repo_name": repo}, nil
}

const codemapChunk = `{"title":"Flow","traces":[{"id":"1","title":"Entry","locations":[{"id":"1a","path":"cmd/main.go","line_number":3,"title":"main"}]}]}`

func doneJob(t *testing.T) *domain.Job {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{
		"query_id": "q1",
		"queries": []any{map[string]any{
			"state":    "done",
			"response": []any{map[string]any{"type": "chunk", "data": codemapChunk}},
		}},
	})
	res, err := domain.BuildResult("q1", raw)
	if err != nil {
		t.Fatalf("BuildResult: %v", err)
	}
	job := domain.NewJob("q1", domain.QuerySpec{Mode: domain.ModeCodemap}, 120)
	if err := job.Transition(domain.JobPolling); err != nil {
		t.Fatal(err)
	}
	if err := job.Complete(res); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestValidateQuery(t *testing.T) {
	long := strings.Repeat("x", MaxQuestionLen+1)
	tests := []struct {
		name    string
		in      QueryInput
		wantErr bool
	}{
		{name: "valid", in: QueryInput{Question: "How?", Repos: []string{"a/b"}}},
		{name: "short question", in: QueryInput{Question: "hi", Repos: []string{"a/b"}}, wantErr: true},
		{name: "long question", in: QueryInput{Question: long, Repos: []string{"a/b"}}, wantErr: true},
		{name: "no repos", in: QueryInput{Question: "How?"}, wantErr: true},
		{name: "too many repos", in: QueryInput{Question: "How?", Repos: []string{"a/1", "a/2", "a/3", "a/4", "a/5", "a/6"}}, wantErr: true},
		{name: "bad repo", in: QueryInput{Question: "How?", Repos: []string{"react"}}, wantErr: true},
		{name: "nested repo", in: QueryInput{Question: "How?", Repos: []string{"a/b/c"}}, wantErr: true},
		{name: "bad mode", in: QueryInput{Question: "How?", Repos: []string{"a/b"}, Mode: "slow"}, wantErr: true},
		{name: "mode case", in: QueryInput{Question: "How?", Repos: []string{"a/b"}, Mode: "DEEP"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateQuery(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateQuery error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && (err.Kind != apierr.KindValidation || err.Retryable || err.Suggestion == "") {
				t.Errorf("unexpected error shape %+v", err)
			}
		})
	}
}

func TestValidateQuery_Defaults(t *testing.T) {
	spec, err := ValidateQuery(QueryInput{Question: "  Where?  ", Repos: []string{" a/b "}})
	if err != nil {
		t.Fatalf("ValidateQuery: %v", err)
	}
	if spec.Mode != domain.ModeFast || !spec.GenerateSummary || spec.Question != "Where?" || spec.Repositories[0] != "a/b" {
		t.Errorf("unexpected spec %+v", spec)
	}
}

func TestValidateSearch(t *testing.T) {
	if ValidateSearch("react") != nil {
		t.Error("react should be valid")
	}
	if ValidateSearch("  ") == nil {
		t.Error("blank term should be rejected")
	}
	if ValidateSearch(strings.Repeat("r", MaxSearchLen+1)) == nil {
		t.Error("long term should be rejected")
	}
}

func TestService_Query(t *testing.T) {
	lc := &fakeLifecycle{job: doneJob(t)}
	s := NewService(lc, &fakeRepos{}, nil)

	res := s.Query(context.Background(), QueryInput{
		Question: "Show the flow", Repos: []string{"a/b"}, Mode: "codemap", IncludeMermaid: true,
	}, nil)
	if !res.OK() {
		t.Fatalf("unexpected error %v", res.Error)
	}
	out, ok := res.Data.(QueryOutput)
	if !ok {
		t.Fatalf("unexpected data %T", res.Data)
	}
	if out.QueryID != "q1" || out.Status != "completed" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Codemap == nil || !strings.HasPrefix(out.MermaidDiagram, "flowchart TB") {
		t.Errorf("expected codemap and diagram, got %+v", out)
	}
	if lc.spec.Mode != domain.ModeCodemap {
		t.Errorf("mode not passed through: %s", lc.spec.Mode)
	}
}

func TestService_QueryMermaidOnlyForCodemap(t *testing.T) {
	s := NewService(&fakeLifecycle{job: doneJob(t)}, &fakeRepos{}, nil)
	res := s.Query(context.Background(), QueryInput{
		Question: "Show the flow", Repos: []string{"a/b"}, Mode: "fast", IncludeMermaid: true,
	}, nil)
	if out := res.Data.(QueryOutput); out.MermaidDiagram != "" {
		t.Error("diagram is only rendered in codemap mode")
	}
}

func TestService_QueryValidationSkipsRemote(t *testing.T) {
	lc := &fakeLifecycle{panics: true}
	s := NewService(lc, &fakeRepos{}, nil)
	res := s.Query(context.Background(), QueryInput{Question: "How?", Repos: []string{"bad"}}, nil)
	if !errors.Is(res.Error, apierr.ErrValidation) {
		t.Errorf("expected validation error, got %v", res.Error)
	}
}

func TestService_QueryTimeoutMentionsID(t *testing.T) {
	job := domain.NewJob("q9", domain.QuerySpec{}, 1)
	lc := &fakeLifecycle{job: job, err: apierr.New(apierr.KindTimeout, "too slow").AsTerminal()}
	s := NewService(lc, &fakeRepos{}, nil)

	res := s.Query(context.Background(), QueryInput{Question: "How?", Repos: []string{"a/b"}}, nil)
	if res.OK() || res.Error.Kind != apierr.KindTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if !strings.Contains(res.Error.Suggestion, "q9") || !strings.Contains(res.Error.Suggestion, "'fast' mode") {
		t.Errorf("suggestion should mention fast mode and the query id: %q", res.Error.Suggestion)
	}
}

func TestService_RecoversPanic(t *testing.T) {
	s := NewService(&fakeLifecycle{panics: true}, &fakeRepos{}, nil)
	res := s.Query(context.Background(), QueryInput{Question: "How?", Repos: []string{"a/b"}}, nil)
	if res.OK() || res.Error.Kind != apierr.KindUnknown {
		t.Errorf("expected Unknown error from panic, got %+v", res)
	}
}

func TestService_GetResult(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *lifecycle.Snapshot
		err      error
		check    func(t *testing.T, res Result)
	}{
		{
			name:     "pending",
			snapshot: &lifecycle.Snapshot{QueryID: "q1", State: domain.RemoteRunning},
			check: func(t *testing.T, res Result) {
				out, ok := res.Data.(PendingOutput)
				if !ok || out.Status != "running" || !strings.Contains(out.Message, "still running") {
					t.Errorf("unexpected pending output %+v", res.Data)
				}
			},
		},
		{
			name:     "done",
			snapshot: &lifecycle.Snapshot{QueryID: "q1", State: domain.RemoteDone, Terminal: true, Result: doneJob(t).Result},
			check: func(t *testing.T, res Result) {
				out, ok := res.Data.(QueryOutput)
				if !ok || out.MermaidDiagram == "" {
					t.Errorf("unexpected done output %+v", res.Data)
				}
			},
		},
		{
			name: "failed",
			snapshot: &lifecycle.Snapshot{QueryID: "q1", State: domain.RemoteFailed, Terminal: true,
				Error: apierr.New(apierr.KindServer, "query failed").AsTerminal()},
			check: func(t *testing.T, res Result) {
				if !errors.Is(res.Error, apierr.ErrServer) || res.Data != nil {
					t.Errorf("unexpected failed result %+v", res)
				}
			},
		},
		{
			name: "remote error",
			err:  apierr.New(apierr.KindNotFound, "unknown query").AsTerminal(),
			check: func(t *testing.T, res Result) {
				if !errors.Is(res.Error, apierr.ErrNotFound) {
					t.Errorf("expected NotFound, got %+v", res)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&fakeLifecycle{snapshot: tt.snapshot, err: tt.err}, &fakeRepos{}, nil)
			tt.check(t, s.GetResult(context.Background(), "q1", true))
		})
	}
}

func TestService_RepoTools(t *testing.T) {
	s := NewService(&fakeLifecycle{}, &fakeRepos{}, nil)
	ctx := context.Background()

	if res := s.RepoStatus(ctx, "facebook/react"); !res.OK() {
		t.Errorf("RepoStatus: %v", res.Error)
	}
	if res := s.RepoStatus(ctx, "react"); !errors.Is(res.Error, apierr.ErrValidation) {
		t.Errorf("expected validation error, got %+v", res)
	}

	res := s.SearchRepos(ctx, "react")
	if found, ok := res.Data.(*domain.RepoSearch); !ok || found.Count != 1 {
		t.Errorf("unexpected search result %+v", res)
	}

	res = s.WarmRepo(ctx, "facebook/react")
	info, ok := res.Data.(domain.RepoInfo)
	if !ok || info.Name() != "facebook/react" || info["message"] == nil {
		t.Errorf("unexpected warm result %+v", res)
	}
}

func TestService_RepoToolErrors(t *testing.T) {
	s := NewService(&fakeLifecycle{}, &fakeRepos{err: apierr.New(apierr.KindRateLimit, "slow down")}, nil)
	res := s.SearchRepos(context.Background(), "react")
	if res.OK() || res.Error.Kind != apierr.KindRateLimit || res.Data != nil {
		t.Errorf("expected rate limit error only, got %+v", res)
	}
}

func TestResult_JSON(t *testing.T) {
	data, err := json.Marshal(Result{Error: apierr.Validation("bad input")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), `"data"`) || !strings.Contains(string(data), `"kind":"ValidationError"`) {
		t.Errorf("unexpected JSON %s", data)
	}
}
