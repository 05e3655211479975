// Package tools exposes the query lifecycle as five caller-facing operations. Every
// operation returns a Result carrying either data or a structured error, never both.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/core/domain"
	"github.com/vietddude/deepwiki/internal/lifecycle"
	"github.com/vietddude/deepwiki/internal/mermaid"
)

// Result is the tagged outcome of a tool call.
type Result struct {
	Data  any           `json:"data,omitempty"`
	Error *apierr.Error `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Error == nil
}

func success(data any) Result {
	return Result{Data: data}
}

func failure(err error) Result {
	return Result{Error: apierr.From(err)}
}

// QueryInput is the input of the query tool.
type QueryInput struct {
	Question        string   `json:"question"`
	Repos           []string `json:"repos"`
	Mode            string   `json:"mode,omitempty"`
	Context         string   `json:"context,omitempty"`
	GenerateSummary *bool    `json:"generate_summary,omitempty"`
	IncludeMermaid  bool     `json:"include_mermaid,omitempty"`
}

// QueryOutput is a completed query.
type QueryOutput struct {
	QueryID        string          `json:"query_id"`
	Status         string          `json:"status"`
	Answer         string          `json:"answer,omitempty"`
	Queries        json.RawMessage `json:"queries"`
	Codemap        *domain.Codemap `json:"codemap,omitempty"`
	MermaidDiagram string          `json:"mermaid_diagram,omitempty"`
}

// PendingOutput describes a query that has not finished.
type PendingOutput struct {
	QueryID string `json:"query_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Lifecycle runs queries to completion and serves finished ones.
type Lifecycle interface {
	Run(ctx context.Context, spec domain.QuerySpec, progress chan<- lifecycle.Progress) (*domain.Job, error)
	GetResult(ctx context.Context, id string) (*lifecycle.Snapshot, error)
}

// Repos answers repository questions.
type Repos interface {
	RepoStatus(ctx context.Context, repo string) (domain.RepoInfo, error)
	ListRepos(ctx context.Context, term string) (*domain.RepoSearch, error)
	WarmRepo(ctx context.Context, repo string) (domain.RepoInfo, error)
}

// Service implements the tool operations.
type Service struct {
	lifecycle Lifecycle
	repos     Repos
	log       *slog.Logger
}

// NewService creates a tool service.
func NewService(lc Lifecycle, repos Repos, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{lifecycle: lc, repos: repos, log: log}
}

// Query submits a question and waits for the answer. Progress snapshots are offered
// to progress while waiting; it may be nil.
func (s *Service) Query(ctx context.Context, in QueryInput, progress chan<- lifecycle.Progress) (res Result) {
	defer s.recover("query", &res)

	spec, verr := ValidateQuery(in)
	if verr != nil {
		return Result{Error: verr}
	}

	s.log.Info("Running query", "mode", spec.Mode, "repos", spec.Repositories)
	job, err := s.lifecycle.Run(ctx, spec, progress)
	if err != nil {
		apiErr := apierr.From(err)
		if job != nil && apiErr.Kind == apierr.KindTimeout {
			apiErr = apiErr.WithSuggestion(fmt.Sprintf(
				"%s The query may still finish; fetch it later with query id %s.", apiErr.Suggestion, job.ID))
		}
		return Result{Error: apiErr}
	}
	includeMermaid := in.IncludeMermaid && spec.Mode == domain.ModeCodemap
	return success(formatResult(job.Result, includeMermaid))
}

// GetResult fetches a previously submitted query once, without waiting.
func (s *Service) GetResult(ctx context.Context, id string, includeMermaid bool) (res Result) {
	defer s.recover("get_result", &res)

	if verr := ValidateQueryID(id); verr != nil {
		return Result{Error: verr}
	}
	snap, err := s.lifecycle.GetResult(ctx, strings.TrimSpace(id))
	if err != nil {
		return failure(err)
	}
	switch {
	case snap.Error != nil:
		return Result{Error: snap.Error}
	case snap.Result != nil:
		return success(formatResult(snap.Result, includeMermaid))
	}
	return success(PendingOutput{
		QueryID: snap.QueryID,
		Status:  string(snap.State),
		Message: fmt.Sprintf("Query is still %s. Please try again in a few seconds.", snap.State),
	})
}

// RepoStatus reports whether repo is indexed.
func (s *Service) RepoStatus(ctx context.Context, repo string) (res Result) {
	defer s.recover("repo_status", &res)

	repo = strings.TrimSpace(repo)
	if verr := ValidateRepo(repo); verr != nil {
		return Result{Error: verr}
	}
	info, err := s.repos.RepoStatus(ctx, repo)
	if err != nil {
		return failure(err)
	}
	return success(info)
}

// SearchRepos lists indexed repositories matching term.
func (s *Service) SearchRepos(ctx context.Context, term string) (res Result) {
	defer s.recover("search_repos", &res)

	if verr := ValidateSearch(term); verr != nil {
		return Result{Error: verr}
	}
	found, err := s.repos.ListRepos(ctx, strings.TrimSpace(term))
	if err != nil {
		return failure(err)
	}
	return success(found)
}

// WarmRepo asks the service to pre-load repo for faster queries.
func (s *Service) WarmRepo(ctx context.Context, repo string) (res Result) {
	defer s.recover("warm_repo", &res)

	repo = strings.TrimSpace(repo)
	if verr := ValidateRepo(repo); verr != nil {
		return Result{Error: verr}
	}
	info, err := s.repos.WarmRepo(ctx, repo)
	if err != nil {
		return failure(err)
	}
	info["message"] = fmt.Sprintf("Repository '%s' cache warmed successfully", repo)
	info["next_step"] = "You can now query this repository"
	return success(info)
}

// recover turns a panic in a tool call into an Unknown error result.
func (s *Service) recover(tool string, res *Result) {
	if r := recover(); r != nil {
		s.log.Error("Tool call panicked", "tool", tool, "panic", r)
		*res = Result{Error: apierr.New(apierr.KindUnknown, "internal error in %s", tool).AsTerminal()}
	}
}

func formatResult(r *domain.Result, includeMermaid bool) QueryOutput {
	out := QueryOutput{
		QueryID: r.QueryID,
		Status:  r.Status,
		Answer:  r.Answer,
		Queries: r.Queries,
	}
	if includeMermaid && r.Codemap != nil {
		out.Codemap = r.Codemap
		out.MermaidDiagram = mermaid.Generate(r.Codemap)
	}
	return out
}
