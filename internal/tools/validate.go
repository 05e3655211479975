package tools

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/core/domain"
)

// Input limits.
const (
	MinQuestionLen = 3
	MaxQuestionLen = 2000
	MaxRepos       = 5
	MaxSearchLen   = 100
)

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

const repoSuggestion = "Use the 'owner/repo' format, for example 'facebook/react'."

// ValidateRepo checks that repo is an owner/name identifier.
func ValidateRepo(repo string) *apierr.Error {
	if !repoPattern.MatchString(repo) {
		return apierr.Validation("invalid repository format: %q", repo).WithSuggestion(repoSuggestion)
	}
	return nil
}

// ValidateQuery checks in and turns it into a QuerySpec.
func ValidateQuery(in QueryInput) (domain.QuerySpec, *apierr.Error) {
	question := strings.TrimSpace(in.Question)
	if n := utf8.RuneCountInString(question); n < MinQuestionLen || n > MaxQuestionLen {
		return domain.QuerySpec{}, apierr.Validation(
			"question must be between %d and %d characters, got %d", MinQuestionLen, MaxQuestionLen, n)
	}
	if len(in.Repos) == 0 || len(in.Repos) > MaxRepos {
		return domain.QuerySpec{}, apierr.Validation(
			"between 1 and %d repositories are required, got %d", MaxRepos, len(in.Repos))
	}
	repos := make([]string, 0, len(in.Repos))
	for _, r := range in.Repos {
		r = strings.TrimSpace(r)
		if err := ValidateRepo(r); err != nil {
			return domain.QuerySpec{}, err
		}
		repos = append(repos, r)
	}
	mode, err := domain.ParseMode(strings.ToLower(strings.TrimSpace(in.Mode)))
	if err != nil {
		return domain.QuerySpec{}, apierr.Validation("%v", err).
			WithSuggestion("Use one of the modes: fast, deep, codemap.")
	}

	summary := true
	if in.GenerateSummary != nil {
		summary = *in.GenerateSummary
	}
	return domain.QuerySpec{
		Question:        question,
		Repositories:    repos,
		Mode:            mode,
		Context:         strings.TrimSpace(in.Context),
		GenerateSummary: summary,
	}, nil
}

// ValidateSearch checks a repository search term.
func ValidateSearch(term string) *apierr.Error {
	n := utf8.RuneCountInString(strings.TrimSpace(term))
	if n < 1 || n > MaxSearchLen {
		return apierr.Validation("search term must be between 1 and %d characters, got %d", MaxSearchLen, n)
	}
	return nil
}

// ValidateQueryID checks a query id passed back by a caller.
func ValidateQueryID(id string) *apierr.Error {
	if strings.TrimSpace(id) == "" {
		return apierr.Validation("query id is required")
	}
	return nil
}
