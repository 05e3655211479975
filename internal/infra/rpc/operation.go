package rpc

import (
	"net/http"
	"net/url"

	"github.com/vietddude/deepwiki/internal/core/domain"
	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
)

// Endpoint names used for logs and metrics.
const (
	EndpointSubmitQuery = "submit_query"
	EndpointQueryStatus = "query_status"
	EndpointRepoStatus  = "repo_status"
	EndpointListRepos   = "list_repos"
	EndpointWarmRepo    = "warm_repo"
)

// NewSubmitOperation creates the query submission call.
func NewSubmitOperation(req domain.QueryRequest) Operation {
	return provider.Operation{
		Name:   EndpointSubmitQuery,
		Method: http.MethodPost,
		Path:   "/ada/query",
		Body:   req,
	}
}

// NewStatusOperation creates the status call for queryID.
func NewStatusOperation(queryID string) Operation {
	return provider.Operation{
		Name: EndpointQueryStatus,
		Path: "/ada/query/" + url.PathEscape(queryID),
	}
}

// NewRepoStatusOperation creates the indexing-status call for repo.
func NewRepoStatusOperation(repo string) Operation {
	return provider.Operation{
		Name:  EndpointRepoStatus,
		Path:  "/ada/public_repo_indexing_status",
		Query: url.Values{"repo_name": {repo}},
	}
}

// NewListReposOperation creates the repository search call.
func NewListReposOperation(term string) Operation {
	return provider.Operation{
		Name:  EndpointListRepos,
		Path:  "/ada/list_public_indexes",
		Query: url.Values{"search_repo": {term}},
	}
}

// NewWarmRepoOperation creates the cache pre-warm call for repo.
func NewWarmRepoOperation(repo string) Operation {
	return provider.Operation{
		Name:   EndpointWarmRepo,
		Method: http.MethodPost,
		Path:   "/ada/warm_public_repo",
		Query:  url.Values{"repo_name": {repo}},
	}
}
