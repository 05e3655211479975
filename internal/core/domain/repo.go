package domain

import "encoding/json"

// RepoSearch is the result of a repository search.
type RepoSearch struct {
	SearchTerm   string            `json:"search_term"`
	Count        int               `json:"count"`
	Repositories []json.RawMessage `json:"repositories"`
}

// RepoInfo is the service's free-form description of one repository, always
// carrying the repo_name it was asked about.
type RepoInfo map[string]any

// Name returns the repository name recorded in the info.
func (r RepoInfo) Name() string {
	name, _ := r["repo_name"].(string)
	return name
}
