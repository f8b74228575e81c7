package cache

import (
	"time"

	gogithub "github.com/google/go-github/v57/github"
)

// Repo is the trimmed repository entry used for list views.
type Repo struct {
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	Stars       int       `json:"stargazers_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot is the unit of on-disk persistence. Freshness is judged
// solely by Timestamp.
type Snapshot struct {
	Timestamp time.Time                       `json:"timestamp"`
	Repos     []Repo                          `json:"repos"`
	Detail    map[string]*gogithub.Repository `json:"repo_detail"`
	Readmes   map[string]string               `json:"readmes"`
	Summaries map[string]string               `json:"summaries"`
}
