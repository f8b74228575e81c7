// Package github adapts the GitHub REST API for the cache refresh
// pipeline.
//
// The client resolves the account owner lazily from the authenticated
// user and caches it for the process lifetime. Missing READMEs, missing
// files, and undecodable file contents are reported as empty strings,
// not errors.
package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"unicode/utf8"

	gogithub "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/folio/internal/config"
)

const (
	readmeMediaType = "application/vnd.github.v3.html"
	rawMediaType    = "application/vnd.github.v3.raw"
)

// TreeEntry is one entry of a recursive repository tree listing.
type TreeEntry struct {
	Path string
	Size int
	Type string
}

// Client wraps the GitHub API for one account.
type Client struct {
	gh     *gogithub.Client
	logger *zap.Logger

	mu    sync.Mutex
	owner string
}

// Option customizes a Client.
type Option func(*Client) error

// WithBaseURL points the client at a different API endpoint. Used in
// tests against httptest servers.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		c.gh.BaseURL = u
		return nil
	}
}

// NewClient creates a GitHub client. An unset token leaves the client
// unauthenticated; owner resolution then requires cfg.Owner.
func NewClient(ctx context.Context, cfg config.GitHubConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var hc *http.Client
	if cfg.Token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
		hc = oauth2.NewClient(ctx, ts)
	}

	c := &Client{
		gh:     gogithub.NewClient(hc),
		logger: logger,
		owner:  cfg.Owner,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Owner returns the account owner, resolving the authenticated login on
// first use and caching it for the process lifetime.
func (c *Client) Owner(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owner != "" {
		return c.owner, nil
	}

	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to resolve authenticated user: %w", err)
	}
	c.owner = user.GetLogin()
	c.logger.Debug("resolved github owner", zap.String("owner", c.owner))
	return c.owner, nil
}

// ListRepos returns the account's public repositories, most recently
// updated first, capped at 100.
func (c *Client) ListRepos(ctx context.Context) ([]*gogithub.Repository, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gogithub.RepositoryListOptions{
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	repos, _, err := c.gh.Repositories.List(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, nil
}

// GetRepo returns the full metadata for one repository.
func (c *Client) GetRepo(ctx context.Context, name string) (*gogithub.Repository, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s: %w", name, err)
	}
	return repo, nil
}

// GetReadmeHTML returns the GitHub-rendered README markup. A missing
// README yields an empty string, not an error.
func (c *Client) GetReadmeHTML(ctx context.Context, name string) (string, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return "", err
	}
	return c.rawGet(ctx, fmt.Sprintf("repos/%s/%s/readme", owner, name), readmeMediaType)
}

// GetTree returns the recursive tree listing of the repository's
// default branch.
func (c *Client) GetTree(ctx context.Context, name string) ([]TreeEntry, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, err
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default branch for %s: %w", name, err)
	}
	ref := repo.GetDefaultBranch()
	if ref == "" {
		ref = "main"
	}

	tree, _, err := c.gh.Git.GetTree(ctx, owner, name, ref, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tree for %s: %w", name, err)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			Size: e.GetSize(),
			Type: e.GetType(),
		})
	}
	return entries, nil
}

// GetFileRaw returns the raw text contents of one file. Missing files
// and contents that do not decode as UTF-8 yield an empty string.
func (c *Client) GetFileRaw(ctx context.Context, name, path string) (string, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return "", err
	}

	content, err := c.rawGet(ctx, fmt.Sprintf("repos/%s/%s/contents/%s", owner, name, path), rawMediaType)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(content) {
		c.logger.Debug("skipping undecodable file", zap.String("repo", name), zap.String("path", path))
		return "", nil
	}
	return content, nil
}

// rawGet performs a GET with a non-JSON media type and returns the body
// as a string. A 404 yields an empty string.
func (c *Client) rawGet(ctx context.Context, urlPath, accept string) (string, error) {
	req, err := c.gh.NewRequest(http.MethodGet, urlPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", urlPath, err)
	}
	req.Header.Set("Accept", accept)

	var buf bytes.Buffer
	if _, err := c.gh.Do(ctx, req, &buf); err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("request for %s failed: %w", urlPath, err)
	}
	return buf.String(), nil
}

func isNotFound(err error) bool {
	var errResp *gogithub.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode == http.StatusNotFound
	}
	return false
}
