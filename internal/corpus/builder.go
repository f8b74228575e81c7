// Package corpus builds a fallback text corpus from a repository's
// source files, used for summarization when no README exists.
package corpus

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/github"
)

// extensionPreference ranks source-file extensions; earlier entries are
// preferred when selecting candidate files.
var extensionPreference = []string{".py", ".js", ".ts", ".java", ".c", ".cpp", ".cc", ".h"}

// encodingName must match the summarization model's token accounting.
const encodingName = "cl100k_base"

// Source is the subset of the GitHub client the builder needs.
type Source interface {
	GetTree(ctx context.Context, name string) ([]github.TreeEntry, error)
	GetFileRaw(ctx context.Context, name, path string) (string, error)
}

// encoder counts tokens the way the target model does.
type encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// Builder selects and concatenates source files up to a token budget.
type Builder struct {
	source     Source
	enc        encoder
	tokenLimit int
	logger     *zap.Logger
}

// NewBuilder creates a corpus builder. The tokenizer is resolved once
// here; if it cannot be loaded the builder reports unavailable and
// Build always returns an empty corpus rather than miscounting against
// the budget.
func NewBuilder(source Source, tokenLimit int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Builder{
		source:     source,
		tokenLimit: tokenLimit,
		logger:     logger,
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		logger.Warn("tokenizer unavailable, code corpus generation disabled", zap.Error(err))
		return b
	}
	b.enc = enc
	return b
}

// Available reports whether the tokenizer was resolved at startup.
func (b *Builder) Available() bool {
	return b.enc != nil
}

// candidate is one selectable file from the tree.
type candidate struct {
	rank int
	size int
	path string
}

// Build returns concatenated source files for the repository, each
// prefixed with a path header, up to the token budget. It returns an
// empty string when the tokenizer is unavailable, the tree cannot be
// fetched, or no candidate files exist.
func (b *Builder) Build(ctx context.Context, repoName string) string {
	if !b.Available() {
		return ""
	}

	tree, err := b.source.GetTree(ctx, repoName)
	if err != nil {
		b.logger.Warn("unable to fetch repo tree", zap.String("repo", repoName), zap.Error(err))
		return ""
	}

	candidates := selectCandidates(tree)

	var parts []string
	accumulated := 0
	for _, c := range candidates {
		content, err := b.source.GetFileRaw(ctx, repoName, c.path)
		if err != nil {
			b.logger.Debug("skipping file", zap.String("path", c.path), zap.Error(err))
			continue
		}
		if content == "" {
			continue
		}

		snippet := fmt.Sprintf("\n===== FILE: %s =====\n%s\n", c.path, strings.TrimSpace(content))
		tokens := len(b.enc.Encode(snippet, nil, nil))

		// Stop at the first file that would overflow the budget.
		if accumulated+tokens > b.tokenLimit {
			break
		}

		parts = append(parts, snippet)
		accumulated += tokens
	}

	return strings.Join(parts, "\n")
}

// selectCandidates filters the tree to preferred source files, ordered
// by extension rank then size descending.
func selectCandidates(tree []github.TreeEntry) []candidate {
	var candidates []candidate
	for _, entry := range tree {
		if entry.Type != "blob" {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Path))
		rank := extensionRank(ext)
		if rank < 0 {
			continue
		}
		candidates = append(candidates, candidate{rank: rank, size: entry.Size, path: entry.Path})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].size > candidates[j].size
	})
	return candidates
}

func extensionRank(ext string) int {
	for i, e := range extensionPreference {
		if e == ext {
			return i
		}
	}
	return -1
}
