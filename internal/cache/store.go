// Package cache owns the in-memory snapshot of repository metadata,
// READMEs and summaries, mirrored to two on-disk JSON artifacts for
// fast restart.
//
// The store keeps the repo list, detail map and README map consistent:
// Replace swaps all three together under one lock, so readers never
// observe a partially rebuilt state. Summaries are updated
// incrementally between wholesale refreshes and persisted in their own
// file.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

const (
	snapshotFile  = "cache.json"
	summariesFile = "summaries.json"
)

// Store holds the cached state for the life of the process.
type Store struct {
	logger *zap.Logger
	dir    string

	mu        sync.RWMutex
	timestamp time.Time
	repos     []Repo
	detail    map[string]*gogithub.Repository
	readmes   map[string]string
	summaries map[string]string
}

// New creates an empty store persisting under dir.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Store{
		logger:    logger,
		dir:       dir,
		detail:    map[string]*gogithub.Repository{},
		readmes:   map[string]string{},
		summaries: map[string]string{},
	}, nil
}

// Dir returns the data directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Replace swaps the repo list, detail map and README map atomically and
// stamps the snapshot time. Summaries are left untouched.
func (s *Store) Replace(repos []Repo, detail map[string]*gogithub.Repository, readmes map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = repos
	s.detail = detail
	s.readmes = readmes
	s.timestamp = time.Now().UTC()
}

// Populated reports whether both the repo list and detail map hold
// data.
func (s *Store) Populated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.repos) > 0 && len(s.detail) > 0
}

// Repos returns a copy of the repo list.
func (s *Store) Repos() []Repo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Repo, len(s.repos))
	copy(out, s.repos)
	return out
}

// Detail returns the full metadata for one repository.
func (s *Store) Detail(name string) (*gogithub.Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.detail[name]
	return repo, ok
}

// Readme returns the rendered README markup for one repository.
func (s *Store) Readme(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	html, ok := s.readmes[name]
	return html, ok
}

// Readmes returns a copy of the README map.
func (s *Store) Readmes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.readmes))
	for k, v := range s.readmes {
		out[k] = v
	}
	return out
}

// SetReadme stores a freshly fetched README without touching the
// snapshot time.
func (s *Store) SetReadme(name, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readmes[name] = html
}

// Summary returns the stored summary for one repository. ok is false
// when no entry exists at all.
func (s *Store) Summary(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[name]
	return summary, ok
}

// Summaries returns a copy of the summary map.
func (s *Store) Summaries() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.summaries))
	for k, v := range s.summaries {
		out[k] = v
	}
	return out
}

// SetSummary stores a summary. The snapshot time is not touched.
func (s *Store) SetSummary(name, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[name] = summary
}

// RemoveSummary evicts a stale summary.
func (s *Store) RemoveSummary(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, name)
}

// Timestamp returns when the in-memory maps were last rebuilt from the
// remote source.
func (s *Store) Timestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timestamp
}

// Fresh reports whether the snapshot is within the freshness window.
func (s *Store) Fresh(ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isFresh(s.timestamp, ttl)
}

func isFresh(ts time.Time, ttl time.Duration) bool {
	if ts.IsZero() {
		return false
	}
	return time.Since(ts) < ttl
}

// Snapshot returns a copy of the complete state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Timestamp: s.timestamp,
		Repos:     make([]Repo, len(s.repos)),
		Detail:    make(map[string]*gogithub.Repository, len(s.detail)),
		Readmes:   make(map[string]string, len(s.readmes)),
		Summaries: make(map[string]string, len(s.summaries)),
	}
	copy(snap.Repos, s.repos)
	for k, v := range s.detail {
		snap.Detail[k] = v
	}
	for k, v := range s.readmes {
		snap.Readmes[k] = v
	}
	for k, v := range s.summaries {
		snap.Summaries[k] = v
	}
	return snap
}

// Save writes the combined snapshot file. The whole file is
// overwritten on every write.
func (s *Store) Save() error {
	snap := s.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, snapshotFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SaveSummaries writes the standalone summary file.
func (s *Store) SaveSummaries() error {
	summaries := s.Summaries()
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summaries: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, summariesFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write summaries: %w", err)
	}
	return nil
}

// ReadSnapshot parses the persisted combined snapshot. A missing or
// corrupt file is a cache miss, not an error.
func (s *Store) ReadSnapshot() (*Snapshot, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFile))
	if err != nil {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("discarding corrupt snapshot file", zap.Error(err))
		return nil, false
	}
	return &snap, true
}

// Adopt installs a persisted snapshot's repo list, detail map, README
// map and timestamp. Summaries are loaded separately from their own
// file to avoid version skew between the two artifacts.
func (s *Store) Adopt(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = snap.Repos
	s.detail = snap.Detail
	s.readmes = snap.Readmes
	s.timestamp = snap.Timestamp
	if s.detail == nil {
		s.detail = map[string]*gogithub.Repository{}
	}
	if s.readmes == nil {
		s.readmes = map[string]string{}
	}
}

// LoadSummaries populates the summary map from the standalone file. A
// missing or corrupt file leaves the map empty.
func (s *Store) LoadSummaries() {
	data, err := os.ReadFile(filepath.Join(s.dir, summariesFile))
	if err != nil {
		return
	}
	var summaries map[string]string
	if err := json.Unmarshal(data, &summaries); err != nil {
		s.logger.Warn("discarding corrupt summaries file", zap.Error(err))
		return
	}
	// A file holding JSON null unmarshals into a nil map.
	if summaries == nil {
		summaries = map[string]string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = summaries
}
