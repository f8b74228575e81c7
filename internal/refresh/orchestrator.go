// Package refresh rebuilds the cache from the remote source and
// schedules summary enrichment.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/cache"
)

var (
	refreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_refreshes_total",
		Help: "Completed wholesale cache refreshes.",
	})
	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "folio_refresh_duration_seconds",
		Help:    "Wall time of a wholesale cache refresh.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Source is the subset of the GitHub client the orchestrator needs.
type Source interface {
	ListRepos(ctx context.Context) ([]*gogithub.Repository, error)
	GetRepo(ctx context.Context, name string) (*gogithub.Repository, error)
	GetReadmeHTML(ctx context.Context, name string) (string, error)
}

// Enqueuer schedules background summary generation.
type Enqueuer interface {
	Enqueue(names []string)
}

// Orchestrator decides when the snapshot is stale, pulls fresh data,
// invalidates summaries whose README changed, and schedules enrichment
// without blocking.
type Orchestrator struct {
	store   *cache.Store
	source  Source
	enqueue Enqueuer
	ttl     time.Duration
	logger  *zap.Logger

	// mu is the refresh lock: at most one refresh in flight.
	mu sync.Mutex
}

// New creates an orchestrator. ttl is the freshness window.
func New(store *cache.Store, source Source, enqueue Enqueuer, ttl time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   store,
		source:  source,
		enqueue: enqueue,
		ttl:     ttl,
		logger:  logger,
	}
}

// Refresh rebuilds the in-memory snapshot from the remote source.
//
// When force is false and the store is already populated this is a
// no-op; staleness of populated state is only acted on by the periodic
// task or an explicit force. Summaries whose README markup changed
// byte-for-byte against the previous snapshot are evicted and queued
// for regeneration together with repos that never had one.
func (o *Orchestrator) Refresh(ctx context.Context, force bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !force && o.store.Populated() {
		return nil
	}

	start := time.Now()

	repoList, err := o.source.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	previous := o.store.Readmes()

	repos := make([]cache.Repo, 0, len(repoList))
	detail := make(map[string]*gogithub.Repository, len(repoList))
	readmes := make(map[string]string, len(repoList))

	for _, repo := range repoList {
		name := repo.GetName()

		full, err := o.source.GetRepo(ctx, name)
		if err != nil {
			o.logger.Warn("failed to fetch repo detail, using list entry", zap.String("repo", name), zap.Error(err))
			full = repo
		}

		html, err := o.source.GetReadmeHTML(ctx, name)
		if err != nil {
			o.logger.Warn("failed to fetch README", zap.String("repo", name), zap.Error(err))
			html = ""
		}

		repos = append(repos, cache.Repo{
			Name:        name,
			HTMLURL:     repo.GetHTMLURL(),
			Description: repo.GetDescription(),
			Language:    repo.GetLanguage(),
			Stars:       repo.GetStargazersCount(),
			UpdatedAt:   repo.GetUpdatedAt().Time,
		})
		detail[name] = full
		readmes[name] = html
	}

	o.store.Replace(repos, detail, readmes)

	// Repos needing (re)generation: no non-empty summary yet, or README
	// changed since the previous snapshot.
	var missing []string
	for name, html := range readmes {
		if summary, ok := o.store.Summary(name); !ok || summary == "" {
			missing = append(missing, name)
			continue
		}
		if html != previous[name] {
			o.store.RemoveSummary(name)
			missing = append(missing, name)
		}
	}

	if err := o.store.Save(); err != nil {
		o.logger.Warn("failed to persist snapshot", zap.Error(err))
	}
	if len(missing) > 0 {
		// Persist eviction of stale summaries before regeneration runs.
		if err := o.store.SaveSummaries(); err != nil {
			o.logger.Warn("failed to persist summaries", zap.Error(err))
		}
		o.enqueue.Enqueue(missing)
	}

	refreshesTotal.Inc()
	refreshDuration.Observe(time.Since(start).Seconds())
	o.logger.Info("cache refreshed",
		zap.Int("repos", len(repos)),
		zap.Int("missing_summaries", len(missing)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// LoadOrRefresh adopts the persisted snapshot when it is within the
// freshness window, otherwise performs a forced refresh. Summaries are
// loaded by the caller from their own file, not from the combined
// snapshot.
func (o *Orchestrator) LoadOrRefresh(ctx context.Context) error {
	if snap, ok := o.store.ReadSnapshot(); ok && o.fresh(snap.Timestamp) {
		o.store.Adopt(snap)
		o.logger.Info("adopted persisted snapshot",
			zap.Time("timestamp", snap.Timestamp),
			zap.Int("repos", len(snap.Repos)),
		)
		return nil
	}
	return o.Refresh(ctx, true)
}

// SweepMissing enqueues every repo whose summary is absent or empty.
// Called once at startup to cover repos added while the server was
// down.
func (o *Orchestrator) SweepMissing() {
	var missing []string
	for name := range o.store.Readmes() {
		if summary, ok := o.store.Summary(name); !ok || summary == "" {
			missing = append(missing, name)
		}
	}
	o.enqueue.Enqueue(missing)
}

// RunPeriodic forces a refresh every freshness window for the life of
// the process.
func (o *Orchestrator) RunPeriodic(ctx context.Context) {
	ticker := time.NewTicker(o.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Refresh(ctx, true); err != nil {
				o.logger.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) fresh(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return time.Since(ts) < o.ttl
}
