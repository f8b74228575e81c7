package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/cache"
)

type fakeGitHub struct {
	mu          sync.Mutex
	repos       []*gogithub.Repository
	readmes     map[string]string
	listErr     error
	listCalls   int
	readmeCalls int
}

func (f *fakeGitHub) ListRepos(ctx context.Context) ([]*gogithub.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.repos, f.listErr
}

func (f *fakeGitHub) GetRepo(ctx context.Context, name string) (*gogithub.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.GetName() == name {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeGitHub) GetReadmeHTML(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readmeCalls++
	return f.readmes[name], nil
}

type fakeQueue struct {
	mu      sync.Mutex
	batches [][]string
}

func (f *fakeQueue) Enqueue(names []string) {
	if len(names) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, names)
}

func (f *fakeQueue) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func repoNamed(name string) *gogithub.Repository {
	return &gogithub.Repository{
		Name:            gogithub.String(name),
		HTMLURL:         gogithub.String("https://github.com/octocat/" + name),
		StargazersCount: gogithub.Int(3),
	}
}

func newFixture(t *testing.T) (*cache.Store, *fakeGitHub, *fakeQueue, *Orchestrator) {
	t.Helper()
	store, err := cache.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	source := &fakeGitHub{
		repos:   []*gogithub.Repository{repoNamed("demo")},
		readmes: map[string]string{"demo": "<h1>Demo</h1>"},
	}
	queue := &fakeQueue{}
	o := New(store, source, queue, 24*time.Hour, zap.NewNop())
	return store, source, queue, o
}

func TestRefreshPopulatesAllThreeMaps(t *testing.T) {
	store, _, queue, o := newFixture(t)

	require.NoError(t, o.Refresh(context.Background(), true))

	snap := store.Snapshot()
	require.Len(t, snap.Repos, 1)
	assert.Equal(t, "demo", snap.Repos[0].Name)
	assert.Contains(t, snap.Detail, "demo")
	assert.Contains(t, snap.Readmes, "demo")
	assert.Equal(t, "<h1>Demo</h1>", snap.Readmes["demo"])
	assert.False(t, snap.Timestamp.IsZero())

	// demo has no summary, so it is queued for enrichment.
	assert.Contains(t, queue.all(), "demo")
}

func TestRefreshUnforcedIsNoopWhenPopulated(t *testing.T) {
	_, source, _, o := newFixture(t)

	require.NoError(t, o.Refresh(context.Background(), true))
	callsAfterFirst := source.listCalls

	require.NoError(t, o.Refresh(context.Background(), false))
	assert.Equal(t, callsAfterFirst, source.listCalls, "no network calls on unforced refresh of populated state")
}

func TestRefreshUnforcedRunsWhenEmpty(t *testing.T) {
	_, source, _, o := newFixture(t)
	require.NoError(t, o.Refresh(context.Background(), false))
	assert.Equal(t, 1, source.listCalls)
}

func TestRefreshListFailurePropagates(t *testing.T) {
	_, source, _, o := newFixture(t)
	source.listErr = errors.New("rate limited")
	assert.Error(t, o.Refresh(context.Background(), true))
}

func TestChangedReadmeEvictsSummary(t *testing.T) {
	store, source, queue, o := newFixture(t)

	require.NoError(t, o.Refresh(context.Background(), true))
	store.SetSummary("demo", "• old summary")

	source.readmes["demo"] = "<h1>Demo v2</h1>"
	require.NoError(t, o.Refresh(context.Background(), true))

	_, ok := store.Summary("demo")
	assert.False(t, ok, "stale summary evicted")

	names := queue.all()
	require.Len(t, queue.batches, 2)
	assert.Contains(t, names, "demo")
}

func TestUnchangedReadmePreservesSummary(t *testing.T) {
	store, _, queue, o := newFixture(t)

	require.NoError(t, o.Refresh(context.Background(), true))
	store.SetSummary("demo", "• kept")

	require.NoError(t, o.Refresh(context.Background(), true))

	summary, ok := store.Summary("demo")
	assert.True(t, ok)
	assert.Equal(t, "• kept", summary)
	assert.Len(t, queue.batches, 1, "no second enrichment batch for unchanged README")
}

func TestLoadOrRefreshAdoptsFreshSnapshot(t *testing.T) {
	store, source, _, o := newFixture(t)

	require.NoError(t, o.Refresh(context.Background(), true))
	require.NoError(t, store.Save())
	callsAfterRefresh := source.listCalls

	// A new process with the same data dir.
	store2, err := cache.New(store.Dir(), zap.NewNop())
	require.NoError(t, err)
	o2 := New(store2, source, &fakeQueue{}, 24*time.Hour, zap.NewNop())

	require.NoError(t, o2.LoadOrRefresh(context.Background()))
	assert.True(t, store2.Populated())
	assert.Equal(t, callsAfterRefresh, source.listCalls, "fresh snapshot adopted without network")
}

func TestLoadOrRefreshForcesWhenNoSnapshot(t *testing.T) {
	store, source, _, o := newFixture(t)
	require.NoError(t, o.LoadOrRefresh(context.Background()))
	assert.Equal(t, 1, source.listCalls)
	assert.True(t, store.Populated())
}

func TestLoadOrRefreshForcesWhenStale(t *testing.T) {
	store, source, _, o := newFixture(t)
	require.NoError(t, o.Refresh(context.Background(), true))
	require.NoError(t, store.Save())

	// Same data dir, but a tiny freshness window.
	store2, err := cache.New(store.Dir(), zap.NewNop())
	require.NoError(t, err)
	o2 := New(store2, source, &fakeQueue{}, time.Nanosecond, zap.NewNop())

	calls := source.listCalls
	require.NoError(t, o2.LoadOrRefresh(context.Background()))
	assert.Equal(t, calls+1, source.listCalls, "stale snapshot triggers forced refresh")
}

func TestSweepMissing(t *testing.T) {
	store, _, queue, o := newFixture(t)
	require.NoError(t, o.Refresh(context.Background(), true))

	store.SetSummary("demo", "")
	o.SweepMissing()

	require.GreaterOrEqual(t, len(queue.batches), 2)
	assert.Contains(t, queue.batches[len(queue.batches)-1], "demo")
}
