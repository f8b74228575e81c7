// Package enrich generates and persists repository summaries in the
// background.
//
// Batches of repo names flow through a single-consumer queue, so at
// most one enrichment batch runs at a time and calls to the external
// summarization API are globally sequential. Progress is persisted
// after every repository so a crash mid-batch loses at most one
// summary.
package enrich

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/cache"
	"github.com/fyrsmithlabs/folio/internal/summarize"
)

var summariesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "folio_summaries_generated_total",
	Help: "Summaries written to the cache, labeled by source (readme, corpus, none).",
}, []string{"source"})

// Summarizer produces a summary for text, empty on failure.
type Summarizer interface {
	Summarize(ctx context.Context, text string, kind summarize.Kind) string
}

// CorpusBuilder provides the code-corpus fallback.
type CorpusBuilder interface {
	Available() bool
	Build(ctx context.Context, repoName string) string
}

// ReadmeSource fetches a fresh README when the cached one is missing.
type ReadmeSource interface {
	GetReadmeHTML(ctx context.Context, name string) (string, error)
}

// Worker consumes enrichment batches from a queue.
type Worker struct {
	store      *cache.Store
	summarizer Summarizer
	corpus     CorpusBuilder
	source     ReadmeSource
	logger     *zap.Logger
	queue      chan []string
}

// NewWorker creates an enrichment worker. Run must be called for
// enqueued batches to be processed.
func NewWorker(store *cache.Store, summarizer Summarizer, corpus CorpusBuilder, source ReadmeSource, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:      store,
		summarizer: summarizer,
		corpus:     corpus,
		source:     source,
		logger:     logger,
		queue:      make(chan []string, 16),
	}
}

// Enqueue schedules a batch without blocking the caller. A full queue
// drops the batch; the next refresh or detail read re-requests it.
func (w *Worker) Enqueue(names []string) {
	if len(names) == 0 {
		return
	}
	select {
	case w.queue <- names:
	default:
		w.logger.Warn("enrichment queue full, dropping batch", zap.Int("names", len(names)))
	}
}

// drainGrace bounds how long shutdown waits for buffered batches.
const drainGrace = 30 * time.Second

// Run consumes batches until ctx is canceled, then drains buffered
// batches under a bounded grace window before returning. An in-flight
// batch interrupted mid-way stops at the next repository boundary; its
// remainder is recovered by the startup sweep.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain(nil)
			return
		case batch := <-w.queue:
			if ctx.Err() != nil {
				w.drain(batch)
				return
			}
			w.process(ctx, batch)
		}
	}
}

// drain processes batches still buffered at shutdown with a fresh
// bounded context, so accepted work is not silently dropped.
func (w *Worker) drain(pending []string) {
	if len(pending) == 0 && len(w.queue) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()

	w.logger.Info("draining enrichment queue", zap.Int("batches", len(w.queue)))
	if len(pending) > 0 {
		w.process(ctx, pending)
	}
	for {
		select {
		case batch := <-w.queue:
			w.process(ctx, batch)
		default:
			return
		}
	}
}

// process generates summaries for one batch, persisting after every
// repository.
func (w *Worker) process(ctx context.Context, names []string) {
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}

		// An earlier batch may have filled this in already.
		if summary, ok := w.store.Summary(name); ok && summary != "" {
			continue
		}

		html, _ := w.store.Readme(name)
		if html == "" {
			html = w.refetchReadme(ctx, name)
		}

		summary, source := w.generate(ctx, name, html)
		w.store.SetSummary(name, summary)
		if err := w.store.SaveSummaries(); err != nil {
			w.logger.Warn("failed to persist summaries", zap.Error(err))
		}
		summariesGenerated.WithLabelValues(source).Inc()

		w.logger.Debug("enriched repository",
			zap.String("repo", name),
			zap.String("source", source),
			zap.Bool("empty", summary == ""),
		)
	}
}

// refetchReadme attempts one fresh README fetch and persists the
// snapshot on success.
func (w *Worker) refetchReadme(ctx context.Context, name string) string {
	html, err := w.source.GetReadmeHTML(ctx, name)
	if err != nil {
		w.logger.Debug("failed to fetch README during enrichment", zap.String("repo", name), zap.Error(err))
		return ""
	}
	w.store.SetReadme(name, html)
	if err := w.store.Save(); err != nil {
		w.logger.Warn("failed to persist snapshot", zap.Error(err))
	}
	return html
}

// generate picks the summarization path: README when present, code
// corpus otherwise, empty when neither applies.
func (w *Worker) generate(ctx context.Context, name, html string) (summary, source string) {
	if html != "" {
		return w.summarizer.Summarize(ctx, html, summarize.KindReadme), "readme"
	}
	if w.corpus.Available() {
		if text := w.corpus.Build(ctx, name); text != "" {
			return w.summarizer.Summarize(ctx, text, summarize.KindCorpus), "corpus"
		}
	}
	return "", "none"
}
