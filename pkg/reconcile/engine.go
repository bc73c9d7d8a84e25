// Package reconcile drives the relational and vector indexes to match the
// document store. Two entry points share one core routine: a full-tree
// startup sweep and an incremental live path fed by file watcher events.
//
// Invariants:
// - A document becomes keyword-searchable as soon as its relational row is
//   written; the embedding step never blocks or fails that write.
// - The recorded content hash always reflects the body as last embedded, so
//   an interrupted embedding is retried on a later pass.
// - Reconciliation of different paths may run concurrently; events for one
//   path are serialized by the watcher's per-path debounce.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/ansel/lore/internal/observability"
	"github.com/ansel/lore/pkg/docstore"
	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/embedding"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/vector"
)

// ErrSweepInProgress is returned when a sweep is requested while another one
// is still running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Stats summarizes a reconciliation sweep.
type Stats struct {
	Indexed       int
	Unchanged     int
	Pruned        int
	Malformed     int
	EmbedFailures int
	Duration      time.Duration
}

// Engine reconciles the document store with both indexes.
type Engine struct {
	store    *docstore.Store
	idx      *index.Index
	vec      *vector.Index
	embedder embedding.Provider
	logger   zerolog.Logger

	sweepMu sync.Mutex
	embedWg sync.WaitGroup
}

// New creates a reconciliation engine. The embedder may be nil, in which
// case documents are keyword-searchable only.
func New(store *docstore.Store, idx *index.Index, vec *vector.Index, embedder embedding.Provider, logger zerolog.Logger) *Engine {
	observability.EnsureRegistered()
	return &Engine{
		store:    store,
		idx:      idx,
		vec:      vec,
		embedder: embedder,
		logger:   logger,
	}
}

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeUnchanged
	outcomeMalformed
	outcomeEmbedFailed
	outcomeError
)

// Sweep enumerates every document in the store, reconciles each against the
// indexes, then prunes index entries whose files disappeared out-of-band.
// Malformed documents are skipped with a warning; nothing short of a store
// enumeration failure aborts the sweep.
func (e *Engine) Sweep(ctx context.Context) (Stats, error) {
	if !e.sweepMu.TryLock() {
		return Stats{}, ErrSweepInProgress
	}
	defer e.sweepMu.Unlock()

	runID, _ := gonanoid.New()
	logger := e.logger.With().Str("sweep", runID).Logger()
	logger.Info().Msg("Starting reconciliation sweep")
	start := time.Now()

	var stats Stats
	seen := make(map[string]bool)

	err := e.store.Walk(func(relPath string) error {
		id, res := e.reconcileFile(ctx, logger, relPath, false)
		switch res {
		case outcomeIndexed:
			stats.Indexed++
		case outcomeUnchanged:
			stats.Unchanged++
		case outcomeMalformed:
			stats.Malformed++
		case outcomeEmbedFailed:
			stats.Indexed++
			stats.EmbedFailures++
		}
		if id != "" {
			seen[id] = true
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to enumerate document store: %w", err)
	}

	pruned, err := e.prune(seen)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune stale index entries")
	}
	stats.Pruned = pruned

	stats.Duration = time.Since(start)
	observability.RecordSweep(stats.Duration)
	if count, err := e.idx.Count(); err == nil {
		observability.SetIndexedDocuments(count)
	}

	logger.Info().
		Int("indexed", stats.Indexed).
		Int("unchanged", stats.Unchanged).
		Int("pruned", stats.Pruned).
		Int("malformed", stats.Malformed).
		Int("embed_failures", stats.EmbedFailures).
		Dur("duration", stats.Duration).
		Msg("Sweep completed")

	return stats, nil
}

// ReconcilePath runs the hash-compare-then-upsert routine for a single path.
// The relational write happens synchronously; the embedding step, when
// needed, is dispatched on a tracked goroutine so the caller is never
// blocked on a slow model call. Use Flush to wait for in-flight embeddings.
func (e *Engine) ReconcilePath(ctx context.Context, relPath string) error {
	start := time.Now()
	defer func() { observability.RecordReconcile(time.Since(start)) }()

	_, res := e.reconcileFile(ctx, e.logger, relPath, true)
	if res == outcomeError {
		return fmt.Errorf("failed to reconcile %s", relPath)
	}
	return nil
}

// RemovePath handles a file deletion event: the id is reverse-looked-up by
// path and removed from both indexes. An untracked path is a no-op.
func (e *Engine) RemovePath(ctx context.Context, relPath string) error {
	id, err := e.idx.DeleteByPath(relPath)
	if errors.Is(err, document.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete index row: %w", err)
	}
	if e.vec != nil {
		if err := e.vec.Remove(id); err != nil {
			e.logger.Warn().Err(err).Str("id", id).Msg("Failed to remove vector record")
		}
	}

	e.logger.Debug().Str("id", id).Str("path", relPath).Msg("Removed deleted document from indexes")
	return nil
}

// Remove deletes a document's rows from both indexes by id.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := e.idx.Delete(id); err != nil {
		return fmt.Errorf("failed to delete index row: %w", err)
	}
	if e.vec != nil {
		if err := e.vec.Remove(id); err != nil {
			e.logger.Warn().Err(err).Str("id", id).Msg("Failed to remove vector record")
		}
	}
	return nil
}

// Flush waits for in-flight asynchronous embedding work to settle.
func (e *Engine) Flush() {
	e.embedWg.Wait()
}

// reconcileFile is the core routine shared by the sweep and the live path.
// It returns the document id (when parseable) and what happened.
func (e *Engine) reconcileFile(ctx context.Context, logger zerolog.Logger, relPath string, asyncEmbed bool) (string, outcome) {
	doc, err := e.store.Read(relPath)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			// The file vanished between enumeration and read; the prune
			// phase or a deletion event will settle it.
			return "", outcomeUnchanged
		}
		logger.Warn().Err(err).Str("path", relPath).Msg("Skipping unreadable document")
		// Skipping must not turn into forgetting: a previously-indexed
		// document whose file went malformed keeps its rows until the file
		// parses again or disappears.
		if row, lookupErr := e.idx.GetByPath(relPath); lookupErr == nil {
			return row.ID, outcomeMalformed
		}
		return "", outcomeMalformed
	}

	hash := document.ContentHash(doc.Body)

	var carried string
	prev, err := e.idx.GetByID(doc.ID)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		logger.Error().Err(err).Str("id", doc.ID).Msg("Failed to look up index row")
		return doc.ID, outcomeError
	}
	if prev != nil {
		carried = prev.ContentHash
	}

	// The relational row always reflects the latest file contents; the
	// carried hash still names the body as last embedded.
	if err := e.idx.Upsert(doc, carried); err != nil {
		logger.Error().Err(err).Str("id", doc.ID).Msg("Failed to upsert index row")
		return doc.ID, outcomeError
	}

	if carried == hash {
		return doc.ID, outcomeUnchanged
	}

	if e.embedder == nil || e.vec == nil {
		return doc.ID, outcomeIndexed
	}

	if asyncEmbed {
		e.embedWg.Add(1)
		go func() {
			defer e.embedWg.Done()
			e.embedAndStore(context.Background(), logger, doc, hash)
		}()
		return doc.ID, outcomeIndexed
	}

	if ok := e.embedAndStore(ctx, logger, doc, hash); !ok {
		return doc.ID, outcomeEmbedFailed
	}
	return doc.ID, outcomeIndexed
}

// embedAndStore regenerates a document's embedding and records the content
// hash only once the vector write succeeds. Failures are non-fatal: the
// document stays keyword-searchable and the stale hash forces a retry on the
// next reconciliation pass.
func (e *Engine) embedAndStore(ctx context.Context, logger zerolog.Logger, doc *document.Document, hash string) bool {
	text := doc.Title + "\n\n" + doc.Body
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		logger.Warn().Err(err).Str("id", doc.ID).Msg("Embedding failed, will retry on next sweep")
		observability.RecordEmbedFailure()
		return false
	}

	if err := e.vec.Upsert(doc.ID, vec, string(doc.Type), doc.Title); err != nil {
		logger.Warn().Err(err).Str("id", doc.ID).Msg("Vector store write failed, will retry on next sweep")
		observability.RecordEmbedFailure()
		return false
	}

	if err := e.idx.SetContentHash(doc.ID, hash); err != nil {
		logger.Warn().Err(err).Str("id", doc.ID).Msg("Failed to record embedded content hash")
		return false
	}
	return true
}

// prune removes every index row whose id was not observed during the sweep.
// This settles out-of-band deletions, moves and renames that happened while
// the process was not running.
func (e *Engine) prune(seen map[string]bool) (int, error) {
	ids, err := e.idx.IDs()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if err := e.idx.Delete(id); err != nil {
			return pruned, err
		}
		if e.vec != nil {
			if err := e.vec.Remove(id); err != nil {
				e.logger.Warn().Err(err).Str("id", id).Msg("Failed to remove stale vector record")
			}
		}
		pruned++
	}
	if pruned > 0 {
		observability.RecordPruned(pruned)
	}

	// Vector records can outlive their relational row, for example when an
	// in-place id edit displaces it. Drop those orphans here too.
	if e.vec != nil {
		vids, err := e.vec.IDs()
		if err != nil {
			return pruned, err
		}
		for _, id := range vids {
			if seen[id] {
				continue
			}
			if err := e.vec.Remove(id); err != nil {
				e.logger.Warn().Err(err).Str("id", id).Msg("Failed to remove orphaned vector record")
			}
		}
	}
	return pruned, nil
}
