// Package search answers queries over the indexed corpus in three modes:
// keyword (bm25 over the full-text index), semantic (cosine similarity over
// embeddings) and hybrid (both, fused by reciprocal rank fusion).
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ansel/lore/internal/observability"
	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/embedding"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/vector"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

const (
	// DefaultLimit is the result count when the caller does not specify one.
	DefaultLimit = 10

	// DefaultRRFK dampens the weight gap between adjacent ranks in
	// reciprocal rank fusion. 60 is the value from the original RRF paper
	// and works well without tuning.
	DefaultRRFK = 60

	// DefaultOverfetch widens each sub-query so documents ranked just past
	// the requested limit in one list can still fuse into the final page.
	DefaultOverfetch = 2
)

// ErrSemanticUnavailable is returned when a semantic or hybrid query is made
// without a configured embedding provider.
var ErrSemanticUnavailable = errors.New("semantic search unavailable: no embedding provider configured")

// Result is one search hit with its mode-dependent score: bm25 relevance for
// keyword, cosine similarity for semantic, fused RRF score for hybrid.
type Result struct {
	index.Row
	Score float64
}

// Service executes queries against the two indexes.
type Service struct {
	idx       *index.Index
	vec       *vector.Index
	embedder  embedding.Provider
	logger    zerolog.Logger
	rrfK      int
	overfetch int
}

// Option customizes a Service.
type Option func(*Service)

// WithRRFK overrides the reciprocal rank fusion constant.
func WithRRFK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.rrfK = k
		}
	}
}

// WithOverfetch overrides the sub-query widening factor.
func WithOverfetch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.overfetch = n
		}
	}
}

// New creates a search service. The vector index and embedder may be nil;
// semantic and hybrid queries then return ErrSemanticUnavailable.
func New(idx *index.Index, vec *vector.Index, embedder embedding.Provider, logger zerolog.Logger, opts ...Option) *Service {
	observability.EnsureRegistered()
	s := &Service{
		idx:       idx,
		vec:       vec,
		embedder:  embedder,
		logger:    logger,
		rrfK:      DefaultRRFK,
		overfetch: DefaultOverfetch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keyword runs a bm25-ranked full-text query.
func (s *Service) Keyword(ctx context.Context, query string, f index.Filter, limit int) ([]Result, error) {
	return s.Search(ctx, query, ModeKeyword, f, limit)
}

// Semantic runs a cosine-similarity query over embeddings.
func (s *Service) Semantic(ctx context.Context, query string, f index.Filter, limit int) ([]Result, error) {
	return s.Search(ctx, query, ModeSemantic, f, limit)
}

// Hybrid runs both queries and fuses their rankings.
func (s *Service) Hybrid(ctx context.Context, query string, f index.Filter, limit int) ([]Result, error) {
	return s.Search(ctx, query, ModeHybrid, f, limit)
}

// Search runs a query in the given mode. A non-positive limit falls back to
// DefaultLimit; a blank query returns no results in every mode.
func (s *Service) Search(ctx context.Context, query string, mode Mode, f index.Filter, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}

	start := time.Now()
	defer func() { observability.RecordSearch(string(mode), time.Since(start)) }()

	switch mode {
	case ModeKeyword, "":
		return s.keyword(query, f, limit)
	case ModeSemantic:
		return s.semantic(ctx, query, f, limit)
	case ModeHybrid:
		return s.hybrid(ctx, query, f, limit)
	default:
		return nil, fmt.Errorf("unknown search mode: %q", mode)
	}
}

func (s *Service) keyword(query string, f index.Filter, limit int) ([]Result, error) {
	hits, err := s.idx.SearchKeyword(query, f, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{Row: h.Row, Score: h.Score})
	}
	return results, nil
}

func (s *Service) semantic(ctx context.Context, query string, f index.Filter, limit int) ([]Result, error) {
	ids, err := s.semanticIDs(ctx, query, limit*s.overfetch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ids))
	for _, hit := range ids {
		row, ok, err := s.hydrate(hit.ID, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, Result{Row: *row, Score: hit.Score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// hybrid issues both sub-queries in parallel and fuses their rankings. A
// failing sub-query degrades the search to the surviving source rather than
// failing the whole call; both failing is an error.
func (s *Service) hybrid(ctx context.Context, query string, f index.Filter, limit int) ([]Result, error) {
	fetch := limit * s.overfetch

	var (
		wg      sync.WaitGroup
		kwHits  []index.Hit
		kwErr   error
		vecHits []vector.Hit
		vecErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		kwHits, kwErr = s.idx.SearchKeyword(query, f, fetch)
	}()
	go func() {
		defer wg.Done()
		vecHits, vecErr = s.semanticIDs(ctx, query, fetch)
	}()
	wg.Wait()

	if kwErr != nil && vecErr != nil {
		return nil, fmt.Errorf("hybrid search failed: keyword: %v; semantic: %w", kwErr, vecErr)
	}
	if kwErr != nil {
		s.logger.Warn().Err(kwErr).Msg("Keyword sub-query failed, degrading to semantic only")
	}
	if vecErr != nil {
		s.logger.Warn().Err(vecErr).Msg("Semantic sub-query failed, degrading to keyword only")
	}

	kwIDs := make([]string, len(kwHits))
	for i, h := range kwHits {
		kwIDs[i] = h.ID
	}
	vecIDs := make([]string, len(vecHits))
	for i, h := range vecHits {
		vecIDs[i] = h.ID
	}
	ranked := fuseRanks(s.rrfK, kwIDs, vecIDs)

	// Keyword hits already carry their rows; hydrate the rest and drop ids
	// whose documents vanished between the sub-query and now.
	rowsByID := make(map[string]*index.Row, len(kwHits))
	for i := range kwHits {
		rowsByID[kwHits[i].ID] = &kwHits[i].Row
	}

	results := make([]Result, 0, limit)
	for _, r := range ranked {
		row := rowsByID[r.id]
		if row == nil {
			hydrated, ok, err := s.hydrate(r.id, f)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			row = hydrated
		}
		results = append(results, Result{Row: *row, Score: r.score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

type fusedHit struct {
	id    string
	score float64
}

// fuseRanks merges two ranked id lists by reciprocal rank fusion: each list
// contributes 1/(k+rank) per document, with rank starting at 1. Scores are
// comparable across sources because only positions matter, never the raw
// bm25 or cosine values. Ties break on id for a stable ordering.
func fuseRanks(k int, kwIDs, vecIDs []string) []fusedHit {
	fused := make(map[string]float64, len(kwIDs)+len(vecIDs))
	for i, id := range kwIDs {
		fused[id] += 1.0 / float64(k+i+1)
	}
	for i, id := range vecIDs {
		fused[id] += 1.0 / float64(k+i+1)
	}

	ranked := make([]fusedHit, 0, len(fused))
	for id, score := range fused {
		ranked = append(ranked, fusedHit{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

// semanticIDs embeds the query and returns the nearest document ids.
func (s *Service) semanticIDs(ctx context.Context, query string, limit int) ([]vector.Hit, error) {
	if s.vec == nil || s.embedder == nil {
		return nil, ErrSemanticUnavailable
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.vec.Query(queryVec, limit)
}

// hydrate loads a row by id and applies the filter post-hoc. Vector hits
// carry no metadata, so filtering happens here. Returns ok=false for stale
// ids and filtered-out rows.
func (s *Service) hydrate(id string, f index.Filter) (*index.Row, bool, error) {
	row, err := s.idx.GetByID(id)
	if errors.Is(err, document.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !matchesFilter(row, f) {
		return nil, false, nil
	}
	return row, true, nil
}

func matchesFilter(row *index.Row, f index.Filter) bool {
	if f.Type != "" && row.Type != f.Type {
		return false
	}
	if f.Category != "" && row.Category != f.Category {
		return false
	}
	if f.Status != "" && row.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && row.UpdatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && row.UpdatedAt.After(f.To) {
		return false
	}
	return true
}
