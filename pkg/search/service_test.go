package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/embedding"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/vector"
)

const testDim = 8

func TestFuseRanks(t *testing.T) {
	// kw ranks: A=1, B=2, C=3; vec ranks: B=1, A=2, D=3.
	// A = 1/61 + 1/62, B = 1/62 + 1/61 (tie, id breaks it), D = 1/63, C = 1/63.
	ranked := fuseRanks(DefaultRRFK, []string{"A", "B", "C"}, []string{"B", "A", "D"})

	require.Len(t, ranked, 4)
	assert.Equal(t, "A", ranked[0].id)
	assert.Equal(t, "B", ranked[1].id)
	assert.InDelta(t, 1.0/61+1.0/62, ranked[0].score, 1e-12)
	assert.Equal(t, ranked[0].score, ranked[1].score)

	// C and D both sit at rank 3 of their list, so they tie too.
	assert.Equal(t, "C", ranked[2].id)
	assert.Equal(t, "D", ranked[3].id)
	assert.InDelta(t, 1.0/63, ranked[2].score, 1e-12)
}

func TestFuseRanks_SingleSource(t *testing.T) {
	ranked := fuseRanks(DefaultRRFK, []string{"A", "B"}, nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "A", ranked[0].id)
	assert.Equal(t, "B", ranked[1].id)
	assert.Greater(t, ranked[0].score, ranked[1].score)
}

type searchEnv struct {
	idx      *index.Index
	vec      *vector.Index
	embedder *embedding.MockProvider
	svc      *Service
}

func newSearchEnv(t *testing.T) *searchEnv {
	t.Helper()
	dir := t.TempDir()
	logger := zerolog.Nop()

	idx, err := index.Open(filepath.Join(dir, "index.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	vec, err := vector.Open(filepath.Join(dir, "vectors.db"), testDim, logger)
	require.NoError(t, err)
	t.Cleanup(func() { vec.Close() })

	embedder := embedding.NewMockProvider(testDim)

	return &searchEnv{
		idx:      idx,
		vec:      vec,
		embedder: embedder,
		svc:      New(idx, vec, embedder, logger),
	}
}

// addDoc indexes a document in both projections, embedding the body text the
// way the reconciliation engine would.
func (e *searchEnv) addDoc(t *testing.T, id, title, body string, mutate func(*document.Document)) {
	t.Helper()
	now := time.Now().UTC()
	doc := &document.Document{
		ID: id, Type: document.TypeNote, Title: title, Body: body,
		Status: document.StatusSaved, CreatedAt: now, UpdatedAt: now,
	}
	if mutate != nil {
		mutate(doc)
	}
	doc.Path = filepath.Join(string(doc.Type), doc.ID+".md")
	require.NoError(t, e.idx.Upsert(doc, document.ContentHash(doc.Body)))

	emb, err := e.embedder.Embed(context.Background(), doc.Title+"\n\n"+doc.Body)
	require.NoError(t, err)
	require.NoError(t, e.vec.Upsert(doc.ID, emb, string(doc.Type), doc.Title))
}

func TestSearch_Keyword(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election and log replication.", nil)
	env.addDoc(t, "doc-b", "Sourdough starter", "Flour, water, patience.", nil)

	results, err := env.svc.Search(context.Background(), "consensus", ModeKeyword, index.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearch_DefaultsToKeyword(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)

	results, err := env.svc.Search(context.Background(), "raft", "", index.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].ID)
}

func TestSearch_Semantic(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)
	env.addDoc(t, "doc-b", "Sourdough starter", "Flour and water.", nil)

	// The mock embedder is deterministic, so the exact indexed text embeds
	// to the exact stored vector and must rank first.
	results, err := env.svc.Search(
		context.Background(), "Raft consensus\n\nLeader election.", ModeSemantic, index.Filter{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestSearch_SemanticAppliesFilter(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)
	env.addDoc(t, "doc-j", "Raft consensus", "Leader election.", func(d *document.Document) {
		d.Type = document.TypeJournal
	})

	results, err := env.svc.Search(
		context.Background(), "Raft consensus\n\nLeader election.", ModeSemantic,
		index.Filter{Type: document.TypeJournal}, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, document.TypeJournal, r.Type)
	}
	require.Len(t, results, 1)
	assert.Equal(t, "doc-j", results[0].ID)
}

func TestSearch_SemanticDropsStaleIDs(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)

	// Simulate a vector record outliving its relational row.
	require.NoError(t, env.idx.Delete("doc-a"))

	results, err := env.svc.Search(
		context.Background(), "Raft consensus\n\nLeader election.", ModeSemantic, index.Filter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_Hybrid(t *testing.T) {
	env := newSearchEnv(t)
	// doc-a matches the query by keyword AND embeds identically, so it
	// appears in both ranked lists and must fuse to the top.
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)
	env.addDoc(t, "doc-b", "Raft overview", "A consensus protocol survey.", nil)
	env.addDoc(t, "doc-c", "Sourdough starter", "Flour and water.", nil)

	results, err := env.svc.Search(
		context.Background(), "Raft consensus\n\nLeader election.", ModeHybrid, index.Filter{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-a", results[0].ID)
}

func TestSearch_HybridDegradesWithoutKeywordHits(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)

	// A query with no keyword overlap still returns semantic neighbors.
	results, err := env.svc.Search(
		context.Background(), "Raft consensus\n\nLeader election.", ModeHybrid, index.Filter{}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearch_SemanticUnavailable(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.Nop()
	idx, err := index.Open(filepath.Join(dir, "index.db"), logger)
	require.NoError(t, err)
	defer idx.Close()

	svc := New(idx, nil, nil, logger)

	_, err = svc.Search(context.Background(), "anything", ModeSemantic, index.Filter{}, 10)
	assert.ErrorIs(t, err, ErrSemanticUnavailable)
}

func TestSearch_BlankQuery(t *testing.T) {
	env := newSearchEnv(t)
	env.addDoc(t, "doc-a", "Raft consensus", "Leader election.", nil)

	for _, mode := range []Mode{ModeKeyword, ModeSemantic, ModeHybrid} {
		results, err := env.svc.Search(context.Background(), "   ", mode, index.Filter{}, 10)
		require.NoError(t, err)
		assert.Empty(t, results, "mode %s", mode)
	}
}

func TestSearch_UnknownMode(t *testing.T) {
	env := newSearchEnv(t)
	_, err := env.svc.Search(context.Background(), "q", Mode("telepathic"), index.Filter{}, 10)
	assert.Error(t, err)
}

func TestSearch_LimitRespected(t *testing.T) {
	env := newSearchEnv(t)
	for _, id := range []string{"doc-a", "doc-b", "doc-c"} {
		env.addDoc(t, id, "Raft notes "+id, "Consensus material for "+id+".", nil)
	}

	results, err := env.svc.Search(context.Background(), "consensus", ModeKeyword, index.Filter{}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = env.svc.Search(context.Background(), "consensus", ModeHybrid, index.Filter{}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
