package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansel/lore/pkg/docstore"
	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/reconcile"
)

func newTestEngine(t *testing.T) (*reconcile.Engine, *docstore.Store, *index.Index) {
	t.Helper()
	dir := t.TempDir()
	logger := zerolog.Nop()

	store, err := docstore.New(filepath.Join(dir, "docs"), logger)
	require.NoError(t, err)
	idx, err := index.Open(filepath.Join(dir, "index.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	return reconcile.New(store, idx, nil, nil, logger), store, idx
}

func TestNew_InvalidSchedule(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := New(engine, "every hour on the hour", zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_DefaultSchedule(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	s, err := New(engine, "", zerolog.Nop())
	require.NoError(t, err)
	s.Start()
	s.Stop()
}

func TestScheduledSweepRuns(t *testing.T) {
	engine, store, idx := newTestEngine(t)

	now := time.Now().UTC()
	doc := &document.Document{
		ID: "doc-a", Type: document.TypeNote, Title: "Scheduled",
		Body: "Indexed by the background sweep.", Status: document.StatusSaved,
		CreatedAt: now, UpdatedAt: now,
	}
	_, err := store.Write(doc)
	require.NoError(t, err)

	s, err := New(engine, "@every 100ms", zerolog.Nop())
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, err := idx.GetByID("doc-a")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}
