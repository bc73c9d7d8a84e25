// Package knowledge is the write-and-query surface of the knowledge base.
// Every mutation goes through the file system first, then reconciles the
// touched path, so files on disk and index state never diverge for long.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ansel/lore/pkg/docstore"
	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/reconcile"
	"github.com/ansel/lore/pkg/search"
)

// Service exposes the knowledge base operations.
type Service struct {
	store  *docstore.Store
	idx    *index.Index
	engine *reconcile.Engine
	search *search.Service
	logger zerolog.Logger
}

// New creates a knowledge service.
func New(store *docstore.Store, idx *index.Index, engine *reconcile.Engine, searchSvc *search.Service, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		idx:    idx,
		engine: engine,
		search: searchSvc,
		logger: logger,
	}
}

// SaveParams carries the fields of a new document. ID is optional; a fresh
// uuid is assigned when absent.
type SaveParams struct {
	ID        string
	Type      document.ContentType
	Title     string
	Body      string
	Tags      []string
	Links     []string
	Category  string
	Status    document.Status
	SourceURL string
	Author    string
	Gist      string
}

// Save persists a new document and reconciles it into both indexes. The
// relational row is queryable when Save returns; the embedding may still be
// in flight.
func (s *Service) Save(ctx context.Context, p SaveParams) (*document.Document, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if p.Type == "" {
		p.Type = document.TypeNote
	}
	if !document.ValidType(p.Type) {
		return nil, fmt.Errorf("invalid content type: %q", p.Type)
	}
	if p.Status == "" {
		p.Status = document.StatusSaved
	}
	if !document.ValidStatus(p.Status) {
		return nil, fmt.Errorf("invalid status: %q", p.Status)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	doc := &document.Document{
		ID:        p.ID,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		Tags:      p.Tags,
		Links:     p.Links,
		Category:  p.Category,
		Status:    p.Status,
		SourceURL: p.SourceURL,
		Author:    p.Author,
		Gist:      p.Gist,
		CreatedAt: now,
		UpdatedAt: now,
	}

	relPath, err := s.store.Write(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	if err := s.engine.ReconcilePath(ctx, relPath); err != nil {
		return nil, err
	}

	s.logger.Info().Str("id", doc.ID).Str("type", string(doc.Type)).Msg("Document saved")
	return doc, nil
}

// Get returns the indexed view of a document.
func (s *Service) Get(ctx context.Context, id string) (*index.Row, error) {
	return s.idx.GetByID(id)
}

// List returns documents matching the filter, most recently updated first.
func (s *Service) List(ctx context.Context, f index.Filter) ([]index.Row, error) {
	return s.idx.List(f)
}

// UpdateParams patches a document. Nil fields are left unchanged.
type UpdateParams struct {
	Type      *document.ContentType
	Title     *string
	Body      *string
	Tags      *[]string
	Links     *[]string
	Category  *string
	Status    *document.Status
	SourceURL *string
	Author    *string
	Gist      *string
}

// Update applies a patch to a document. The file on disk is the authoritative
// base, not the index row. A change of content type moves the file, since
// the path embeds the type. Metadata-only patches never re-embed.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (*document.Document, error) {
	row, err := s.idx.GetByID(id)
	if err != nil {
		return nil, err
	}

	doc, err := s.store.Read(row.Path)
	if err != nil {
		return nil, err
	}

	oldPath := row.Path
	if p.Type != nil {
		if !document.ValidType(*p.Type) {
			return nil, fmt.Errorf("invalid content type: %q", *p.Type)
		}
		doc.Type = *p.Type
	}
	if p.Title != nil {
		if *p.Title == "" {
			return nil, fmt.Errorf("title cannot be empty")
		}
		doc.Title = *p.Title
	}
	if p.Body != nil {
		doc.Body = *p.Body
	}
	if p.Tags != nil {
		doc.Tags = *p.Tags
	}
	if p.Links != nil {
		doc.Links = *p.Links
	}
	if p.Category != nil {
		doc.Category = *p.Category
	}
	if p.Status != nil {
		if !document.ValidStatus(*p.Status) {
			return nil, fmt.Errorf("invalid status: %q", *p.Status)
		}
		doc.Status = *p.Status
	}
	if p.SourceURL != nil {
		doc.SourceURL = *p.SourceURL
	}
	if p.Author != nil {
		doc.Author = *p.Author
	}
	if p.Gist != nil {
		doc.Gist = *p.Gist
	}
	doc.UpdatedAt = time.Now().UTC()

	relPath, err := s.store.Write(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	if relPath != oldPath {
		if err := s.store.Delete(oldPath); err != nil {
			s.logger.Warn().Err(err).Str("path", oldPath).Msg("Failed to remove old document file after move")
		}
	}

	if err := s.engine.ReconcilePath(ctx, relPath); err != nil {
		return nil, err
	}

	s.logger.Info().Str("id", id).Msg("Document updated")
	return doc, nil
}

// Delete removes a document's file and its rows in both indexes.
func (s *Service) Delete(ctx context.Context, id string) error {
	row, err := s.idx.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(row.Path); err != nil {
		return err
	}
	if err := s.engine.Remove(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("id", id).Msg("Document deleted")
	return nil
}

// Link records a one-way reference from one document to another. Linking an
// already-linked pair is a no-op; the target must exist.
func (s *Service) Link(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("cannot link a document to itself")
	}
	if _, err := s.idx.GetByID(toID); err != nil {
		return fmt.Errorf("link target: %w", err)
	}

	row, err := s.idx.GetByID(fromID)
	if err != nil {
		return err
	}
	doc, err := s.store.Read(row.Path)
	if err != nil {
		return err
	}
	if doc.HasLink(toID) {
		return nil
	}

	links := append(doc.Links, toID)
	_, err = s.Update(ctx, fromID, UpdateParams{Links: &links})
	return err
}

// MarkStatus sets a document's workflow status.
func (s *Service) MarkStatus(ctx context.Context, id string, status document.Status) error {
	if !document.ValidStatus(status) {
		return fmt.Errorf("invalid status: %q", status)
	}
	_, err := s.Update(ctx, id, UpdateParams{Status: &status})
	return err
}

// SearchKeyword, SearchSemantic and SearchHybrid delegate to the search
// service.
func (s *Service) SearchKeyword(ctx context.Context, query string, f index.Filter, limit int) ([]search.Result, error) {
	return s.search.Keyword(ctx, query, f, limit)
}

func (s *Service) SearchSemantic(ctx context.Context, query string, f index.Filter, limit int) ([]search.Result, error) {
	return s.search.Semantic(ctx, query, f, limit)
}

func (s *Service) SearchHybrid(ctx context.Context, query string, f index.Filter, limit int) ([]search.Result, error) {
	return s.search.Hybrid(ctx, query, f, limit)
}
