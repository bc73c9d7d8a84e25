// Package index maintains the relational projection of the document store in
// an embedded SQLite database: one row per document plus an FTS5 full-text
// structure over title, body, tags and gist.
//
// Rows are created and updated by the reconciliation engine only; callers
// read them through point lookups, filtered listings and keyword search.
package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/ansel/lore/pkg/document"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Row is the relational index's copy of a document plus the content hash of
// the body as last embedded. An empty hash means the document has never been
// embedded successfully and the next reconciliation pass will retry.
type Row struct {
	document.Document
	ContentHash string
}

// Hit is a keyword search result with its bm25-derived relevance score
// (higher is more relevant).
type Hit struct {
	Row
	Score float64
}

// Filter narrows listings and keyword search.
type Filter struct {
	Type     document.ContentType
	Category string
	Status   document.Status
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Index is the relational index handle.
type Index struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the relational index at the given path. FTS5 must
// be available in the linked SQLite build.
func Open(path string, logger zerolog.Logger) (*Index, error) {
	if path == "" {
		return nil, errors.New("index path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &Index{db: db, logger: logger}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return idx, nil
}

func (x *Index) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			content_type TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			links TEXT NOT NULL DEFAULT '[]',
			category TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			gist TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			content_hash TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
		CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);
		CREATE INDEX IF NOT EXISTS idx_documents_type_status ON documents(content_type, status);

		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			doc_id UNINDEXED,
			title,
			body,
			tags,
			gist,
			tokenize='porter unicode61'
		);
	`
	_, err := x.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (x *Index) Close() error {
	return x.db.Close()
}

// Upsert writes a document row and its full-text entry, keyed by id. The
// operation is idempotent; last writer wins.
func (x *Index) Upsert(doc *document.Document, contentHash string) error {
	tags, err := json.Marshal(emptyIfNil(doc.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	links, err := json.Marshal(emptyIfNil(doc.Links))
	if err != nil {
		return fmt.Errorf("failed to marshal links: %w", err)
	}

	tx, err := x.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// A different id may still own this path after an in-place id edit in
	// the frontmatter. The file is the source of truth, so the displaced
	// row goes; its vector record is settled by the next sweep's prune.
	_, err = tx.Exec(
		`DELETE FROM documents_fts WHERE doc_id IN
			(SELECT id FROM documents WHERE path = ? AND id != ?)`,
		doc.Path, doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear displaced full-text entry: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM documents WHERE path = ? AND id != ?`, doc.Path, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to clear displaced document row: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO documents
			(id, path, content_type, title, body, tags, links, category, status,
			 source_url, author, gist, created_at, updated_at, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			content_type = excluded.content_type,
			title = excluded.title,
			body = excluded.body,
			tags = excluded.tags,
			links = excluded.links,
			category = excluded.category,
			status = excluded.status,
			source_url = excluded.source_url,
			author = excluded.author,
			gist = excluded.gist,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			content_hash = excluded.content_hash
	`,
		doc.ID, doc.Path, string(doc.Type), doc.Title, doc.Body, string(tags),
		string(links), doc.Category, string(doc.Status), doc.SourceURL,
		doc.Author, doc.Gist, doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(),
		contentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document row: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM documents_fts WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear full-text entry: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO documents_fts (doc_id, title, body, tags, gist) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Body, joinForSearch(doc.Tags), doc.Gist,
	)
	if err != nil {
		return fmt.Errorf("failed to write full-text entry: %w", err)
	}

	return tx.Commit()
}

// SetContentHash records the hash of the body as last embedded. The
// reconciliation engine calls this only after a successful vector write, so
// an interrupted embedding is retried on the next pass.
func (x *Index) SetContentHash(id, contentHash string) error {
	res, err := x.db.Exec(`UPDATE documents SET content_hash = ? WHERE id = ?`, contentHash, id)
	if err != nil {
		return fmt.Errorf("failed to set content hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return nil
}

// GetByID returns the row for the given document id.
func (x *Index) GetByID(id string) (*Row, error) {
	return x.getOne(`WHERE id = ?`, id)
}

// GetByPath reverse-looks-up a row by its file path. Used to translate a
// file deletion event back to a document id.
func (x *Index) GetByPath(path string) (*Row, error) {
	return x.getOne(`WHERE path = ?`, path)
}

func (x *Index) getOne(where string, arg any) (*Row, error) {
	row := x.db.QueryRow(selectColumns+` FROM documents `+where, arg)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", document.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a document row and its full-text entry. Deleting an absent
// id is a no-op.
func (x *Index) Delete(id string) error {
	tx, err := x.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document row: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents_fts WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete full-text entry: %w", err)
	}
	return tx.Commit()
}

// DeleteByPath removes the row stored at the given path and returns its id,
// or ErrNotFound when the path is untracked.
func (x *Index) DeleteByPath(path string) (string, error) {
	row, err := x.GetByPath(path)
	if err != nil {
		return "", err
	}
	if err := x.Delete(row.ID); err != nil {
		return "", err
	}
	return row.ID, nil
}

// List returns rows matching the filter in reverse chronological order of
// last update.
func (x *Index) List(f Filter) ([]Row, error) {
	query := selectColumns + ` FROM documents`
	where, args := filterClauses(f, "")
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, clampLimit(f.Limit), f.Offset)

	rows, err := x.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// IDs returns every indexed document id. The reconciliation sweep uses this
// to prune rows whose files disappeared out-of-band.
func (x *Index) IDs() ([]string, error) {
	rows, err := x.db.Query(`SELECT id FROM documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of indexed documents.
func (x *Index) Count() (int, error) {
	var n int
	err := x.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

const selectColumns = `
	SELECT id, path, content_type, title, body, tags, links, category, status,
	       source_url, author, gist, created_at, updated_at, content_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (*Row, error) {
	var (
		r                    Row
		tags, links          string
		createdNs, updatedNs int64
	)
	err := sc.Scan(
		&r.ID, &r.Path, &r.Type, &r.Title, &r.Body, &tags, &links, &r.Category,
		&r.Status, &r.SourceURL, &r.Author, &r.Gist, &createdNs, &updatedNs,
		&r.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	return rehydrate(&r, tags, links, createdNs, updatedNs)
}

// rehydrate finishes converting scanned column values back into a Row.
func rehydrate(r *Row, tags, links string, createdNs, updatedNs int64) (*Row, error) {
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(links), &r.Links); err != nil {
		return nil, fmt.Errorf("failed to unmarshal links: %w", err)
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	if len(r.Links) == 0 {
		r.Links = nil
	}
	r.CreatedAt = time.Unix(0, createdNs).UTC()
	r.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return r, nil
}

func collectRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func filterClauses(f Filter, prefix string) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, prefix+"content_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, prefix+"category = ?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where = append(where, prefix+"status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, prefix+"updated_at >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, prefix+"updated_at <= ?")
		args = append(args, f.To.UnixNano())
	}
	return where, args
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
