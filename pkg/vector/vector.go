// Package vector maintains the vector projection of the document store: one
// embedding per document in an embedded sqlite-vec index, queryable by
// cosine similarity.
//
// Records are written only when a document's body content hash changes, so
// embedding cost tracks semantic change rather than every edit.
package vector

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register the sqlite-vec extension on every new connection.
	sqlite_vec.Auto()
}

// Hit is a similarity query result. Score is monotonic with geometric
// closeness: 1 - cosine distance, so closer vectors score higher.
type Hit struct {
	ID    string
	Score float64
}

// Index is the vector index handle. Dimension is fixed per deployment and
// must match the embedding provider in use; changing embedding models means
// re-embedding the whole corpus into a fresh index.
type Index struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// Open opens (or creates) a vector index with the given dimensionality.
func Open(path string, dimension int, logger zerolog.Logger) (*Index, error) {
	if path == "" {
		return nil, errors.New("vector index path is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", dimension)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(
			doc_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimension)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}

	metaSchema := `
		CREATE TABLE IF NOT EXISTS vector_meta (
			doc_id TEXT PRIMARY KEY,
			content_type TEXT NOT NULL,
			title TEXT NOT NULL
		);
	`
	if _, err := db.Exec(metaSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector metadata table: %w", err)
	}

	return &Index{db: db, dimension: dimension, logger: logger}, nil
}

// Dimension returns the index's fixed vector dimensionality.
func (x *Index) Dimension() int {
	return x.dimension
}

// Close closes the underlying database handle.
func (x *Index) Close() error {
	return x.db.Close()
}

// Upsert writes a document's embedding and display metadata, keyed by id.
func (x *Index) Upsert(id string, embedding []float32, contentType, title string) error {
	if len(embedding) != x.dimension {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d",
			len(embedding), x.dimension)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	tx, err := x.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// vec0 virtual tables reject INSERT OR REPLACE; delete-then-insert is
	// the supported way to replace a row.
	if _, err := tx.Exec(`DELETE FROM vectors WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO vectors (doc_id, embedding) VALUES (?, ?)`,
		id, string(embeddingJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO vector_meta (doc_id, content_type, title) VALUES (?, ?, ?)`,
		id, contentType, title,
	)
	if err != nil {
		return fmt.Errorf("failed to store vector metadata: %w", err)
	}
	return tx.Commit()
}

// Remove deletes a document's vector record. Removing an absent id is a
// no-op.
func (x *Index) Remove(id string) error {
	tx, err := x.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vectors WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove embedding: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM vector_meta WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove vector metadata: %w", err)
	}
	return tx.Commit()
}

// Query returns the ids most similar to the given vector, best first.
func (x *Index) Query(embedding []float32, limit int) ([]Hit, error) {
	if len(embedding) != x.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(embedding), x.dimension)
	}
	if limit <= 0 {
		limit = 10
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query embedding: %w", err)
	}

	rows, err := x.db.Query(`
		SELECT doc_id, vec_distance_cosine(embedding, ?) AS distance
		FROM vectors
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: id, Score: 1.0 - distance})
	}
	return hits, rows.Err()
}

// IDs returns every stored vector's document id. The reconciliation sweep
// uses this to drop records whose documents are gone.
func (x *Index) IDs() ([]string, error) {
	rows, err := x.db.Query(`SELECT doc_id FROM vectors`)
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

// Count returns the number of stored vectors.
func (x *Index) Count() (int, error) {
	var n int
	err := x.db.QueryRow(`SELECT COUNT(*) FROM vectors`).Scan(&n)
	return n, err
}
