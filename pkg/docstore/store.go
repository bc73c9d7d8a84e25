// Package docstore persists documents as frontmatter markdown files under a
// root directory. The file tree is the durable source of truth; everything
// else in the system is a derived projection of it.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ansel/lore/pkg/document"
)

// Store reads and writes documents on the file system.
type Store struct {
	root   string
	logger zerolog.Logger
}

// New creates a document store rooted at the given directory, creating it if
// necessary.
func New(root string, logger zerolog.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the relative path a document is stored at. The layout is
// one directory per content type, one file per document id.
func PathFor(doc *document.Document) string {
	return filepath.Join(string(doc.Type), doc.ID+".md")
}

// Write persists a document atomically (write-then-rename) and returns its
// path relative to the store root. A concurrent reader never observes a
// half-written file.
func (s *Store) Write(doc *document.Document) (string, error) {
	relPath := PathFor(doc)
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}

	data, err := document.Encode(doc)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := writeFileAtomic(fullPath, data, 0644); err != nil {
		return "", err
	}

	doc.Path = relPath
	return relPath, nil
}

// Read loads and parses the document at the given relative path. Returns
// document.ErrNotFound if the file is absent and document.ErrMalformed if it
// cannot be parsed.
func (s *Store) Read(relPath string) (*document.Document, error) {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", document.ErrNotFound, relPath)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", relPath, err)
	}
	doc.Path = relPath
	return doc, nil
}

// Delete removes the document file. Deleting an absent path is a no-op.
func (s *Store) Delete(relPath string) error {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Walk calls fn with the relative path of every markdown document under the
// store root.
func (s *Store) Walk(fn func(relPath string) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		return fn(relPath)
	})
}

// Rel converts an absolute path under the store root into a store-relative
// path. Used to translate watcher events.
func (s *Store) Rel(fullPath string) (string, error) {
	relPath, err := filepath.Rel(s.root, fullPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path outside store root: %s", fullPath)
	}
	return relPath, nil
}

// resolve validates a relative path and joins it with the store root. Paths
// escaping the root are rejected.
func (s *Store) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", errors.New("path cannot be empty")
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path must be relative: %s", relPath)
	}
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path cannot reference parent directories: %s", relPath)
	}
	return filepath.Join(s.root, clean), nil
}
