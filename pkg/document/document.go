// Package document defines the knowledge base document model and its
// on-disk frontmatter format.
//
// Invariants:
// - A document id is assigned once and is the join key across all stores.
// - The content hash covers body text only; metadata edits never change it.
package document

import (
	"errors"
	"time"
)

// ContentType classifies what kind of knowledge a document captures.
type ContentType string

const (
	TypeNote         ContentType = "note"
	TypeJournal      ContentType = "journal"
	TypeArticle      ContentType = "article"
	TypeVideo        ContentType = "video"
	TypeReminder     ContentType = "reminder"
	TypeConversation ContentType = "conversation"
)

// Status distinguishes captured-but-unconsumed content from consumed content.
type Status string

const (
	StatusSaved    Status = "saved"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

var (
	// ErrNotFound indicates the requested id or path has no matching document.
	ErrNotFound = errors.New("document not found")

	// ErrMalformed indicates a document that cannot be parsed (broken
	// frontmatter or missing required fields). Malformed documents are
	// skipped during reconciliation, never fatal.
	ErrMalformed = errors.New("malformed document")
)

// Document is the unit of knowledge. The file system copy is authoritative;
// index rows are derived projections.
type Document struct {
	ID        string      `yaml:"id"`
	Type      ContentType `yaml:"type"`
	Title     string      `yaml:"title"`
	Body      string      `yaml:"-"`
	Tags      []string    `yaml:"tags,omitempty"`
	Links     []string    `yaml:"links,omitempty"`
	Category  string      `yaml:"category,omitempty"`
	Status    Status      `yaml:"status"`
	CreatedAt time.Time   `yaml:"created"`
	UpdatedAt time.Time   `yaml:"updated"`
	SourceURL string      `yaml:"source_url,omitempty"`
	Author    string      `yaml:"author,omitempty"`
	Gist      string      `yaml:"gist,omitempty"`

	// Path is the document's location relative to the store root. It is
	// bookkeeping, not part of the persisted frontmatter.
	Path string `yaml:"-"`
}

// ValidType reports whether t is one of the known content types.
func ValidType(t ContentType) bool {
	switch t {
	case TypeNote, TypeJournal, TypeArticle, TypeVideo, TypeReminder, TypeConversation:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusSaved, StatusRead, StatusArchived:
		return true
	}
	return false
}

// HasLink reports whether the document already links to the given id.
func (d *Document) HasLink(id string) bool {
	for _, l := range d.Links {
		if l == id {
			return true
		}
	}
	return false
}
