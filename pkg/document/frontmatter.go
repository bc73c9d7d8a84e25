package document

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Encode serializes a document as a YAML frontmatter block followed by the
// body text. This is the canonical on-disk representation.
func Encode(doc *Document) ([]byte, error) {
	head, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter)
	buf.WriteString("\n")
	buf.Write(head)
	buf.WriteString(frontmatterDelimiter)
	buf.WriteString("\n")
	buf.WriteString(doc.Body)
	return buf.Bytes(), nil
}

// Decode parses a frontmatter document into a strongly typed Document.
// Broken YAML, a missing frontmatter block, or missing required fields
// return an error wrapping ErrMalformed.
func Decode(data []byte) (*Document, error) {
	head, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(head, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid frontmatter: %v", ErrMalformed, err)
	}

	if doc.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if doc.Title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrMalformed)
	}

	// Loosely written headers get defaults rather than a rejection, but a
	// value outside the known enums is a parse failure.
	if doc.Type == "" {
		doc.Type = TypeNote
	} else if !ValidType(doc.Type) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, doc.Type)
	}
	if doc.Status == "" {
		doc.Status = StatusSaved
	} else if !ValidStatus(doc.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, doc.Status)
	}

	doc.Body = string(body)
	return &doc, nil
}

// splitFrontmatter separates the YAML header from the body. The header is
// delimited by "---" lines; everything after the closing delimiter is body.
func splitFrontmatter(data []byte) (head, body []byte, err error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") {
		return nil, nil, fmt.Errorf("%w: missing frontmatter header", ErrMalformed)
	}

	rest := text[len(frontmatterDelimiter)+1:]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter+"\n")
	if idx < 0 {
		// A file may end exactly at the closing delimiter with no body.
		if strings.HasSuffix(rest, "\n"+frontmatterDelimiter) {
			return []byte(rest[:len(rest)-len(frontmatterDelimiter)-1]), nil, nil
		}
		return nil, nil, fmt.Errorf("%w: unterminated frontmatter header", ErrMalformed)
	}

	head = []byte(rest[:idx+1])
	body = []byte(rest[idx+1+len(frontmatterDelimiter)+1:])
	return head, body, nil
}
