package index

import (
	"fmt"
	"strings"
	"unicode"
)

// SearchKeyword runs a bm25-ranked full-text query over title, body, tags and
// gist. The user query is neutralized before matching: FTS5 operators,
// unbalanced quotes and wildcards in the input are treated as literal text,
// never as syntax. An empty or whitespace query returns no results without
// error. Filters combine with the match.
func (x *Index) SearchKeyword(query string, f Filter, limit int) ([]Hit, error) {
	match := sanitizeMatch(query)
	if match == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	// Column weights: title and tags dominate, gist counts more than body.
	// doc_id is unindexed so its weight is zero.
	// Columns must be qualified: documents_fts shares title/body/tags/gist
	// names with documents, and unqualified references are ambiguous.
	sqlQuery := `
	SELECT documents.id, documents.path, documents.content_type, documents.title,
	       documents.body, documents.tags, documents.links, documents.category,
	       documents.status, documents.source_url, documents.author,
	       documents.gist, documents.created_at, documents.updated_at,
	       documents.content_hash,
	       bm25(documents_fts, 0, 5.0, 1.0, 3.0, 2.0) AS score
	FROM documents_fts
	JOIN documents ON documents.id = documents_fts.doc_id
	WHERE documents_fts MATCH ?`
	args := []any{match}

	where, filterArgs := filterClauses(f, "documents.")
	for _, clause := range where {
		sqlQuery += " AND " + clause
	}
	args = append(args, filterArgs...)

	sqlQuery += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := x.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			r                    Row
			tags, links          string
			createdNs, updatedNs int64
			score                float64
		)
		err := rows.Scan(
			&r.ID, &r.Path, &r.Type, &r.Title, &r.Body, &tags, &links,
			&r.Category, &r.Status, &r.SourceURL, &r.Author, &r.Gist,
			&createdNs, &updatedNs, &r.ContentHash, &score,
		)
		if err != nil {
			return nil, err
		}
		hydrated, err := rehydrate(&r, tags, links, createdNs, updatedNs)
		if err != nil {
			return nil, err
		}
		// bm25 scores are negative; closer to zero is better. Negate so
		// higher means more relevant.
		hits = append(hits, Hit{Row: *hydrated, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

// sanitizeMatch converts arbitrary user input into a safe FTS5 MATCH
// expression: each whitespace-separated token becomes a quoted string (with
// embedded quotes doubled), joined by implicit AND. Tokens without any
// searchable character would parse as empty phrases and are dropped.
func sanitizeMatch(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, tok := range fields {
		if !hasSearchable(tok) {
			continue
		}
		tok = strings.ReplaceAll(tok, `"`, `""`)
		terms = append(terms, `"`+tok+`"`)
	}
	return strings.Join(terms, " ")
}

func hasSearchable(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// joinForSearch flattens tags into a single searchable field.
func joinForSearch(tags []string) string {
	return strings.Join(tags, " ")
}
