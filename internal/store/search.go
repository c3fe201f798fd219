package store

import (
	"errors"
	"strings"
)

// ErrBadQuery is returned when a search query has no searchable terms.
var ErrBadQuery = errors.New("search query has no searchable terms")

// SearchMessages performs a full-text search on message bodies, newest first. Every
// whitespace-separated word must match; a trailing * makes a word a prefix.
func (db *DB) SearchMessages(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	match, ok := matchExpr(query)
	if !ok {
		return nil, ErrBadQuery
	}

	rows, err := db.Query(`
		SELECT m.id, COALESCE(m.client_message_id, ''), m.phone, m.client_id, m.name, m.message,
		       m.status, m.from_me, m.source, m.author_name, m.created_at,
		       snippet(messages_fts, '<<', '>>', '...')
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		WHERE messages_fts MATCH ?
		ORDER BY m.created_at DESC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var (
			r       SearchResult
			created string
		)
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ClientMessageID, &r.Message.Phone, &r.Message.ClientID,
			&r.Message.Name, &r.Message.Body, &r.Message.Status, &r.Message.FromMe,
			&r.Message.Source, &r.Message.AuthorName, &created, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.CreatedAt = parseTime(created)
		results = append(results, r)
	}
	return results, rows.Err()
}

// matchExpr turns operator input into a MATCH expression of quoted terms, so FTS syntax
// characters (quotes, parentheses, AND/OR/NEAR) are searched literally instead of parsed.
func matchExpr(query string) (string, bool) {
	var terms []string
	for _, word := range strings.Fields(query) {
		prefix := strings.HasSuffix(word, "*")
		word = strings.Map(func(r rune) rune {
			if r == '"' || r == '*' {
				return -1
			}
			return r
		}, word)
		if word == "" {
			continue
		}
		if prefix {
			word += "*"
		}
		terms = append(terms, `"`+word+`"`)
	}
	return strings.Join(terms, " "), len(terms) > 0
}
