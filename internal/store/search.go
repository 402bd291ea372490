package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/biobuddy/internal/model"
)

// SearchParams holds parameters for searching the catalog.
type SearchParams struct {
	NS    string
	Query string
	Limit int
}

// SearchResult wraps a record with the best matching block, if any.
type SearchResult struct {
	model.Record
	MatchChunk *model.Chunk `json:"match_chunk,omitempty"`
}

// Search finds the latest version of records whose name contains the query
// or whose bioMod blocks match it in the full-text index. Name matches come
// first, then block matches by rank.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	q := strings.TrimSpace(p.Query)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}

	where := []string{"m.deleted_at IS NULL"}
	var args []interface{}
	if p.NS != "" {
		where = append(where, "m.ns = ?")
		args = append(args, p.NS)
	}
	filter := strings.Join(where, " AND ")

	var results []SearchResult
	seen := map[string]bool{}

	byName := fmt.Sprintf(`
		SELECT %s FROM records m %s
		WHERE %s AND m.name LIKE ?
		ORDER BY m.created_at DESC
		LIMIT ?`, summaryColumns, latestJoin, filter)
	rows, err := s.db.QueryContext(ctx, byName, append(args, "%"+q+"%", limit)...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		r, err := scanRecord(rows, false)
		if err != nil {
			rows.Close()
			return nil, err
		}
		seen[r.ID] = true
		results = append(results, SearchResult{Record: r})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Quoting makes the query one FTS phrase, so names like PELVIS_O match
	// their tokens in order instead of tripping the query syntax.
	phrase := `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
	byBlock := fmt.Sprintf(`
		SELECT %s, c.id, c.seq, c.kind, c.name, c.text, c.start_line, c.end_line
		FROM chunks_fts
		INNER JOIN chunks c ON c.rowid = chunks_fts.rowid
		INNER JOIN records m ON m.id = c.record_id %s
		WHERE chunks_fts MATCH ? AND %s
		ORDER BY chunks_fts.rank`, summaryColumns, latestJoin, filter)
	rows, err = s.db.QueryContext(ctx, byBlock, append([]interface{}{phrase}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()
	for rows.Next() && len(results) < limit {
		var c model.Chunk
		var name *string
		var start, end *int
		r, err := scanRecord(chunkRow{rows, []interface{}{&c.ID, &c.Seq, &c.Kind, &name, &c.Text, &start, &end}}, false)
		if err != nil {
			return nil, err
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		c.RecordID = r.ID
		if name != nil {
			c.Name = *name
		}
		if start != nil {
			c.StartLine = *start
		}
		if end != nil {
			c.EndLine = *end
		}
		results = append(results, SearchResult{Record: r, MatchChunk: &c})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, rows.Err()
}

// chunkRow appends the chunk columns to a record scan.
type chunkRow struct {
	scanner
	extra []interface{}
}

func (r chunkRow) Scan(dest ...interface{}) error {
	return r.scanner.Scan(append(dest, r.extra...)...)
}
