package store

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
)

// Stats holds catalog statistics.
type Stats struct {
	DBPath        string           `json:"db_path"`
	DBSizeBytes   int64            `json:"db_size_bytes"`
	DBSize        string           `json:"db_size"`
	TotalRecords  int              `json:"total_records"`
	ActiveRecords int              `json:"active_records"`
	TotalChunks   int              `json:"total_chunks"`
	TotalLinks    int              `json:"total_links"`
	Namespaces    []NamespaceStats `json:"namespaces"`
}

// NamespaceStats holds per-namespace counts of live records. The model
// totals cover the latest version of each model.
type NamespaceStats struct {
	NS       string `json:"ns"`
	Versions int    `json:"versions"`
	Models   int    `json:"models"`
	Segments int    `json:"segments"`
	Muscles  int    `json:"muscles"`
	DOF      int    `json:"dof"`
	MaxDOF   int    `json:"max_dof"`
}

// Stats returns catalog statistics. The size covers the main database file
// and its write-ahead log.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	for _, p := range []string{dbPath, dbPath + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			st.DBSizeBytes += info.Size()
		}
	}
	st.DBSize = humanize.Bytes(uint64(st.DBSizeBytes))

	for _, c := range []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM records`, &st.TotalRecords},
		{`SELECT COUNT(*) FROM records WHERE deleted_at IS NULL`, &st.ActiveRecords},
		{`SELECT COUNT(*) FROM chunks`, &st.TotalChunks},
		{`SELECT COUNT(*) FROM record_links`, &st.TotalLinks},
	} {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return st, err
		}
	}

	ns, err := s.ListNamespaces(ctx)
	if err != nil {
		return st, err
	}
	st.Namespaces = ns
	return st, nil
}

// ListNamespaces returns every namespace with live records, largest first.
func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]NamespaceStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns, COUNT(*) AS cnt, COUNT(DISTINCT name) AS models
		FROM records WHERE deleted_at IS NULL
		GROUP BY ns ORDER BY cnt DESC, ns`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NamespaceStats
	index := map[string]int{}
	for rows.Next() {
		var ns NamespaceStats
		if err := rows.Scan(&ns.NS, &ns.Versions, &ns.Models); err != nil {
			return nil, err
		}
		index[ns.NS] = len(out)
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totals, err := s.db.QueryContext(ctx, `
		SELECT m.ns, SUM(m.segments), SUM(m.muscles), SUM(m.dof), MAX(m.dof)
		FROM records m `+latestJoin+`
		WHERE m.deleted_at IS NULL
		GROUP BY m.ns`)
	if err != nil {
		return nil, err
	}
	defer totals.Close()
	for totals.Next() {
		var name string
		var segs, muscles, dof, maxDOF int
		if err := totals.Scan(&name, &segs, &muscles, &dof, &maxDOF); err != nil {
			return nil, err
		}
		if i, ok := index[name]; ok {
			out[i].Segments, out[i].Muscles, out[i].DOF, out[i].MaxDOF = segs, muscles, dof, maxDOF
		}
	}
	return out, totals.Err()
}
