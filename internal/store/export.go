package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/model"
)

// ExportAll returns all non-deleted records with their payload, optionally
// filtered by namespace, oldest version first.
func (s *SQLiteStore) ExportAll(ctx context.Context, ns string) ([]model.Record, error) {
	where := []string{"m.deleted_at IS NULL"}
	args := []interface{}{}

	if ns != "" {
		where = append(where, "m.ns = ?")
		args = append(args, ns)
	}

	query := `SELECT ` + payloadColumns + ` FROM records m WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY m.ns, m.name, m.version`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows, true)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Import stores exported records as new versions. Each payload is decoded
// through the model's own checks first. Records whose ns, name and bioMod
// text already exist among live versions are skipped.
func (s *SQLiteStore) Import(ctx context.Context, records []model.Record) (int, error) {
	imported := 0
	for _, r := range records {
		m, err := r.Decode()
		if err != nil {
			return imported, fmt.Errorf("import %s/%s v%d: %w", r.NS, r.Name, r.Version, err)
		}
		if r.BioMod == "" {
			text, err := biomod.Render(m, nil)
			if err != nil {
				return imported, fmt.Errorf("import %s/%s v%d: %w", r.NS, r.Name, r.Version, err)
			}
			r.BioMod = string(text)
		}

		var one int
		err = s.db.QueryRowContext(ctx,
			`SELECT 1 FROM records WHERE ns = ? AND name = ? AND biomod = ? AND deleted_at IS NULL LIMIT 1`,
			r.NS, r.Name, r.BioMod).Scan(&one)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return imported, err
		}

		if _, err := s.insert(ctx, model.Record{
			NS:     r.NS,
			Name:   r.Name,
			Tags:   r.Tags,
			Meta:   r.Meta,
			BioMod: r.BioMod,
		}, m); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
