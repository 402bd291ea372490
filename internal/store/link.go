package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/biobuddy/internal/model"
)

// LinkParams holds parameters for creating/removing a link.
type LinkParams struct {
	FromNS   string
	FromName string
	ToNS     string
	ToName   string
	Rel      string // derived_from | variant_of | refines | depends_on
	Remove   bool
}

// Link represents a relation between two catalog records.
type Link struct {
	FromID    string `json:"from_id"`
	ToID      string `json:"to_id"`
	Rel       string `json:"rel"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Link creates or removes a relation between the latest versions of two records.
func (s *SQLiteStore) Link(ctx context.Context, p LinkParams) (*Link, error) {
	if !model.ValidRelations[p.Rel] {
		return nil, fmt.Errorf("invalid relation %q (valid: %s)", p.Rel, relationNames())
	}

	fromID, err := s.resolveRecordID(ctx, p.FromNS, p.FromName)
	if err != nil {
		return nil, fmt.Errorf("resolve from: %w", err)
	}
	toID, err := s.resolveRecordID(ctx, p.ToNS, p.ToName)
	if err != nil {
		return nil, fmt.Errorf("resolve to: %w", err)
	}
	if fromID == toID {
		return nil, fmt.Errorf("cannot link %s/%s to itself", p.FromNS, p.FromName)
	}

	if p.Remove {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM record_links WHERE from_id = ? AND to_id = ? AND rel = ?`,
			fromID, toID, p.Rel)
		if err != nil {
			return nil, err
		}
		return &Link{FromID: fromID, ToID: toID, Rel: p.Rel}, nil
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO record_links (from_id, to_id, rel, created_at) VALUES (?, ?, ?, ?)`,
		fromID, toID, p.Rel, now)
	if err != nil {
		return nil, err
	}

	return &Link{FromID: fromID, ToID: toID, Rel: p.Rel, CreatedAt: now}, nil
}

// GetLinks returns all links touching a record.
func (s *SQLiteStore) GetLinks(ctx context.Context, recordID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, rel, created_at FROM record_links
		 WHERE from_id = ? OR to_id = ?
		 ORDER BY created_at`, recordID, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.FromID, &l.ToID, &l.Rel, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// resolveRecordID finds the latest live record ID for a ns/name pair.
func (s *SQLiteStore) resolveRecordID(ctx context.Context, ns, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM records WHERE ns = ? AND name = ? AND deleted_at IS NULL
		 ORDER BY version DESC LIMIT 1`, ns, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, ns, name)
	}
	return id, nil
}

func relationNames() string {
	var names []string
	for r := range model.ValidRelations {
		names = append(names, r)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
