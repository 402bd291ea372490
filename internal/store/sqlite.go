package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/chunker"
	"github.com/rcliao/biobuddy/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		ns          TEXT NOT NULL,
		name        TEXT NOT NULL,
		tags        TEXT,
		version     INTEGER NOT NULL DEFAULT 1,
		supersedes  TEXT,
		created_at  TEXT NOT NULL,
		deleted_at  TEXT,
		meta        TEXT,
		segments    INTEGER NOT NULL DEFAULT 0,
		muscles     INTEGER NOT NULL DEFAULT 0,
		dof         INTEGER NOT NULL DEFAULT 0,
		model       TEXT NOT NULL,
		biomod      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_ns_name ON records(ns, name);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_deleted ON records(deleted_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		record_id   TEXT NOT NULL REFERENCES records(id),
		seq         INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		name        TEXT,
		text        TEXT NOT NULL,
		start_line  INTEGER,
		end_line    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_record ON chunks(record_id);

	CREATE TABLE IF NOT EXISTS record_links (
		from_id    TEXT NOT NULL REFERENCES records(id),
		to_id      TEXT NOT NULL REFERENCES records(id),
		rel        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel)
	);
	CREATE INDEX IF NOT EXISTS idx_links_to ON record_links(to_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		name,
		text,
		content=chunks,
		content_rowid=rowid
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, name, text) VALUES (new.rowid, new.name, new.text);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, name, text) VALUES('delete', old.rowid, old.name, old.text);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, name, text) VALUES('delete', old.rowid, old.name, old.text);
		INSERT INTO chunks_fts(rowid, name, text) VALUES (new.rowid, new.name, new.text);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores the resolved model as the next version of ns/name.
func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Record, error) {
	if p.Source == nil {
		return nil, errors.New("put: no model given")
	}
	m, err := p.Source.Real()
	if err != nil {
		return nil, err
	}
	text, err := biomod.Render(m, p.Header)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return s.insert(ctx, model.Record{
		NS:     p.NS,
		Name:   p.Name,
		Tags:   p.Tags,
		Meta:   p.Meta,
		BioMod: string(text),
	}, m)
}

// insert writes r as a new version. The counts and JSON payload come from m.
func (s *SQLiteStore) insert(ctx context.Context, r model.Record, m *model.Model) (*model.Record, error) {
	if r.NS == "" || r.Name == "" {
		return nil, errors.New("namespace and name are required")
	}
	if r.Meta != "" && !json.Valid([]byte(r.Meta)) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidMeta, r.NS, r.Name)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}

	now := time.Now().UTC()
	r.ID = s.newID()
	r.CreatedAt = now
	r.Segments = len(m.Segments())
	r.Muscles = len(m.Muscles())
	r.DOF = m.DOFCount()
	r.Model = payload

	var tagsJSON *string
	if len(r.Tags) > 0 {
		b, _ := json.Marshal(r.Tags)
		s := string(b)
		tagsJSON = &s
	}
	var metaPtr *string
	if r.Meta != "" {
		metaPtr = &r.Meta
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Versions keep counting past soft-deleted ones; supersedes points at the
	// latest live version.
	var maxVersion int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM records WHERE ns = ? AND name = ?`,
		r.NS, r.Name).Scan(&maxVersion); err != nil {
		return nil, err
	}
	r.Version = maxVersion + 1

	var prevID string
	var supersedes *string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM records
		 WHERE ns = ? AND name = ? AND deleted_at IS NULL
		 ORDER BY version DESC LIMIT 1`, r.NS, r.Name).Scan(&prevID)
	switch {
	case err == nil:
		r.Supersedes = prevID
		supersedes = &prevID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, ns, name, tags, version, supersedes, created_at, meta, segments, muscles, dof, model, biomod)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.NS, r.Name, tagsJSON, r.Version, supersedes, now.Format(timeLayout),
		metaPtr, r.Segments, r.Muscles, r.DOF, string(payload), r.BioMod)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	chunks := chunker.Chunk(r.BioMod, chunker.DefaultOptions())
	for i, c := range chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, record_id, seq, kind, name, text, start_line, end_line)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.newID(), r.ID, i, c.Kind, c.Name, c.Text, c.StartLine, c.EndLine)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	r.ChunkCount = len(chunks)
	return &r, nil
}

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const summaryColumns = `m.id, m.ns, m.name, m.tags, m.version, m.supersedes, m.created_at, m.deleted_at,
	m.meta, m.segments, m.muscles, m.dof, (SELECT COUNT(*) FROM chunks c WHERE c.record_id = m.id)`

const payloadColumns = summaryColumns + `, m.model, m.biomod`

// latestJoin restricts a query over records m to the newest live version of
// each ns/name.
const latestJoin = `
	INNER JOIN (
		SELECT ns, name, MAX(version) AS max_ver
		FROM records WHERE deleted_at IS NULL
		GROUP BY ns, name
	) latest ON m.ns = latest.ns AND m.name = latest.name AND m.version = latest.max_ver`

func (s *SQLiteStore) Get(ctx context.Context, p GetParams) ([]model.Record, error) {
	query := `SELECT ` + payloadColumns + ` FROM records m WHERE m.ns = ? AND m.name = ? AND m.deleted_at IS NULL`
	args := []interface{}{p.NS, p.Name}
	switch {
	case p.History:
		query += ` ORDER BY m.version DESC`
	case p.Version > 0:
		query += ` AND m.version = ? LIMIT 1`
		args = append(args, p.Version)
	default:
		query += ` ORDER BY m.version DESC LIMIT 1`
	}

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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, p.NS, p.Name)
	}
	return records, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"m.deleted_at IS NULL"}
	var args []interface{}
	if p.NS != "" {
		where = append(where, "m.ns = ?")
		args = append(args, p.NS)
	}
	for _, tag := range p.Tags {
		where = append(where, "m.tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM records m %s
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT ?`, summaryColumns, latestJoin, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows, false)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Rm(ctx context.Context, p RmParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ids []string
	if p.AllVersions {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM records WHERE ns = ? AND name = ?`, p.NS, p.Name)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
	} else {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM records WHERE ns = ? AND name = ? AND deleted_at IS NULL ORDER BY version DESC LIMIT 1`,
			p.NS, p.Name).Scan(&id)
		if err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, p.NS, p.Name)
	}

	now := time.Now().UTC().Format(timeLayout)
	for _, id := range ids {
		if !p.Hard {
			if _, err := tx.ExecContext(ctx,
				`UPDATE records SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM record_links WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE record_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner, payload bool) (model.Record, error) {
	var r model.Record
	var tagsJSON, supersedes, deletedAt, meta sql.NullString
	var createdAt string
	var modelJSON string

	dest := []interface{}{
		&r.ID, &r.NS, &r.Name, &tagsJSON, &r.Version, &supersedes, &createdAt, &deletedAt,
		&meta, &r.Segments, &r.Muscles, &r.DOF, &r.ChunkCount,
	}
	if payload {
		dest = append(dest, &modelJSON, &r.BioMod)
	}
	if err := row.Scan(dest...); err != nil {
		return r, err
	}

	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if supersedes.Valid {
		r.Supersedes = supersedes.String
	}
	if deletedAt.Valid {
		t, _ := time.Parse(timeLayout, deletedAt.String)
		r.DeletedAt = &t
	}
	if meta.Valid {
		r.Meta = meta.String
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
	}
	if payload {
		r.Model = json.RawMessage(modelJSON)
	}
	return r, nil
}
