package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is the embedded durable Backend binding: each
// collection is a table with a UUID primary key and a JSON payload
// column. It gives single-node deployments durability without running
// a separate vector database, at the cost of evaluating the filter DSL
// in-process after a full-table SELECT, same as the date-range filters
// every binding already has to apply after fetch.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) the sqlite file at
// path using the pure-Go modernc.org/sqlite driver.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("storage: ping sqlite %s: %w", path, err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func tableName(collection string) string {
	return "collection_" + strings.ReplaceAll(collection, "-", "_")
}

func (b *SQLiteBackend) EnsureCollection(ctx context.Context, name string, _ int, _ Distance) error {
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, payload TEXT NOT NULL)`,
		tableName(name),
	)
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("storage: ensure collection %s: %w", name, err)
	}
	return nil
}

func (b *SQLiteBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: upsert begin: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(
		`INSERT INTO %s (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		tableName(collection),
	)
	for _, p := range points {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("storage: marshal payload for %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, p.ID, string(raw)); err != nil {
			return fmt.Errorf("storage: upsert %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) SetPayload(ctx context.Context, collection string, ids []string, payload map[string]any) error {
	existing, err := b.Retrieve(ctx, collection, ids)
	if err != nil {
		return err
	}
	points := make([]Point, 0, len(existing))
	for _, p := range existing {
		merged := make(map[string]any, len(p.Payload)+len(payload))
		for k, v := range p.Payload {
			merged[k] = v
		}
		for k, v := range payload {
			merged[k] = v
		}
		points = append(points, Point{ID: p.ID, Payload: merged})
	}
	return b.Upsert(ctx, collection, points)
}

func (b *SQLiteBackend) Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, payload FROM %s WHERE id IN (%s)`,
		tableName(collection), strings.Join(placeholders, ","))

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: retrieve from %s: %w", collection, err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (b *SQLiteBackend) Scroll(ctx context.Context, collection string, params ScrollParams) ([]Point, error) {
	all, err := b.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	matched := make([]Point, 0, len(all))
	for _, p := range all {
		if matches(params.Filter, p.ID, p.Payload) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, params.Offset, params.Limit), nil
}

func (b *SQLiteBackend) Count(ctx context.Context, collection string, params CountParams) (int, error) {
	all, err := b.scanAll(ctx, collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range all {
		if matches(params.Filter, p.ID, p.Payload) {
			n++
		}
	}
	return n, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, collection string, params DeleteParams) error {
	table := tableName(collection)
	for _, id := range params.IDs {
		if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
			return fmt.Errorf("storage: delete %s: %w", id, err)
		}
	}
	if params.Filter != nil {
		matched, err := b.Scroll(ctx, collection, ScrollParams{Filter: params.Filter})
		if err != nil {
			return err
		}
		for _, p := range matched {
			if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), p.ID); err != nil {
				return fmt.Errorf("storage: delete %s: %w", p.ID, err)
			}
		}
	}
	return nil
}

func (b *SQLiteBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, tableName(name))
	var found int
	err := row.Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: collection exists %s: %w", name, err)
	}
	return true, nil
}

func (b *SQLiteBackend) GetCollections(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'collection_%'`)
	if err != nil {
		return nil, fmt.Errorf("storage: list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, strings.TrimPrefix(name, "collection_"))
	}
	sort.Strings(names)
	return names, rows.Err()
}

func (b *SQLiteBackend) scanAll(ctx context.Context, collection string) ([]Point, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload FROM %s`, tableName(collection)))
	if err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", collection, err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

func scanPoints(rows *sql.Rows) ([]Point, error) {
	var out []Point
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("storage: unmarshal payload for %s: %w", id, err)
		}
		out = append(out, Point{ID: id, Payload: payload})
	}
	return out, rows.Err()
}
