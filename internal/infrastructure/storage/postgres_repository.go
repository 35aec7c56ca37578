package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

const historyTable = "publish_history"

// Schema creates the mirror table. Safe to run on every start.
const Schema = `CREATE TABLE IF NOT EXISTS publish_history (
    record_id    TEXT PRIMARY KEY,
    published_at TIMESTAMPTZ NOT NULL,
    bucket       TEXT NOT NULL,
    upload_type  TEXT NOT NULL,
    item_ids     TEXT[] NOT NULL,
    titles       TEXT[] NOT NULL,
    authors      TEXT[] NOT NULL,
    external_id  TEXT NOT NULL,
    url          TEXT NOT NULL,
    restricted   BOOLEAN NOT NULL DEFAULT FALSE,
    status       TEXT NOT NULL DEFAULT ''
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository mirrors committed publish records into Postgres for reporting.
// The state document stays authoritative.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.HistorySink = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the mirror table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create %s: %w", historyTable, err)
	}
	return nil
}

// Record inserts the record; replays of the same record are ignored.
func (r *PostgresRepository) Record(ctx context.Context, record domain.PublishRecord) error {
	if r.db == nil {
		return nil
	}

	query, args, err := psql.Insert(historyTable).
		Columns("record_id", "published_at", "bucket", "upload_type", "item_ids", "titles", "authors", "external_id", "url", "restricted", "status").
		Values(
			record.ID,
			record.PublishedAt,
			record.Bucket,
			string(record.UploadType),
			pq.StringArray(record.ItemIDs),
			pq.StringArray(record.Titles),
			pq.StringArray(record.Authors),
			record.ExternalID,
			record.URL,
			record.Restricted,
			record.Status,
		).
		Suffix("ON CONFLICT (record_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert publish record: %w", err)
	}
	return nil
}

// AlreadyPublished returns the subset of ids that appear in any mirrored record.
func (r *PostgresRepository) AlreadyPublished(ctx context.Context, ids []string) (map[string]bool, error) {
	if r.db == nil || len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := psql.Select("DISTINCT unnest(item_ids)").
		From(historyTable).
		Where("item_ids && ?", pq.StringArray(ids)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query published: %w", err)
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	result := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		if wanted[id] {
			result[id] = true
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}
