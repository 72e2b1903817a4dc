package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/wgroenewold/stream/internal/record"
)

// ErrRecordNotFound is returned by GetRecord for an unknown id.
var ErrRecordNotFound = errors.New("record not found")

// DefaultRecordLimit caps ListRecords when no limit is given.
const DefaultRecordLimit = 50

// RecordQuery filters ListRecords. Empty fields are ignored.
type RecordQuery struct {
	Contexts []string
	Action   string
	Actor    string
	Limit    int
}

// InsertRecord stores rec and returns its new id.
func (db *DB) InsertRecord(ctx context.Context, rec *record.Record) (int64, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record metadata: %w", err)
	}

	query := `
		INSERT INTO records (created, actor, context, action, object_id, summary, ip, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err = db.conn.QueryRowContext(ctx, query,
		rec.Timestamp,
		rec.Actor,
		rec.Context,
		rec.Action,
		rec.ObjectID,
		rec.Summary,
		rec.IP,
		metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

const selectRecords = `
	SELECT id, created, actor, context, action, object_id, summary, ip, metadata
	FROM records
`

// GetRecord returns one stored record.
func (db *DB) GetRecord(ctx context.Context, id int64) (*record.Record, error) {
	rec, err := scanRecord(db.conn.QueryRowContext(ctx, selectRecords+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns the newest records matching q.
func (db *DB) ListRecords(ctx context.Context, q RecordQuery) ([]*record.Record, error) {
	var where []string
	var args []any
	if len(q.Contexts) > 0 {
		args = append(args, pq.Array(q.Contexts))
		where = append(where, fmt.Sprintf("context = ANY($%d)", len(args)))
	}
	if q.Action != "" {
		args = append(args, q.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if q.Actor != "" {
		args = append(args, q.Actor)
		where = append(where, fmt.Sprintf("actor = $%d", len(args)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRecordLimit
	}

	query := selectRecords
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created DESC, id DESC LIMIT $%d", len(args))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := make([]*record.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.Record, error) {
	var rec record.Record
	var metadata []byte
	if err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.Actor,
		&rec.Context,
		&rec.Action,
		&rec.ObjectID,
		&rec.Summary,
		&rec.IP,
		&metadata,
	); err != nil {
		return nil, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Metadata = make(map[string]string)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			slog.Warn("Failed to unmarshal record metadata", "record_id", rec.ID, "error", err)
			rec.Metadata = make(map[string]string)
		}
	}
	return &rec, nil
}
