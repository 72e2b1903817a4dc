package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wgroenewold/stream/internal/alert"
)

const selectRules = `
	SELECT a.id, a.date, a.author, a.alert_type, m.meta_key, m.meta_value
	FROM alerts a
	LEFT JOIN alert_meta m ON m.alert_id = a.id
`

// UpsertRule inserts a rule with no id, or updates the row of an existing
// one. It returns the row id, or 0 when an update matched no row.
func (db *DB) UpsertRule(ctx context.Context, rule *alert.Rule) (int64, error) {
	date := rule.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var id int64
	var err error
	if rule.ID == 0 {
		query := `
			INSERT INTO alerts (date, author, alert_type)
			VALUES ($1, $2, $3)
			RETURNING id
		`
		err = db.conn.QueryRowContext(ctx, query, date, rule.Author, rule.AlertType).Scan(&id)
	} else {
		query := `
			UPDATE alerts
			SET date = $2, author = $3, alert_type = $4
			WHERE id = $1
			RETURNING id
		`
		err = db.conn.QueryRowContext(ctx, query, rule.ID, date, rule.Author, rule.AlertType).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to upsert alert: %w", err)
	}
	return id, nil
}

// UpdateRuleMeta writes one meta key, replacing any previous value.
func (db *DB) UpdateRuleMeta(ctx context.Context, id int64, key, value string) error {
	query := `
		INSERT INTO alert_meta (alert_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (alert_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
	`
	if _, err := db.conn.ExecContext(ctx, query, id, key, value); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("%w: %d", alert.ErrNotFound, id)
		}
		return fmt.Errorf("failed to update alert meta %s: %w", key, err)
	}
	return nil
}

// LoadRules returns every rule with its meta, ordered by id.
func (db *DB) LoadRules(ctx context.Context) ([]*alert.Rule, error) {
	rows, err := db.conn.QueryContext(ctx, selectRules+" ORDER BY a.id, m.meta_key")
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetRule returns one rule, or alert.ErrNotFound.
func (db *DB) GetRule(ctx context.Context, id int64) (*alert.Rule, error) {
	rows, err := db.conn.QueryContext(ctx, selectRules+" WHERE a.id = $1 ORDER BY m.meta_key", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: %d", alert.ErrNotFound, id)
	}
	return rules[0], nil
}

// DeleteRule removes a rule. Its meta rows cascade.
func (db *DB) DeleteRule(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", alert.ErrNotFound, id)
	}
	return nil
}

// scanRules folds the one-row-per-meta-key join back into rules. Rows must
// be grouped by alert id.
func scanRules(rows *sql.Rows) ([]*alert.Rule, error) {
	var rules []*alert.Rule
	var raw map[string]any
	var currentID int64

	flush := func() {
		if raw != nil {
			rules = append(rules, alert.New(raw))
		}
	}

	for rows.Next() {
		var (
			id        int64
			date      time.Time
			author    string
			alertType string
			metaKey   sql.NullString
			metaValue sql.NullString
		)
		if err := rows.Scan(&id, &date, &author, &alertType, &metaKey, &metaValue); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if raw == nil || id != currentID {
			flush()
			currentID = id
			raw = map[string]any{
				alert.KeyID:        id,
				alert.KeyDate:      date,
				alert.KeyAuthor:    author,
				alert.KeyAlertType: alertType,
			}
		}
		if metaKey.Valid {
			raw[metaKey.String] = metaValue.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	flush()
	return rules, nil
}
