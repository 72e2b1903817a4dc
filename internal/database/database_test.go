package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/wgroenewold/stream/internal/alert"
	"github.com/wgroenewold/stream/internal/record"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &DB{conn: conn}, mock
}

func TestNewDB(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{name: "invalid DSN", dsn: "invalid-dsn"},
		{name: "empty DSN", dsn: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if db, err := NewDB(tt.dsn); err == nil {
				db.Close()
				t.Error("NewDB() expected error")
			}
		})
	}
}

func TestDB_Close(t *testing.T) {
	db := &DB{conn: nil}
	if err := db.Close(); err != nil {
		t.Errorf("Close() with nil conn error = %v, want nil", err)
	}
}

func TestDB_Migrate(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS alerts").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	mock.ExpectExec("CREATE TABLE").WillReturnError(sql.ErrConnDone)
	if err := db.Migrate(context.Background()); err == nil {
		t.Error("Migrate() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDB_UpsertRule(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		rule      *alert.Rule
		setupMock func()
		wantID    int64
		wantErr   bool
	}{
		{
			name: "insert new rule",
			rule: &alert.Rule{Author: "admin", AlertType: "email"},
			setupMock: func() {
				mock.ExpectQuery("INSERT INTO alerts").
					WithArgs(sqlmock.AnyArg(), "admin", "email").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(17))
			},
			wantID: 17,
		},
		{
			name: "update existing rule",
			rule: &alert.Rule{ID: 4, Author: "admin", AlertType: "slack"},
			setupMock: func() {
				mock.ExpectQuery("UPDATE alerts").
					WithArgs(int64(4), sqlmock.AnyArg(), "admin", "slack").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
			},
			wantID: 4,
		},
		{
			name: "update of missing row is declined",
			rule: &alert.Rule{ID: 99, AlertType: "slack"},
			setupMock: func() {
				mock.ExpectQuery("UPDATE alerts").WillReturnError(sql.ErrNoRows)
			},
			wantID: 0,
		},
		{
			name: "driver error",
			rule: &alert.Rule{AlertType: "email"},
			setupMock: func() {
				mock.ExpectQuery("INSERT INTO alerts").WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()
			id, err := db.UpsertRule(ctx, tt.rule)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpsertRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Errorf("UpsertRule() id = %d, want %d", id, tt.wantID)
			}
		})
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDB_UpdateRuleMeta(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO alert_meta").
		WithArgs(int64(3), "filter_context", "posts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := db.UpdateRuleMeta(ctx, 3, "filter_context", "posts"); err != nil {
		t.Errorf("UpdateRuleMeta() error = %v", err)
	}

	mock.ExpectExec("INSERT INTO alert_meta").WillReturnError(&pq.Error{Code: "23503"})
	if err := db.UpdateRuleMeta(ctx, 3, "alert_type", "email"); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("UpdateRuleMeta() error = %v, want ErrNotFound", err)
	}

	mock.ExpectExec("INSERT INTO alert_meta").WillReturnError(sql.ErrConnDone)
	err := db.UpdateRuleMeta(ctx, 3, "alert_type", "email")
	if err == nil || !strings.Contains(err.Error(), "alert_type") {
		t.Errorf("UpdateRuleMeta() error = %v", err)
	}
}

func ruleRows() *sqlmock.Rows {
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "date", "author", "alert_type", "meta_key", "meta_value"}).
		AddRow(1, date, "admin", "email", "alert_meta", `{"recipients":"ops@example.com"}`).
		AddRow(1, date, "admin", "email", "filter_context", "posts").
		AddRow(2, date, "admin", "slack", nil, nil).
		AddRow(3, date, "editor", "webhook", "filter_author", "bob")
}

func TestDB_LoadRules(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FROM alerts a").WillReturnRows(ruleRows())

	rules, err := db.LoadRules(context.Background())
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("LoadRules() returned %d rules, want 3", len(rules))
	}

	first := rules[0]
	if first.ID != 1 || first.FilterContext != "posts" || first.AlertMeta["recipients"] != "ops@example.com" {
		t.Errorf("rules[0] = %+v", first)
	}
	if !rules[1].IsBroadcast() || rules[1].AlertType != "slack" {
		t.Errorf("rules[1] = %+v", rules[1])
	}
	if rules[2].FilterAuthor != "bob" || rules[2].Author != "editor" {
		t.Errorf("rules[2] = %+v", rules[2])
	}
}

func TestDB_LoadRules_Errors(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM alerts a").WillReturnError(sql.ErrConnDone)
	if _, err := db.LoadRules(context.Background()); err == nil {
		t.Error("LoadRules() expected query error")
	}

	mock.ExpectQuery("FROM alerts a").WillReturnRows(
		sqlmock.NewRows([]string{"id", "date", "author", "alert_type", "meta_key", "meta_value"}).
			AddRow("not-a-number", time.Now(), "a", "email", nil, nil))
	if _, err := db.LoadRules(context.Background()); err == nil {
		t.Error("LoadRules() expected scan error")
	}
}

func TestDB_GetRule(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	date := time.Now().UTC()
	mock.ExpectQuery("WHERE a.id").WithArgs(int64(5)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "date", "author", "alert_type", "meta_key", "meta_value"}).
			AddRow(5, date, "admin", "log", "filter_action", "login"))
	rule, err := db.GetRule(ctx, 5)
	if err != nil || rule.ID != 5 || rule.FilterAction != "login" {
		t.Fatalf("GetRule() = %+v, %v", rule, err)
	}

	mock.ExpectQuery("WHERE a.id").WithArgs(int64(6)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "date", "author", "alert_type", "meta_key", "meta_value"}))
	if _, err := db.GetRule(ctx, 6); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("GetRule() error = %v, want ErrNotFound", err)
	}
}

func TestDB_DeleteRule(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM alerts").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := db.DeleteRule(ctx, 1); err != nil {
		t.Errorf("DeleteRule() error = %v", err)
	}

	mock.ExpectExec("DELETE FROM alerts").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := db.DeleteRule(ctx, 2); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("DeleteRule() error = %v, want ErrNotFound", err)
	}

	mock.ExpectExec("DELETE FROM alerts").WillReturnError(sql.ErrConnDone)
	if err := db.DeleteRule(ctx, 3); err == nil {
		t.Error("DeleteRule() expected error")
	}
}

func TestDB_InsertRecord(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	rec := &record.Record{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Actor:     "alice",
		Context:   "posts",
		Action:    "created",
		ObjectID:  "42",
		Summary:   "Hello world",
		IP:        "10.0.0.1",
		Metadata:  map[string]string{"post_type": "post"},
	}

	mock.ExpectQuery("INSERT INTO records").
		WithArgs(rec.Timestamp, "alice", "posts", "created", "42", "Hello world", "10.0.0.1", []byte(`{"post_type":"post"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	id, err := db.InsertRecord(ctx, rec)
	if err != nil || id != 101 {
		t.Fatalf("InsertRecord() = %d, %v", id, err)
	}

	mock.ExpectQuery("INSERT INTO records").WillReturnError(sql.ErrConnDone)
	if _, err := db.InsertRecord(ctx, rec); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("InsertRecord() error = %v", err)
	}
}

var recordColumns = []string{"id", "created", "actor", "context", "action", "object_id", "summary", "ip", "metadata"}

func TestDB_GetRecord(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("FROM records").WithArgs(int64(7)).WillReturnRows(
		sqlmock.NewRows(recordColumns).AddRow(7, ts, "bob", "users", "login", "", "", "", []byte(`{"role":"admin"}`)))
	rec, err := db.GetRecord(ctx, 7)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.ID != 7 || rec.Actor != "bob" || rec.Meta("role") != "admin" || !rec.Timestamp.Equal(ts) {
		t.Errorf("GetRecord() = %+v", rec)
	}

	mock.ExpectQuery("FROM records").WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)
	if _, err := db.GetRecord(ctx, 8); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("GetRecord() error = %v, want ErrRecordNotFound", err)
	}
}

func TestDB_ListRecords(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	mock.ExpectQuery(`WHERE context = ANY\(\$1\) AND actor = \$2 ORDER BY created DESC, id DESC LIMIT \$3`).
		WithArgs(sqlmock.AnyArg(), "alice", 10).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(2, ts, "alice", "posts", "updated", "9", "", "", []byte(`{}`)).
			AddRow(1, ts, "alice", "comments", "created", "3", "", "", []byte(`not json`)))

	recs, err := db.ListRecords(ctx, RecordQuery{Contexts: []string{"posts", "comments"}, Actor: "alice", Limit: 10})
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != 2 {
		t.Fatalf("ListRecords() = %v", recs)
	}
	if len(recs[1].Metadata) != 0 {
		t.Error("malformed metadata should decode to an empty map")
	}

	mock.ExpectQuery(`FROM records\s+ORDER BY created DESC, id DESC LIMIT \$1`).
		WithArgs(DefaultRecordLimit).
		WillReturnRows(sqlmock.NewRows(recordColumns))
	recs, err = db.ListRecords(ctx, RecordQuery{})
	if err != nil || recs == nil || len(recs) != 0 {
		t.Errorf("ListRecords(empty) = %v, %v", recs, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
