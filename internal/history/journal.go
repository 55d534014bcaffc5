// Package history keeps a journal of sync outcomes in SQL. The local default
// is an SQLite file next to the results; a postgres:// DSN lets a team share
// one journal.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/projsync/internal/dbx"
	"github.com/dmitrijs2005/projsync/internal/history/migrations"
	"github.com/dmitrijs2005/projsync/internal/models"
)

// Journal stores models.SyncEvent rows.
type Journal struct {
	db      *sql.DB
	dialect dbx.Dialect
	now     func() time.Time
}

// DialectFor picks the dialect from a DSN: URLs with a postgres scheme go to
// pgx, everything else is an SQLite path.
func DialectFor(dsn string) dbx.Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return dbx.Postgres
	}
	return dbx.SQLite
}

func driverFor(d dbx.Dialect) string {
	if d == dbx.Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	dialect := DialectFor(dsn)
	db, err := sql.Open(driverFor(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to journal: %w", err)
	}
	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error migrating journal: %w", err)
	}
	return NewJournal(db, dialect), nil
}

// NewJournal wraps an already migrated database.
func NewJournal(db *sql.DB, dialect dbx.Dialect) *Journal {
	return &Journal{db: db, dialect: dialect, now: time.Now}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	gd := "sqlite3"
	if dialect == dbx.Postgres {
		gd = "postgres"
	}
	if err := goose.SetDialect(gd); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, string(dialect))
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts events in one transaction. Events without a timestamp are
// stamped with the current time.
func (j *Journal) Record(ctx context.Context, events []models.SyncEvent) error {
	if len(events) == 0 {
		return nil
	}
	query := j.dialect.Rebind(`INSERT INTO sync_events
		(operation, project_id, project_name, action, local_ts, remote_ts, files, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	return dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, ev := range events {
			at := ev.OccurredAt
			if at.IsZero() {
				at = j.now()
			}
			_, err := tx.ExecContext(ctx, query,
				ev.Operation, ev.ProjectID, ev.ProjectName, ev.Action,
				ev.LocalTS, ev.RemoteTS, ev.Files, ev.Detail, at.UnixMilli())
			if err != nil {
				return fmt.Errorf("failed to insert sync event: %w", err)
			}
		}
		return nil
	})
}

const selectEvents = `SELECT id, operation, project_id, project_name, action,
	local_ts, remote_ts, files, detail, occurred_at FROM sync_events`

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.SyncEvent, error) {
	return j.query(ctx, selectEvents+` ORDER BY id DESC LIMIT ?`, limit)
}

// ForProject returns up to limit events of one project, newest first.
func (j *Journal) ForProject(ctx context.Context, projectID string, limit int) ([]models.SyncEvent, error) {
	return j.query(ctx, selectEvents+` WHERE project_id = ? ORDER BY id DESC LIMIT ?`, projectID, limit)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]models.SyncEvent, error) {
	rows, err := j.db.QueryContext(ctx, j.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync events: %w", err)
	}
	defer rows.Close()

	result := []models.SyncEvent{}
	for rows.Next() {
		var ev models.SyncEvent
		var at int64
		if err := rows.Scan(&ev.ID, &ev.Operation, &ev.ProjectID, &ev.ProjectName, &ev.Action,
			&ev.LocalTS, &ev.RemoteTS, &ev.Files, &ev.Detail, &at); err != nil {
			return nil, err
		}
		ev.OccurredAt = time.UnixMilli(at).UTC()
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
