// Package storage implements ports.Repository on database/sql, backed by
// SQLite (modernc.org/sqlite) or Postgres (pgx).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Repository is the SQL implementation of ports.Repository.
type Repository struct {
	db     *sql.DB
	driver string
	logger *log.Logger
	now    func() time.Time
}

var _ ports.Repository = (*Repository)(nil)

// Open connects to the database, applies migrations and returns a ready repository.
// For sqlite, dsn is a file path.
func Open(ctx context.Context, driver, dsn string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = sqliteDSN(dsn)
	}

	sqlDriver, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	switch driver {
	case DriverSQLite:
		// One writer at a time; avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.InfoContext(ctx, "Database ready", "driver", driver)
	return &Repository{db: db, driver: driver, logger: logger, now: time.Now}, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// stamp returns the current time truncated to seconds, so text-encoded
// SQLite timestamps compare in chronological order.
func (r *Repository) stamp() time.Time {
	return r.now().UTC().Truncate(time.Second)
}

func (r *Repository) dateArg(d core.Date) any {
	if r.driver == DriverPostgres {
		return d.Time
	}
	return d.String()
}

func (r *Repository) timeArg(t time.Time) any {
	return t.UTC().Truncate(time.Second)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dateValue scans DATE columns stored as text (SQLite) or date (Postgres).
type dateValue struct{ core.Date }

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Date = core.DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		d.Date = core.Date{}
		return nil
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
}

func (d *dateValue) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	parsed, err := core.ParseDate(s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Date = parsed
	return nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
