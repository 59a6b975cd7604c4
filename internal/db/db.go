package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/orrn/printdispatch/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

var ErrNotFound = errors.New("record not found")

// DB is a relational store opened with one of the supported drivers. Queries
// are written with '?' placeholders and rebound for the driver.
type DB struct {
	*sql.DB
	driver string
}

func Open(cfg config.DatabaseConfig) (*DB, error) {
	var dsn string
	switch cfg.Driver {
	case config.DriverSQLite:
		dsn = sqliteDSN(cfg.Path)
	case config.DriverPostgres:
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: conn, driver: cfg.Driver}, nil
}

func sqliteDSN(p string) string {
	if strings.Contains(p, "?") {
		return p
	}
	return p + "?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"
}

func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) rebind(query string) string {
	if d.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type Migration struct {
	Version string
	SQL     string
}

func (d *DB) loadMigrations() ([]Migration, error) {
	dir := path.Join("migrations", d.driver)
	var migrations []Migration
	err := fs.WalkDir(migrationsFS, dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}
		content, err := fs.ReadFile(migrationsFS, p)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", p, err)
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(path.Base(p), ".sql"),
			SQL:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk migrations directory: %w", err)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations. It returns the versions it applied.
func (d *DB) Migrate(ctx context.Context) ([]string, error) {
	if _, err := d.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := d.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrations, err := d.loadMigrations()
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			return done, fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return done, fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.Version); err != nil {
			tx.Rollback()
			return done, fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return done, fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		done = append(done, m.Version)
	}

	return done, nil
}

func (d *DB) Jobs() *JobOperations {
	return &JobOperations{db: d}
}

func (d *DB) Profiles() *ProfileOperations {
	return &ProfileOperations{db: d}
}

func (d *DB) Settings() *SettingsOperations {
	return &SettingsOperations{db: d}
}
