package store

import (
	"context"
	"database/sql"
	"io/fs"
	"path"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/teamresolve/internal/db"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// A single connection serializes writers, matching SQLite's locking model.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: conn}
	s.sqlStore = &sqlStore{
		ex:      &sqlExec{q: conn},
		dialect: dialectSQLite,
		begin: func(ctx context.Context) (txExecutor, db.Copier, error) {
			tx, err := conn.BeginTx(ctx, nil)
			if err != nil {
				return nil, nil, err
			}
			return &sqlTx{sqlExec: sqlExec{q: tx}, tx: tx}, nil, nil
		},
	}
	return s, nil
}

// Migrate applies the embedded SQLite migrations not yet recorded in
// schema_migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.sqlite"))

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	names, err := db.MigrationFiles(Migrations, sqliteMigrationsDir)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	for _, name := range names {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&n); err != nil {
			return eris.Wrapf(err, "sqlite: check migration %s", name)
		}
		if n > 0 {
			continue
		}

		data, err := fs.ReadFile(Migrations, path.Join(sqliteMigrationsDir, name))
		if err != nil {
			return eris.Wrapf(err, "sqlite: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", name)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return eris.Wrapf(err, "sqlite: record migration %s", name)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
