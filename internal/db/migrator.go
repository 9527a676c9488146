package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/db/dsn"
	"github.com/openkcm/tenant-lifecycle/migrations"
)

const (
	SchemaMigrationTable = "goose_db_schema_version"
	SharedSchema         = "public"
)

type migrateFunc func(ctx context.Context, db *sql.DB, dir string) error

type Migration struct {
	Downgrade bool
}

type Migrator interface {
	MigrateToLatest(ctx context.Context, migration Migration) error
	MigrateTo(ctx context.Context, migration Migration, version int64) error
	Version(ctx context.Context) (int64, error)
}

type migrator struct {
	dsn  string
	dir  string
	fsys fs.FS
}

// NewMigrator builds a migrator from the database config. Without an explicit
// migrator dir the embedded schema set is used.
func NewMigrator(cfg *config.Config) (Migrator, error) {
	d, err := dsn.FromDBConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	return NewMigratorDSN(d, cfg.Database.Migrator.Dir), nil
}

func NewMigratorDSN(dsn, dir string) Migrator {
	if dir == "" {
		return &migrator{dsn: dsn, dir: migrations.SchemaDir, fsys: migrations.FS}
	}

	return &migrator{dsn: dsn, dir: dir}
}

// MigrateToLatest runs migrations onto the latest version
// For migrations with Downgrade false, it runs all migrations up to and including the latest version
// For migrations with Downgrade true, it downgrades the latest version
func (m *migrator) MigrateToLatest(ctx context.Context, migration Migration) error {
	return m.run(ctx, func(ctx context.Context, db *sql.DB, dir string) error {
		if migration.Downgrade {
			return goose.DownContext(ctx, db, dir)
		}

		return goose.UpContext(ctx, db, dir)
	})
}

// MigrateTo runs migrations up-to a specific version
// For migrations with Downgrade false, it migrates up to the specified version
// For migrations with Downgrade true, it downgrades until the DB is the specified version
func (m *migrator) MigrateTo(ctx context.Context, migration Migration, version int64) error {
	return m.run(ctx, func(ctx context.Context, db *sql.DB, dir string) error {
		if migration.Downgrade {
			return goose.DownToContext(ctx, db, dir, version)
		}

		return goose.UpToContext(ctx, db, dir, version)
	})
}

func (m *migrator) Version(ctx context.Context) (int64, error) {
	var version int64

	err := m.run(ctx, func(ctx context.Context, db *sql.DB, _ string) error {
		var err error

		version, err = goose.GetDBVersionContext(ctx, db)

		return err
	})

	return version, err
}

func (m *migrator) run(ctx context.Context, f migrateFunc) error {
	db, err := goose.OpenDBWithDriver(string(goose.DialectPostgres), m.dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	err = goose.SetDialect(string(goose.DialectPostgres))
	if err != nil {
		return err
	}

	goose.SetBaseFS(m.fsys)
	goose.SetTableName(fmt.Sprintf("%s.%s", QuoteSchema(SharedSchema), SchemaMigrationTable))

	return f(ctx, db, m.dir)
}

func QuoteSchema(schema string) string {
	return fmt.Sprintf("\"%s\"", schema)
}
