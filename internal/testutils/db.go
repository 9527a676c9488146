package testutils

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/db"
	"github.com/openkcm/tenant-lifecycle/internal/db/dsn"
)

var TestDB = config.Database{
	Host: commoncfg.SourceRef{
		Source: commoncfg.EmbeddedSourceValue,
		Value:  "localhost",
	},
	User: commoncfg.SourceRef{
		Source: commoncfg.EmbeddedSourceValue,
		Value:  "postgres",
	},
	Secret: commoncfg.SourceRef{
		Source: commoncfg.EmbeddedSourceValue,
		Value:  "secret",
	},
	Name: "tenant_lifecycle",
	Port: "5432",
}

const MaxPSQLDatabaseName = 63

// NewTestDB returns a migrated registry database private to the test. It
// starts (or reuses) the postgres container and creates a fresh database named
// after tb.Name().
func NewTestDB(tb testing.TB) (*multitenancy.DB, config.Database) {
	tb.Helper()

	cfg := TestDB
	StartPostgresSQL(tb, &cfg)

	admin, err := db.StartDBConnection(tb.Context(), cfg, nil)
	require.NoError(tb, err)

	name := processNameForDB(tb.Name())

	require.NoError(tb, admin.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE);", name)).Error)
	require.NoError(tb, admin.Exec(fmt.Sprintf("CREATE DATABASE %s;", name)).Error)

	closeDB(tb, admin)

	cfg.Name = name

	d, err := dsn.FromDBConfig(cfg)
	require.NoError(tb, err)

	require.NoError(tb, db.NewMigratorDSN(d, "").MigrateToLatest(tb.Context(), db.Migration{}))

	con, err := db.StartDBConnection(tb.Context(), cfg, nil)
	require.NoError(tb, err)

	tb.Cleanup(func() { closeDB(tb, con) })

	return con, cfg
}

func closeDB(tb testing.TB, con *multitenancy.DB) {
	tb.Helper()

	sqlDB, err := con.DB.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
}

// tb.Name() returns following format TESTA/SUBTESTB
// Postgres does not support identifiers with "/" character and has max len 63 char
func processNameForDB(n string) string {
	name := strings.ToLower(n)
	name = strings.ReplaceAll(name, "/", "_")

	name = regexp.MustCompile(`[^a-z0-9_]+`).ReplaceAllString(name, "")
	if len(name) > MaxPSQLDatabaseName {
		name = name[:MaxPSQLDatabaseName]
	}

	return name
}
