package dsn_test

import (
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/db/dsn"
)

func embedded(v string) commoncfg.SourceRef {
	return commoncfg.SourceRef{Source: commoncfg.EmbeddedSourceValue, Value: v}
}

func TestFromDBConfig(t *testing.T) {
	got, err := dsn.FromDBConfig(config.Database{
		Name:   "registry",
		Port:   "5432",
		Host:   embedded("localhost"),
		User:   embedded("postgres"),
		Secret: embedded("secret"),
	})
	require.NoError(t, err)
	assert.Equal(t,
		"host=localhost user=postgres password=secret dbname=registry port=5432 sslmode=disable "+
			"application_name=tenant-lifecycle", got)
}

func TestFromDBConfigSSLMode(t *testing.T) {
	got, err := dsn.FromDBConfig(config.Database{
		Name:    "registry",
		Port:    "5432",
		Host:    embedded("db.internal"),
		User:    embedded("lifecycle"),
		Secret:  embedded("secret"),
		SSLMode: "verify-full",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "sslmode=verify-full")
}

func TestFromDBConfigMissingHostFile(t *testing.T) {
	_, err := dsn.FromDBConfig(config.Database{
		Host: commoncfg.SourceRef{
			Source: commoncfg.FileSourceValue,
			File:   commoncfg.CredentialFile{Path: t.TempDir() + "/missing"},
		},
	})
	assert.ErrorIs(t, err, dsn.ErrLoadingDatabaseHost)
}
