package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvedTempDir_DefaultsToOSTempDir(t *testing.T) {
	var cfg Config
	require.Equal(t, os.TempDir(), cfg.ResolvedTempDir())
}

func TestResolvedTempDir_UsesConfiguredValue(t *testing.T) {
	cfg := Config{TempDir: " /tmp/custom-dir "}
	require.Equal(t, "/tmp/custom-dir", cfg.ResolvedTempDir())
}

func TestIsProd(t *testing.T) {
	var nilCfg *Config
	require.True(t, nilCfg.IsProd())

	cfg := DefaultConfig()
	require.True(t, cfg.IsProd())

	cfg.Mode = ModeDevelopment
	require.False(t, cfg.IsProd())

	cfg.Mode = ModeTesting
	require.False(t, cfg.IsProd())
}

func TestResolvedProfileDBURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatastoreType = "postgres"
	cfg.DBURL = "postgres://docs"
	require.Equal(t, "postgres://docs", cfg.ResolvedProfileDBURL())

	cfg.ProfileDBURL = "postgres://profiles"
	require.Equal(t, "postgres://profiles", cfg.ResolvedProfileDBURL())

	cfg = DefaultConfig()
	cfg.DatastoreType = "mongo"
	cfg.DBURL = "mongodb://docs"
	require.Empty(t, cfg.ResolvedProfileDBURL())
}

func TestResolvedImageStoreType_DBAlias(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImageStoreType = "db"

	cfg.DatastoreType = "mongo"
	require.Equal(t, "mongo", cfg.ResolvedImageStoreType())

	cfg.DatastoreType = "postgres"
	require.Equal(t, "postgres", cfg.ResolvedImageStoreType())

	cfg.DatastoreType = "memory"
	require.Empty(t, cfg.ResolvedImageStoreType())

	cfg.ImageStoreType = "s3"
	require.Equal(t, "s3", cfg.ResolvedImageStoreType())
}

func TestResolvedImageDBURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatastoreType = "mongo"
	cfg.DBURL = "mongodb://docs"
	cfg.ImageStoreType = "db"
	require.Equal(t, "mongodb://docs", cfg.ResolvedImageDBURL())

	cfg.ImageStoreType = "postgres"
	require.Empty(t, cfg.ResolvedImageDBURL())

	cfg.ImageDBURL = "postgres://images"
	require.Equal(t, "postgres://images", cfg.ResolvedImageDBURL())
}

func TestPageSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultPageSize = 20
	cfg.MaxPageSize = 100

	require.Equal(t, 20, cfg.PageSize(0))
	require.Equal(t, 20, cfg.PageSize(-3))
	require.Equal(t, 7, cfg.PageSize(7))
	require.Equal(t, 100, cfg.PageSize(5000))

	var nilCfg *Config
	require.Equal(t, 50, nilCfg.PageSize(0))
}
