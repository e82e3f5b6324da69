package migrate

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func TestLatest(t *testing.T) {
	version, err := Latest()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestEmbeddedFiles(t *testing.T) {
	require.NoError(t, setup())
	all, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "00001_create_items.sql", filepath.Base(all[0].Source))
}

func TestUpDown(t *testing.T) {
	dsn := os.Getenv("ITEMSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ITEMSYNC_TEST_DATABASE_URL not set")
	}
	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	m := NewMigrator(db, nil)
	require.NoError(t, m.Up(t.Context()))
	version, err := m.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	require.NoError(t, m.Down(t.Context()))
	version, err = m.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, m.Up(t.Context()))
}
