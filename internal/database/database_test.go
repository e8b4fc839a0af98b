package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"shop:secret@tcp(db:3306)/shop?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		DSN("shop", "secret", "db", "3306", "shop"))
	assert.Equal(t,
		"root@tcp(localhost:3306)/shop?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		DSN("root", "", "localhost", "3306", "shop"))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	body, err := fs.ReadFile(migrations, files[0])
	require.NoError(t, err)
	schema := string(body)
	for _, want := range []string{"uq_users_username", "uq_users_email", "uq_users_phone", "-- +goose Up", "-- +goose Down"} {
		assert.True(t, strings.Contains(schema, want), "schema missing %q", want)
	}
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("locked") }
	err = Migrate(context.Background(), db)
	assert.ErrorContains(t, err, "locked")
}
