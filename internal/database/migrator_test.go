package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_chats.up.sql":      {Data: []byte("CREATE TABLE chats ();")},
		"migrations/001_sessions.up.sql":   {Data: []byte("CREATE TABLE sessions ();")},
		"migrations/001_sessions.down.sql": {Data: []byte("DROP TABLE sessions;")},
		"migrations/README.md":             {Data: []byte("notes")},
		"migrations/nested/003.up.sql":     {Data: []byte("SELECT 1;")},
	}

	names, err := ListMigrations(fsys, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_sessions.up.sql", "002_chats.up.sql"}, names)
}

func TestListMigrations_MissingDir(t *testing.T) {
	_, err := ListMigrations(fstest.MapFS{}, "missing")
	assert.Error(t, err)
}

func TestRepositoryMigrations(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Skip("migrations directory not present")
	}

	names, err := ListMigrations(os.DirFS(dir), ".")
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}

func TestApplyFS_NilDatabase(t *testing.T) {
	m := NewMigrator(nil, nil)
	assert.Error(t, m.ApplyFS(context.Background(), fstest.MapFS{}, "."))
}
