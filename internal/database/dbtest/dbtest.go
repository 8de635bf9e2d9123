// Package dbtest поднимает файловую SQLite с применёнными миграциями для тестов.
package dbtest

import (
	"path/filepath"
	"testing"

	"shopbot/internal/database"

	"github.com/stretchr/testify/require"
)

// NewSQLite возвращает Storage во временном каталоге теста.
func NewSQLite(t testing.TB) database.Storage {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shopbot.db")
	storage, err := database.New(database.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}
