package postgres

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testImage = "postgres:15-alpine"

// setupTestDB starts a throwaway postgres, applies the schema and returns a
// pool on it. The returned func stops the container.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, testImage,
		tcpostgres.WithDatabase("economy"),
		tcpostgres.WithUsername("economy"),
		tcpostgres.WithPassword("economy"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)

	applySchema(t, pool)

	return pool, func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	}
}

// applySchema runs the migration files in name order. The migrations
// package cannot be imported here because it depends on this one.
func applySchema(t *testing.T, pool *Pool) {
	t.Helper()

	schema := os.DirFS(filepath.Join(moduleRoot(t), "internal", "storage", "migrations", "postgres"))
	files, err := fs.Glob(schema, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files, "no postgres migrations found")

	for _, name := range files {
		body, err := fs.ReadFile(schema, name)
		require.NoError(t, err)
		_, err = pool.Exec(context.Background(), string(body))
		require.NoError(t, err, "apply %s", name)
	}
}

func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for ; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if dir == filepath.Dir(dir) {
			t.Fatal("go.mod not found above test directory")
		}
	}
}
