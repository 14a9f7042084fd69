package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := fs.Glob(PostgresFS, "postgres/*.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, pg)

	ch, err := fs.Glob(ClickhouseFS, "clickhouse/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ch)

	for _, file := range ch {
		data, err := fs.ReadFile(ClickhouseFS, file)
		require.NoError(t, err)
		assert.NoError(t, validateNoSemicolonInStrings(string(data)), file)
		for _, stmt := range splitStatements(string(data)) {
			assert.False(t, strings.HasPrefix(stmt, "--"), "comment leaked into %s", file)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- header
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE VIEW b AS
SELECT x FROM a;
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE VIEW b AS"))
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'it''s'; SELECT 1;`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
}
