package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y UInt8) ENGINE = Memory;
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y UInt8) ENGINE = Memory", stmts[1])
}

func TestCheckSplittable(t *testing.T) {
	assert.NoError(t, checkSplittable("SELECT 'it''s'; SELECT 1;"))
	assert.ErrorIs(t, checkSplittable("SELECT 'a;b';"), errSemicolonInString)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/copytrade")
	require.NoError(t, err)
	assert.Equal(t, "copytrade", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := readAll(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_feed.sql", pg[0].name)

	ch, err := readAll(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, ch, 1)
	for _, f := range ch {
		assert.NoError(t, checkSplittable(f.sql))
		assert.NotEmpty(t, splitStatements(f.sql))
	}
}
