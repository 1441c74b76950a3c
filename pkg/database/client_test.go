package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strym-io/strym/pkg/database"
	"github.com/strym-io/strym/test/util"
)

func TestMigrate(t *testing.T) {
	db := util.SetupTestDatabase(t)

	t.Run("is idempotent", func(t *testing.T) {
		// SetupTestDatabase already migrated once.
		require.NoError(t, database.Migrate(db))
	})

	t.Run("creates the logs table", func(t *testing.T) {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestHealth(t *testing.T) {
	db := util.SetupTestDatabase(t)

	status, err := database.Health(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.GreaterOrEqual(t, status.OpenConnections, 0)
}
