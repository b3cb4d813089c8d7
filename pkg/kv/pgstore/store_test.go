package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/kv/kvtest"
	"github.com/dmitrymomot/arcana/pkg/kv/pgstore"
)

func TestStore(t *testing.T) {
	url := os.Getenv("TEST_PG_URL")
	if url == "" {
		t.Skip("TEST_PG_URL is not set")
	}

	ctx := context.Background()
	cfg := pgstore.Config{
		ConnectionString: url,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		MigrationsTable:  "arcana_test_migrations",
	}
	pool, err := pgstore.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, nil))

	kvtest.Run(t, func(t *testing.T) kv.Store {
		_, err := pool.Exec(ctx, `TRUNCATE kv_entries`)
		require.NoError(t, err)
		return pgstore.New(pool)
	})

	require.NoError(t, pgstore.New(pool).Healthcheck(ctx))
}
