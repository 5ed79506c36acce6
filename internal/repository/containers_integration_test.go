//go:build integration

package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	postgisImage = "postgis/postgis:16-3.4-alpine"
	redisImage   = "redis:7-alpine"
)

// startPostgres поднимает PostGIS, применяет миграции и возвращает пул соединений
func startPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, postgisImage,
		tcpostgres.WithDatabase("disaster_test"),
		tcpostgres.WithUsername("disaster"),
		tcpostgres.WithPassword("disaster"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "start postgis container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "postgis connection string")

	m, err := migrate.New("file://../../migrations", strings.Replace(dsn, "postgres://", "pgx5://", 1))
	require.NoError(t, err, "create migrate instance")
	require.NoError(t, m.Up(), "apply migrations")
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "create pool")
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	return pool
}

// startRedis поднимает Redis и возвращает клиента
func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()

	ctr, err := tcredis.Run(ctx, redisImage)
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err, "redis connection string")
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err, "parse redis url")

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func integrationContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)
	return ctx
}

func uniqueKey(t *testing.T, suffix string) string {
	return fmt.Sprintf("%s:%s:%d", t.Name(), suffix, time.Now().UnixNano())
}
