//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/emoji-storefront/internal/domain/order"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestOrderRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	ok, err := repo.HasPurchased(ctx, "B1", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	o := &order.Order{
		OrderID:   "ref-1",
		Buyer:     "B1",
		ItemID:    "1",
		Amount:    decimal.RequireFromString("0.1"),
		Signature: "sig",
	}
	require.NoError(t, repo.Append(ctx, o))
	require.NoError(t, repo.Append(ctx, o), "duplicate append is a no-op")

	ok, err = repo.HasPurchased(ctx, "B1", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.1").Equal(got.Amount))
	assert.Equal(t, "sig", got.Signature)
	assert.False(t, got.CreatedAt.IsZero())

	var pairs []string
	require.NoError(t, repo.Purchases(ctx, func(buyer, itemID string) error {
		pairs = append(pairs, buyer+"/"+itemID)
		return nil
	}))
	assert.Equal(t, []string{"B1/1"}, pairs)
}
