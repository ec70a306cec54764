//go:build integration

package repos_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"phonestore/internal/domain"
	"phonestore/internal/repos"
)

// pgdb starts a Postgres 16 container unless PHONESTORE_PG_DSN points at
// an existing database.
func pgdb(t *testing.T) (context.Context, string) {
	t.Helper()
	ctx := context.Background()
	dsn := os.Getenv("PHONESTORE_PG_DSN")
	if dsn == "" {
		pg, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("phonestore"),
			postgres.WithUsername("phonestore"),
			postgres.WithPassword("phonestore"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Terminate(context.Background()) })
		dsn, err = pg.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}
	return ctx, dsn
}

func TestPostgres_SameBehaviourAsSQLite(t *testing.T) {
	ctx, dsn := pgdb(t)
	db, err := repos.OpenDB(ctx, "pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repos.SeedDemo(ctx, db))

	users := repos.NewUserRepo(db)
	carts := repos.NewCartRepo(db)
	products := repos.NewProductRepo(db)

	require.NoError(t, users.Create(ctx, &domain.Account{ID: "pg-1", Email: "pg@x.io", Name: "Pg", Hash: "h", Role: domain.RoleUser}))
	err = users.Create(ctx, &domain.Account{ID: "pg-2", Email: "PG@X.IO", Name: "Pg", Hash: "h", Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, users.SetResetCode(ctx, "pg-1", "111222", 1000))
	ok, err := users.ConsumeResetCode(ctx, "pg-1", "111222", 999, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.ConsumeResetCode(ctx, "pg-1", "111222", 999, "again")
	require.NoError(t, err)
	assert.False(t, ok)

	anon := domain.AnonKey("pg-sid")
	require.NoError(t, carts.Add(ctx, domain.CartLine{Owner: anon, ProductID: 7, Quantity: 2, Title: "A", Price: 299.99, AddedAt: 1}, 0))
	require.NoError(t, carts.Add(ctx, domain.CartLine{Owner: domain.AccountKey("pg-1"), ProductID: 7, Quantity: 2, Title: "A", Price: 299.99, AddedAt: 1}, 0))
	res, err := carts.MergeForLogin(ctx, "pg-1", "pg-sid", "pg-new", 10, 100, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Moved)
	assert.EqualValues(t, 1, res.Clamped)
	lines, err := carts.Lines(ctx, domain.AccountKey("pg-1"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	p, err := products.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Apple", p.Category)
	assert.NotEmpty(t, p.Specs)
}
