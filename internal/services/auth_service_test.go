package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phonestore/internal/domain"
	"phonestore/internal/repos"
	"phonestore/internal/services"
)

type authEnv struct {
	auth  *services.AuthService
	cart  *services.CartService
	clock *clock
}

func newAuth(t *testing.T) authEnv {
	db := memdb(t)
	addProduct(t, db, 7, "iPhone 12", 299.99)
	addProduct(t, db, 12, "Pixel 8", 599.00)
	c := newClock()
	carts := repos.NewCartRepo(db)
	return authEnv{
		auth: &services.AuthService{
			Users:      repos.NewUserRepo(db),
			Carts:      carts,
			Secret:     []byte("test-secret"),
			SessionTTL: time.Hour,
			Now:        c.Now,
		},
		cart:  &services.CartService{Carts: carts, Products: repos.NewProductRepo(db), AllowAnonymous: true, Now: c.Now},
		clock: c,
	}
}

func TestAuth_RegisterValidationAndConflict(t *testing.T) {
	ctx := context.Background()
	env := newAuth(t)

	_, err := env.auth.Register(ctx, "", "a@x.io", "pw")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.auth.Register(ctx, "Ann", "a@x.io", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	a, err := env.auth.Register(ctx, "Ann", "Ann@Example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, a.Role)
	assert.Equal(t, "ann@example.com", a.Email)
	assert.NotEqual(t, "pw", a.Hash)

	_, err = env.auth.Register(ctx, "Ann 2", "ANN@example.COM", "pw")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAuth_Login(t *testing.T) {
	ctx := context.Background()
	env := newAuth(t)
	_, err := env.auth.Register(ctx, "Ann", "ann@x.io", "s3cret")
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, "sid-1", "ann@x.io", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "sid-1", "nobody@x.io", "s3cret")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	sess, err := env.auth.Login(ctx, "sid-1", "ANN@x.io", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Ann", sess.Account.Name)
	assert.NotEmpty(t, sess.Token)
	assert.NotEqual(t, "sid-1", sess.SID, "login mints a new session id")

	_, err = env.auth.CurrentUser(ctx, "sid-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "the pre-login sid stays anonymous")
	u, err := env.auth.CurrentUser(ctx, sess.SID)
	require.NoError(t, err)
	assert.Equal(t, sess.Account.ID, u.ID)

	env.clock.Advance(2 * time.Hour)
	_, err = env.auth.CurrentUser(ctx, sess.SID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "session expired")
}

func TestAuth_LoginKeepsAnonymousCart(t *testing.T) {
	ctx := context.Background()
	env := newAuth(t)
	a, err := env.auth.Register(ctx, "Ann", "ann@x.io", "s3cret")
	require.NoError(t, err)

	acct := domain.AccountIdentity(a.ID, "")
	_, err = env.cart.Add(ctx, acct, 7, 1)
	require.NoError(t, err)

	anon := domain.Anonymous("sid-9")
	_, err = env.cart.Add(ctx, anon, 7, 2)
	require.NoError(t, err)
	_, err = env.cart.Add(ctx, anon, 12, 1)
	require.NoError(t, err)

	sess, err := env.auth.Login(ctx, "sid-9", "ann@x.io", "s3cret")
	require.NoError(t, err)
	assert.EqualValues(t, 2, sess.MergedLines)
	assert.Zero(t, sess.ClampedLines)

	cv, err := env.cart.Get(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 2, cv.Count)
	assert.Equal(t, 1498.97, cv.Total)

	left, err := env.cart.Get(ctx, anon)
	require.NoError(t, err)
	assert.Zero(t, left.Count)
}

func TestAuth_TokenRevokedByLogout(t *testing.T) {
	ctx := context.Background()
	env := newAuth(t)
	_, err := env.auth.Register(ctx, "Ann", "ann@x.io", "s3cret")
	require.NoError(t, err)
	sess, err := env.auth.Login(ctx, "sid-1", "ann@x.io", "s3cret")
	require.NoError(t, err)

	u, sid, err := env.auth.TokenUser(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Account.ID, u.ID)
	assert.Equal(t, sess.SID, sid)

	_, _, err = env.auth.TokenUser(ctx, sess.Token+"x")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	require.NoError(t, env.auth.Logout(ctx, sess.SID))
	_, _, err = env.auth.TokenUser(ctx, sess.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestAuth_EnsureAdminAndRoles(t *testing.T) {
	ctx := context.Background()
	env := newAuth(t)

	created, err := env.auth.EnsureAdmin(ctx, "Boss", "boss@x.io", "pw1")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = env.auth.EnsureAdmin(ctx, "Boss", "BOSS@x.io", "pw2")
	require.NoError(t, err)
	assert.False(t, created)

	sess, err := env.auth.Login(ctx, "s", "boss@x.io", "pw2")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, sess.Account.Role)

	assert.ErrorIs(t, env.auth.SetRole(ctx, sess.Account.ID, "root"), domain.ErrValidation)
	assert.ErrorIs(t, env.auth.SetRole(ctx, "missing", domain.RoleUser), domain.ErrNotFound)
	require.NoError(t, env.auth.SetRole(ctx, sess.Account.ID, domain.RoleUser))

	all, err := env.auth.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.RoleUser, all[0].Role)
}

func TestAuth_LoginClampsMergedLines(t *testing.T) {
	ctx := context.Background()
	env := newAuth(t)
	env.auth.MaxLineQty = 3
	env.cart.MaxLineQty = 3
	a, err := env.auth.Register(ctx, "Ann", "ann@x.io", "s3cret")
	require.NoError(t, err)

	acct := domain.AccountIdentity(a.ID, "")
	_, err = env.cart.Add(ctx, acct, 7, 3)
	require.NoError(t, err)
	_, err = env.cart.Add(ctx, domain.Anonymous("sid-3"), 7, 3)
	require.NoError(t, err)

	sess, err := env.auth.Login(ctx, "sid-3", "ann@x.io", "s3cret")
	require.NoError(t, err)
	assert.EqualValues(t, 1, sess.ClampedLines)

	cv, err := env.cart.Get(ctx, acct)
	require.NoError(t, err)
	require.Len(t, cv.Items, 1)
	assert.Equal(t, 3, cv.Items[0].Quantity)
	assert.Equal(t, 899.97, cv.Total)
}
