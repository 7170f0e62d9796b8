package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
	"github.com/pavelanni/autograde/internal/validate"
)

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	a := New(s, validate.New())
	a.cost = bcrypt.MinCost
	return a
}

func isAuthError(err error) bool {
	var ae *model.AuthError
	return errors.As(err, &ae)
}

func TestLoginAndResolve(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, NewUser{Username: "sam", Password: "correct-horse", Role: model.UserRoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "sam", u.DisplayName)

	got, token, err := a.Login(ctx, "sam", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, token)

	resolved, err := a.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "sam", resolved.Username)

	require.NoError(t, a.Logout(ctx, token))
	_, err = a.Resolve(ctx, token)
	assert.True(t, isAuthError(err))
}

func TestLoginFailures(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()
	admin, err := a.CreateUser(ctx, NewUser{Username: "root1", Password: "password1", Role: model.UserRoleAdmin})
	require.NoError(t, err)
	u, err := a.CreateUser(ctx, NewUser{Username: "sam", Password: "correct-horse", Role: model.UserRoleStudent})
	require.NoError(t, err)

	_, _, err = a.Login(ctx, "sam", "wrong-password")
	assert.True(t, isAuthError(err))

	_, _, err = a.Login(ctx, "nobody", "whatever1")
	assert.True(t, isAuthError(err))

	require.NoError(t, a.ToggleActive(ctx, admin, u.ID))
	_, _, err = a.Login(ctx, "sam", "correct-horse")
	assert.True(t, isAuthError(err), "inactive users cannot log in")

	_, err = a.Resolve(ctx, "")
	assert.True(t, isAuthError(err))
}

func TestCreateUserValidation(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	_, err := a.CreateUser(ctx, NewUser{Username: "x", Password: "short", Role: "janitor"})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "username")
	assert.Contains(t, ve.Fields, "password")
	assert.Contains(t, ve.Fields, "role")

	_, err = a.CreateUser(ctx, NewUser{Username: "sam", Password: "password1", Role: model.UserRoleStudent})
	require.NoError(t, err)
	_, err = a.CreateUser(ctx, NewUser{Username: "sam", Password: "password1", Role: model.UserRoleStudent})
	assert.True(t, model.IsValidation(err))
}

func TestToggleActiveRejectsSelf(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()
	admin, err := a.CreateUser(ctx, NewUser{Username: "root1", Password: "password1", Role: model.UserRoleAdmin})
	require.NoError(t, err)

	assert.True(t, model.IsValidation(a.ToggleActive(ctx, admin, admin.ID)))
}

func TestSeedAdmin(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	assert.Error(t, a.SeedAdmin(ctx, ""))
	require.NoError(t, a.SeedAdmin(ctx, "admin-pass"))
	require.NoError(t, a.SeedAdmin(ctx, "ignored-now"), "seeding is a no-op once users exist")

	users, err := a.ListUsers(ctx, model.UserRoleAdmin)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Username)

	_, _, err = a.Login(ctx, "admin", "admin-pass")
	assert.NoError(t, err)
}
