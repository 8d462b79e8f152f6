package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/model"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Register(ctx, model.NewUser{
		Email:    "Dana@Example.com",
		Name:     "Dana",
		Password: "hunter2hunter2",
		Role:     model.RoleSeller,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotEqual(t, "hunter2hunter2", sess.User.PasswordHash)

	id, err := f.tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, id)

	_, err = f.svc.Register(ctx, model.NewUser{
		Email:    "dana@example.com",
		Name:     "Other Dana",
		Password: "another-password",
		Role:     model.RoleBuyer,
	})
	requireKind(t, err, KindConflict)

	login, err := f.svc.Login(ctx, "dana@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = f.svc.Login(ctx, "dana@example.com", "wrong-password")
	requireKind(t, err, KindForbidden)
	_, err = f.svc.Login(ctx, "nobody@example.com", "hunter2hunter2")
	requireKind(t, err, KindForbidden)

	me, err := f.svc.Me(ctx, login.User)
	require.NoError(t, err)
	assert.Equal(t, model.RoleSeller, me.Role)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]model.NewUser{
		"bad email":      {Email: "not-an-email", Name: "A", Password: "longenough", Role: model.RoleBuyer},
		"short password": {Email: "a@example.com", Name: "A", Password: "short", Role: model.RoleBuyer},
		"unknown role":   {Email: "a@example.com", Name: "A", Password: "longenough", Role: "admin"},
		"missing name":   {Email: "a@example.com", Password: "longenough", Role: model.RoleBuyer},
	}
	for name, nu := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, nu)
			requireKind(t, err, KindValidation)
		})
	}
}
