package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Hour)
	tok, err := iss.Issue(model.User{ID: "u1", Role: model.RoleBuyer})
	require.NoError(t, err)

	id, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Hour)
	other := NewIssuer([]byte("other"), time.Hour)

	tok, err := other.Issue(model.User{ID: "u1"})
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = iss.Verify("not-a-token")
	require.ErrorIs(t, err, ErrUnauthenticated)

	tok, err = iss.Issue(model.User{ID: "u1"})
	require.NoError(t, err)
	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iss.Verify(tok)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestProviderAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	u, err := st.CreateUser(ctx, model.User{Email: "a@example.com", Name: "A", Role: model.RoleSeller})
	require.NoError(t, err)

	iss := NewIssuer([]byte("secret"), 0)
	p := NewProvider(iss, st)

	tok, err := iss.Issue(u)
	require.NoError(t, err)
	got, err := p.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleSeller, got.Role)

	ghost, err := iss.Issue(model.User{ID: "deleted"})
	require.NoError(t, err)
	_, err = p.Authenticate(ctx, ghost)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", h)
	assert.True(t, CheckPassword(h, "correct horse"))
	assert.False(t, CheckPassword(h, "wrong horse"))
}
