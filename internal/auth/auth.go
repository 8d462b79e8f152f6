// Package auth issues and verifies API tokens and hashes passwords. A token
// names one user; the user's role and counters are always read fresh from
// the store.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gbrlsnchs/jwt/v3"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

var log = logging.Logger("auth")

// ErrUnauthenticated covers missing, malformed, expired and orphaned tokens.
var ErrUnauthenticated = xerrors.New("unauthenticated")

type jwtPayload struct {
	jwt.Payload
	Role model.Role `json:"role,omitempty"`
}

// Issuer signs HS256 tokens.
type Issuer struct {
	alg *jwt.HMACSHA
	ttl time.Duration
	now func() time.Time
}

// NewIssuer returns an issuer; ttl <= 0 issues tokens without expiry.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{alg: jwt.NewHS256(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(u model.User) (string, error) {
	now := i.now()
	p := jwtPayload{
		Payload: jwt.Payload{
			Issuer:   "datanest",
			Subject:  u.ID,
			IssuedAt: jwt.NumericDate(now),
		},
		Role: u.Role,
	}
	if i.ttl > 0 {
		p.ExpirationTime = jwt.NumericDate(now.Add(i.ttl))
	}
	tok, err := jwt.Sign(&p, i.alg)
	if err != nil {
		return "", xerrors.Errorf("signing token: %w", err)
	}
	return string(tok), nil
}

// Verify checks the signature and expiry and returns the user id.
func (i *Issuer) Verify(token string) (string, error) {
	var p jwtPayload
	exp := jwt.ExpirationTimeValidator(i.now())
	if _, err := jwt.Verify([]byte(token), i.alg, &p, jwt.ValidatePayload(&p.Payload, exp)); err != nil {
		return "", xerrors.Errorf("JWT verification failed: %v: %w", err, ErrUnauthenticated)
	}
	if p.Subject == "" {
		return "", xerrors.Errorf("token has no subject: %w", ErrUnauthenticated)
	}
	return p.Subject, nil
}

type UserGetter interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

// Provider resolves bearer tokens to users.
type Provider struct {
	issuer *Issuer
	users  UserGetter
}

func NewProvider(issuer *Issuer, users UserGetter) *Provider {
	return &Provider{issuer: issuer, users: users}
}

func (p *Provider) Authenticate(ctx context.Context, token string) (model.User, error) {
	id, err := p.issuer.Verify(token)
	if err != nil {
		return model.User{}, err
	}
	u, err := p.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Warnw("token for unknown user", "user", id)
		return model.User{}, xerrors.Errorf("user %s: %w", id, ErrUnauthenticated)
	}
	if err != nil {
		return model.User{}, xerrors.Errorf("loading user: %w", err)
	}
	return u, nil
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", xerrors.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
