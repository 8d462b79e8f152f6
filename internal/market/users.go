package market

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/xerrors"

	"datanest-backend/internal/auth"
	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

// Session is returned by Register and Login.
type Session struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

func (s *Service) Register(ctx context.Context, nu model.NewUser) (Session, error) {
	nu.Email = strings.TrimSpace(nu.Email)
	nu.Name = strings.TrimSpace(nu.Name)
	if err := s.check(nu); err != nil {
		return Session{}, err
	}

	hash, err := auth.HashPassword(nu.Password)
	if err != nil {
		return Session{}, err
	}
	u, err := s.store.CreateUser(ctx, model.User{
		Email:        nu.Email,
		Name:         nu.Name,
		PasswordHash: hash,
		Role:         nu.Role,
		AvatarURL:    nu.AvatarURL,
	})
	if errors.Is(err, store.ErrConflict) {
		return Session{}, conflict("email already registered")
	}
	if err != nil {
		return Session{}, xerrors.Errorf("creating user: %w", err)
	}

	log.Infow("user registered", "user", u.ID, "role", u.Role)
	return s.session(u)
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Session{}, xerrors.Errorf("loading user: %w", err)
	}
	if err != nil || u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, forbidden("invalid email or password")
	}
	return s.session(u)
}

func (s *Service) session(u model.User) (Session, error) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, xerrors.Errorf("issuing token: %w", err)
	}
	return Session{User: u, Token: tok}, nil
}

// Me returns the caller's current profile, counters included.
func (s *Service) Me(ctx context.Context, user model.User) (model.User, error) {
	u, err := s.store.GetUser(ctx, user.ID)
	if err != nil {
		return model.User{}, lookup("user", err)
	}
	return u, nil
}
