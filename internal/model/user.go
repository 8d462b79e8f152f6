package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the marketplace side a user registered for.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// User is a registered marketplace account. Counters are only moved by the
// store's narrow mutation methods.
type User struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	PasswordHash   string          `json:"-"`
	Role           Role            `json:"role"`
	AvatarURL      string          `json:"avatarUrl,omitempty"`
	Rating         decimal.Decimal `json:"rating"`
	TotalDatasets  int             `json:"totalDatasets"`
	TotalPurchases int             `json:"totalPurchases"`
	TotalEarnings  decimal.Decimal `json:"totalEarnings"`
	IsVerified     bool            `json:"isVerified"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Summary is the public projection embedded next to datasets, requests
// and conversations.
func (u User) Summary() *UserSummary {
	return &UserSummary{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		AvatarURL:     u.AvatarURL,
		Rating:        u.Rating,
		TotalDatasets: u.TotalDatasets,
	}
}

type UserSummary struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Role          Role            `json:"role"`
	AvatarURL     string          `json:"avatarUrl,omitempty"`
	Rating        decimal.Decimal `json:"rating"`
	TotalDatasets int             `json:"totalDatasets"`
}

// NewUser is the registration payload.
type NewUser struct {
	Email     string `json:"email" validate:"required,email"`
	Name      string `json:"name" validate:"required,max=200"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Role      Role   `json:"role" validate:"required,oneof=buyer seller"`
	AvatarURL string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}
