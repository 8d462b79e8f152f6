// Package payment is the boundary to the external payment gateway. The
// marketplace only creates intents; confirmation arrives later as a call
// carrying the intent reference.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// ErrUnavailable wraps every failure to obtain an intent from the gateway.
var ErrUnavailable = xerrors.New("payment gateway unavailable")

const CurrencyUSD = "usd"

// Intent is the gateway's handle for one pending payment.
type Intent struct {
	Ref          string
	ClientSecret string
}

type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)
}

// AmountCents converts a price to the gateway's minor units, rounding half
// away from zero.
func AmountCents(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// Unavailable is the gateway used when none is configured. Every intent is
// refused with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) CreateIntent(context.Context, int64, string, map[string]string) (Intent, error) {
	return Intent{}, xerrors.Errorf("no payment gateway configured: %w", ErrUnavailable)
}
