package payment

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/xerrors"
)

// Fake is an in-process gateway for development and tests. Refs are
// sequential so tests can predict them.
type Fake struct {
	mu      sync.Mutex
	n       int
	down    bool
	Created []FakeIntent
}

type FakeIntent struct {
	Intent
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

func NewFake() *Fake {
	return &Fake{}
}

// SetDown makes subsequent CreateIntent calls fail with ErrUnavailable.
func (f *Fake) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *Fake) CreateIntent(_ context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		return Intent{}, xerrors.Errorf("fake gateway is down: %w", ErrUnavailable)
	}
	f.n++
	in := Intent{
		Ref:          fmt.Sprintf("pi_fake_%d", f.n),
		ClientSecret: fmt.Sprintf("pi_fake_%d_secret", f.n),
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	f.Created = append(f.Created, FakeIntent{Intent: in, AmountCents: amountCents, Currency: currency, Metadata: md})
	return in, nil
}

// Last returns the most recently created intent.
func (f *Fake) Last() (FakeIntent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Created) == 0 {
		return FakeIntent{}, false
	}
	return f.Created[len(f.Created)-1], true
}
