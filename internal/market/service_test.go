package market

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/auth"
	"datanest-backend/internal/blob"
	"datanest-backend/internal/events"
	"datanest-backend/internal/model"
	"datanest-backend/internal/payment"
	"datanest-backend/internal/store"
)

type fixture struct {
	svc     *Service
	st      *store.Mem
	gw      *payment.Fake
	rec     *events.Recorder
	blobDir string
	tokens  *auth.Issuer

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		gw:      payment.NewFake(),
		rec:     &events.Recorder{},
		blobDir: t.TempDir(),
		tokens:  auth.NewIssuer([]byte("test-secret"), time.Hour),
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.st = store.NewMem(store.WithClock(f.clock))
	blobs, err := blob.NewFS(f.blobDir, 1<<20)
	require.NoError(t, err)

	opts = append([]Option{WithPublisher(f.rec), WithClock(f.clock)}, opts...)
	f.svc = New(f.st, f.gw, blobs, f.tokens, opts...)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) user(t *testing.T, role model.Role, email string) model.User {
	t.Helper()
	u, err := f.st.CreateUser(context.Background(), model.User{Email: email, Name: strings.Split(email, "@")[0], Role: role})
	require.NoError(t, err)
	return u
}

func (f *fixture) reload(t *testing.T, u model.User) model.User {
	t.Helper()
	u, err := f.st.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	return u
}

func newDataset(title, price string) model.NewDataset {
	return model.NewDataset{
		Title:       title,
		Description: "Daily readings",
		Price:       decimal.RequireFromString(price),
		Category:    "Climate",
		Tags:        []string{"weather"},
		Format:      "CSV",
		DataType:    "Tabular",
		License:     "CC-BY",
	}
}

func csvUpload(body string) Upload {
	return Upload{FileName: "readings.csv", MimeType: "text/csv", Body: strings.NewReader(body)}
}

func (f *fixture) dataset(t *testing.T, seller model.User, price string) model.Dataset {
	t.Helper()
	d, err := f.svc.CreateDataset(context.Background(), seller, newDataset("Weather 2023", price), csvUpload("day,temp\n1,20\n"))
	require.NoError(t, err)
	return d
}

func (f *fixture) buy(t *testing.T, buyer model.User, d model.Dataset) model.Purchase {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	in, ok := f.gw.Last()
	require.True(t, ok)
	p, err := f.svc.ConfirmPayment(ctx, buyer, in.Ref)
	require.NoError(t, err)
	return p
}

func requireKind(t *testing.T, err error, k Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, k, KindOf(err), "error: %v", err)
}
