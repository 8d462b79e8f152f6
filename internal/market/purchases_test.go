package market

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/blob"
	"datanest-backend/internal/model"
	"datanest-backend/internal/payment"
)

func TestPurchaseAndDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	intent, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", intent.Amount.StringFixed(2))
	assert.NotEmpty(t, intent.ClientSecret)

	gi, ok := f.gw.Last()
	require.True(t, ok)
	assert.Equal(t, int64(1000), gi.AmountCents)
	assert.Equal(t, "usd", gi.Currency)
	assert.Equal(t, map[string]string{"datasetId": d.ID, "buyerId": buyer.ID, "sellerId": seller.ID}, gi.Metadata)

	pending, err := f.st.GetPurchase(ctx, intent.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchasePending, pending.Status)
	assert.Equal(t, gi.Ref, pending.ExternalPaymentRef)
	assert.Equal(t, gi.Ref, intent.PaymentIntentID)

	_, err = f.svc.DownloadDataset(ctx, buyer, d.ID)
	requireKind(t, err, KindForbidden)

	p, err := f.svc.ConfirmPayment(ctx, buyer, gi.Ref)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)

	assert.Equal(t, 1, f.reload(t, buyer).TotalPurchases)
	assert.True(t, f.reload(t, seller).TotalEarnings.Equal(decimal.NewFromInt(10)))

	dl, err := f.svc.DownloadDataset(ctx, buyer, d.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	require.NoError(t, dl.Body.Close())
	assert.Equal(t, "day,temp\n1,20\n", string(body))
	assert.Equal(t, "readings.csv", dl.FileName)
	assert.Equal(t, "text/csv", dl.MimeType)

	got, err := f.st.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Downloads)

	completed := f.rec.OfType(model.EventPurchaseCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, seller.ID, completed[0].SellerID)
	assert.True(t, completed[0].Amount.Equal(decimal.NewFromInt(10)))
}

func TestAmountIsPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "19.999")

	intent, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	gi, _ := f.gw.Last()
	assert.Equal(t, int64(2000), gi.AmountCents)
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("19.999")))
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	first := f.buy(t, buyer, d)
	second, err := f.svc.ConfirmPayment(ctx, buyer, first.ExternalPaymentRef)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.PurchaseCompleted, second.Status)

	assert.Equal(t, 1, f.reload(t, buyer).TotalPurchases)
	assert.True(t, f.reload(t, seller).TotalEarnings.Equal(decimal.NewFromInt(10)))
	assert.Len(t, f.rec.OfType(model.EventPurchaseCompleted), 1)
}

func TestConcurrentConfirmCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "4.50")

	_, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	gi, _ := f.gw.Last()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ConfirmPayment(ctx, buyer, gi.Ref)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.reload(t, buyer).TotalPurchases)
	assert.True(t, f.reload(t, seller).TotalEarnings.Equal(decimal.RequireFromString("4.5")))
}

func TestSecondIntentConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	_, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	requireKind(t, err, KindConflict)
	assert.Len(t, f.gw.Created, 1)

	f.buy(t, f.user(t, model.RoleBuyer, "other@example.com"), d)

	gi := f.gw.Created[0]
	_, err = f.svc.ConfirmPayment(ctx, buyer, gi.Ref)
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	requireKind(t, err, KindConflict)
}

func TestStalePendingPurchaseExpires(t *testing.T) {
	f := newFixture(t, WithPendingTTL(10*time.Minute))
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	first, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)

	f.advance(5 * time.Minute)
	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	requireKind(t, err, KindConflict)

	f.advance(6 * time.Minute)
	second, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.PurchaseID, second.PurchaseID)

	old, err := f.st.GetPurchase(ctx, first.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, old.Status)
	assert.Len(t, f.rec.OfType(model.EventPurchaseFailed), 1)

	_, err = f.svc.ConfirmPayment(ctx, buyer, old.ExternalPaymentRef)
	requireKind(t, err, KindConflict)
}

func TestCreatePaymentIntentRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	_, err := f.svc.CreatePaymentIntent(ctx, buyer, "missing")
	requireKind(t, err, KindNotFound)

	_, err = f.svc.CreatePaymentIntent(ctx, seller, d.ID)
	requireKind(t, err, KindConflict)

	_, err = f.svc.SetDatasetAvailability(ctx, seller, d.ID, false)
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	requireKind(t, err, KindConflict)

	_, err = f.svc.SetDatasetAvailability(ctx, seller, d.ID, true)
	require.NoError(t, err)
	f.gw.SetDown(true)
	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	requireKind(t, err, KindUnavailable)

	ps, err := f.st.ListPurchasesByBuyer(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, ps)

	f.gw.SetDown(false)
	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
}

func TestConfirmPaymentRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	intruder := f.user(t, model.RoleBuyer, "x@example.com")
	d := f.dataset(t, seller, "10")

	_, err := f.svc.ConfirmPayment(ctx, buyer, "pi_unknown")
	requireKind(t, err, KindNotFound)

	_, err = f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	gi, _ := f.gw.Last()

	_, err = f.svc.ConfirmPayment(ctx, intruder, gi.Ref)
	requireKind(t, err, KindNotFound)

	_, err = f.svc.ConfirmPayment(ctx, buyer, "")
	requireKind(t, err, KindValidation)
}

func TestFailPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	_, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID)
	require.NoError(t, err)
	gi, _ := f.gw.Last()

	p, err := f.svc.FailPayment(ctx, buyer, gi.Ref)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, p.Status)

	_, err = f.svc.FailPayment(ctx, buyer, gi.Ref)
	require.NoError(t, err)
	assert.Len(t, f.rec.OfType(model.EventPurchaseFailed), 1)

	_, err = f.svc.ConfirmPayment(ctx, buyer, gi.Ref)
	requireKind(t, err, KindConflict)

	// A failed purchase does not block a new attempt.
	done := f.buy(t, buyer, d)
	_, err = f.svc.FailPayment(ctx, buyer, done.ExternalPaymentRef)
	requireKind(t, err, KindConflict)

	list, err := f.svc.ListBuyerPurchases(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.PurchaseCompleted, list[0].Status)
	require.NotNil(t, list[0].Dataset)
	assert.Equal(t, d.ID, list[0].Dataset.ID)
}

func TestConcurrentIntentsCreateOnePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, model.RoleSeller, "s@example.com")
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	d := f.dataset(t, seller, "10")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CreatePaymentIntent(ctx, buyer, d.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.True(t, IsKind(err, KindConflict), "unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	ps, err := f.st.ListPurchasesByBuyer(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}

// blockingGateway parks CreateIntent until release is closed.
type blockingGateway struct {
	payment.Gateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, md map[string]string) (payment.Intent, error) {
	close(g.entered)
	<-g.release
	return g.Gateway.CreateIntent(ctx, amountCents, currency, md)
}

func TestDatasetWithdrawnDuringCheckout(t *testing.T) {
	for name, withdraw := range map[string]func(f *fixture, seller model.User, id string) error{
		"deleted": func(f *fixture, seller model.User, id string) error {
			return f.svc.DeleteDataset(context.Background(), seller, id)
		},
		"unavailable": func(f *fixture, seller model.User, id string) error {
			_, err := f.svc.SetDatasetAvailability(context.Background(), seller, id, false)
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			seller := f.user(t, model.RoleSeller, "s@example.com")
			buyer := f.user(t, model.RoleBuyer, "b@example.com")
			d := f.dataset(t, seller, "10")

			gw := &blockingGateway{Gateway: f.gw, entered: make(chan struct{}), release: make(chan struct{})}
			blobs, err := blob.NewFS(f.blobDir, 1<<20)
			require.NoError(t, err)
			svc := New(f.st, gw, blobs, f.tokens, WithClock(f.clock), WithPublisher(f.rec))

			errc := make(chan error, 1)
			go func() {
				_, err := svc.CreatePaymentIntent(ctx, buyer, d.ID)
				errc <- err
			}()
			<-gw.entered
			require.NoError(t, withdraw(f, seller, d.ID))
			close(gw.release)

			requireKind(t, <-errc, KindConflict)
			ps, err := f.st.ListPurchasesByBuyer(ctx, buyer.ID)
			require.NoError(t, err)
			assert.Empty(t, ps)
		})
	}
}
