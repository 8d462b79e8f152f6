package access

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

func TestCanDownload(t *testing.T) {
	ctx := context.Background()
	s := store.NewMem()
	g := NewGate(s)

	seller := model.User{ID: "seller", Role: model.RoleSeller}
	buyer := model.User{ID: "buyer", Role: model.RoleBuyer}
	stranger := model.User{ID: "stranger", Role: model.RoleBuyer}

	d, err := s.CreateDataset(ctx, model.Dataset{SellerID: seller.ID, Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	ok, err := g.CanDownload(ctx, seller, d)
	require.NoError(t, err)
	assert.True(t, ok, "owner may download")

	p, err := s.CreatePurchase(ctx, model.Purchase{BuyerID: buyer.ID, DatasetID: d.ID, ExternalPaymentRef: "pi_1"})
	require.NoError(t, err)

	ok, err = g.CanDownload(ctx, buyer, d)
	require.NoError(t, err)
	assert.False(t, ok, "pending purchase does not grant access")

	_, err = s.SetPurchaseStatus(ctx, p.ID, model.PurchaseCompleted)
	require.NoError(t, err)

	ok, err = g.CanDownload(ctx, buyer, d)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err = s.SetDatasetAvailability(ctx, d.ID, false)
	require.NoError(t, err)

	ok, err = g.CanDownload(ctx, stranger, d)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.CanDownload(ctx, model.User{}, d)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleChecks(t *testing.T) {
	g := NewGate(store.NewMem())

	buyer := model.User{ID: "b", Role: model.RoleBuyer}
	seller := model.User{ID: "s", Role: model.RoleSeller}
	req := model.DatasetRequest{ID: "r", BuyerID: buyer.ID}

	assert.True(t, g.CanActOnRequest(buyer, req))
	assert.False(t, g.CanActOnRequest(seller, req))
	assert.False(t, g.CanActOnRequest(model.User{}, model.DatasetRequest{}))

	assert.True(t, g.CanSubmitProposal(seller))
	assert.False(t, g.CanSubmitProposal(buyer))
	assert.True(t, g.CanSell(seller))
	assert.True(t, g.CanPostRequest(buyer))
	assert.False(t, g.CanPostRequest(seller))

	msg := model.Message{SenderID: buyer.ID, ReceiverID: seller.ID}
	assert.True(t, g.CanReadMessage(seller, msg))
	assert.False(t, g.CanReadMessage(model.User{ID: "x"}, msg))
}
