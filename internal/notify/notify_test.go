package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

func TestPurchaseCompletedNotifiesBothParties(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	seller, err := st.CreateUser(ctx, model.User{Email: "s@example.com", Name: "Sam", Role: model.RoleSeller})
	require.NoError(t, err)
	buyer, err := st.CreateUser(ctx, model.User{Email: "b@example.com", Name: "Bea", Role: model.RoleBuyer})
	require.NoError(t, err)
	d, err := st.CreateDataset(ctx, model.Dataset{SellerID: seller.ID, Title: "Tides", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	out := &Outbox{}
	n := NewNotifier(st, out)
	require.NoError(t, n.Handle(ctx, model.MarketEvent{
		Type:      model.EventPurchaseCompleted,
		BuyerID:   buyer.ID,
		DatasetID: d.ID,
		Amount:    decimal.NewFromInt(10),
	}))

	sent := out.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "b@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "$10.00")
	assert.Equal(t, "s@example.com", sent[1].To)
	assert.Contains(t, sent[1].Body, "Bea")
}

func TestMessageAndProposalNotifications(t *testing.T) {
	ctx := context.Background()
	st := store.NewMem()
	a, err := st.CreateUser(ctx, model.User{Email: "a@example.com", Name: "Ari", Role: model.RoleBuyer})
	require.NoError(t, err)
	b, err := st.CreateUser(ctx, model.User{Email: "b@example.com", Name: "Bo", Role: model.RoleSeller})
	require.NoError(t, err)
	m, err := st.CreateMessage(ctx, model.Message{SenderID: a.ID, ReceiverID: b.ID, Content: strings.Repeat("x", 300)})
	require.NoError(t, err)
	r, err := st.CreateRequest(ctx, model.DatasetRequest{BuyerID: a.ID, Title: "Ports"})
	require.NoError(t, err)

	out := &Outbox{}
	n := NewNotifier(st, out)
	require.NoError(t, n.Handle(ctx, model.MarketEvent{Type: model.EventMessageSent, MessageID: m.ID}))
	require.NoError(t, n.Handle(ctx, model.MarketEvent{Type: model.EventProposalAccepted, SellerID: b.ID, RequestID: r.ID, Amount: decimal.NewFromInt(250)}))
	require.NoError(t, n.Handle(ctx, model.MarketEvent{Type: model.EventDatasetDownloaded}))

	sent := out.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "b@example.com", sent[0].To)
	assert.Equal(t, "New message from Ari", sent[0].Subject)
	assert.Len(t, []rune(sent[0].Body), 201)
	assert.Equal(t, "Proposal accepted: Ports", sent[1].Subject)
}

func TestHandleReportsMissingEntities(t *testing.T) {
	n := NewNotifier(store.NewMem(), LogSender{})
	err := n.Handle(context.Background(), model.MarketEvent{Type: model.EventMessageSent, MessageID: "gone"})
	require.ErrorIs(t, err, store.ErrNotFound)
}
