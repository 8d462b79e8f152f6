package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

func newRequest() model.NewDatasetRequest {
	return model.NewDatasetRequest{
		Title:       "Retail footfall 2022",
		Description: "Hourly counts per store",
		Category:    "Retail",
		BudgetMin:   decimal.NewFromInt(100),
		BudgetMax:   decimal.NewFromInt(500),
		Deadline:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newProposal(requestID, price string) model.NewProposal {
	return model.NewProposal{
		RequestID:    requestID,
		Price:        decimal.RequireFromString(price),
		DeliveryTime: 7,
		CoverLetter:  "I have this data.",
	}
}

type negotiation struct {
	buyer, s1, s2 model.User
	req           model.DatasetRequest
	p1, p2        model.Proposal
}

func (f *fixture) negotiation(t *testing.T) negotiation {
	t.Helper()
	ctx := context.Background()
	n := negotiation{
		buyer: f.user(t, model.RoleBuyer, "buyer@example.com"),
		s1:    f.user(t, model.RoleSeller, "s1@example.com"),
		s2:    f.user(t, model.RoleSeller, "s2@example.com"),
	}
	var err error
	n.req, err = f.svc.CreateDatasetRequest(ctx, n.buyer, newRequest())
	require.NoError(t, err)
	n.p1, err = f.svc.SubmitProposal(ctx, n.s1, newProposal(n.req.ID, "300"))
	require.NoError(t, err)
	n.p2, err = f.svc.SubmitProposal(ctx, n.s2, newProposal(n.req.ID, "250"))
	require.NoError(t, err)
	return n
}

func TestAcceptOneProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)
	assert.Equal(t, model.RequestOpen, n.req.Status)
	assert.Equal(t, model.ProposalPending, n.p1.Status)

	p, err := f.svc.AcceptProposal(ctx, n.buyer, n.p1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, p.Status)

	r, err := f.st.GetRequest(ctx, n.req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestInProgress, r.Status)
	assert.Equal(t, n.p1.ID, r.AcceptedProposalID)

	_, err = f.svc.AcceptProposal(ctx, n.buyer, n.p2.ID)
	requireKind(t, err, KindConflict)

	again, err := f.svc.AcceptProposal(ctx, n.buyer, n.p1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, again.Status)
	assert.Len(t, f.rec.OfType(model.EventProposalAccepted), 1)

	ps, err := f.st.ListProposalsByRequest(ctx, n.req.ID)
	require.NoError(t, err)
	accepted := 0
	for _, p := range ps {
		if p.Status == model.ProposalAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestAcceptProposalRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)
	stranger := f.user(t, model.RoleBuyer, "stranger@example.com")

	_, err := f.svc.AcceptProposal(ctx, n.buyer, "missing")
	requireKind(t, err, KindNotFound)

	_, err = f.svc.AcceptProposal(ctx, stranger, n.p1.ID)
	requireKind(t, err, KindForbidden)
	_, err = f.svc.AcceptProposal(ctx, n.s1, n.p1.ID)
	requireKind(t, err, KindForbidden)

	_, err = f.svc.RejectProposal(ctx, n.buyer, n.p2.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptProposal(ctx, n.buyer, n.p2.ID)
	requireKind(t, err, KindConflict)

	_, err = f.svc.CancelRequest(ctx, n.buyer, n.req.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptProposal(ctx, n.buyer, n.p1.ID)
	requireKind(t, err, KindConflict)
}

func TestRejectProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)

	p, err := f.svc.RejectProposal(ctx, n.buyer, n.p2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalRejected, p.Status)

	_, err = f.svc.RejectProposal(ctx, n.buyer, n.p2.ID)
	require.NoError(t, err)
	assert.Len(t, f.rec.OfType(model.EventProposalRejected), 1)

	r, err := f.st.GetRequest(ctx, n.req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestOpen, r.Status)

	_, err = f.svc.AcceptProposal(ctx, n.buyer, n.p1.ID)
	require.NoError(t, err)
	_, err = f.svc.RejectProposal(ctx, n.buyer, n.p1.ID)
	requireKind(t, err, KindConflict)

	_, err = f.svc.RejectProposal(ctx, n.s2, n.p2.ID)
	requireKind(t, err, KindForbidden)
}

func TestConcurrentAcceptsPickOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)

	extra := make([]model.Proposal, 0, 8)
	for i := 0; i < 8; i++ {
		s := f.user(t, model.RoleSeller, "bulk"+string(rune('a'+i))+"@example.com")
		p, err := f.svc.SubmitProposal(ctx, s, newProposal(n.req.ID, "200"))
		require.NoError(t, err)
		extra = append(extra, p)
	}
	all := append([]model.Proposal{n.p1, n.p2}, extra...)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for _, p := range all {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.AcceptProposal(ctx, n.buyer, id); err == nil {
				mu.Lock()
				wins = append(wins, id)
				mu.Unlock()
			} else {
				assert.True(t, IsKind(err, KindConflict), "unexpected error %v", err)
			}
		}(p.ID)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	r, err := f.st.GetRequest(ctx, n.req.ID)
	require.NoError(t, err)
	assert.Equal(t, wins[0], r.AcceptedProposalID)
}

func TestSubmitProposalRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)

	_, err := f.svc.SubmitProposal(ctx, n.buyer, newProposal(n.req.ID, "10"))
	requireKind(t, err, KindForbidden)

	_, err = f.svc.SubmitProposal(ctx, n.s1, newProposal("missing", "10"))
	requireKind(t, err, KindNotFound)

	bad := newProposal(n.req.ID, "10")
	bad.DeliveryTime = 0
	_, err = f.svc.SubmitProposal(ctx, n.s1, bad)
	requireKind(t, err, KindValidation)

	bad = newProposal(n.req.ID, "-1")
	_, err = f.svc.SubmitProposal(ctx, n.s1, bad)
	requireKind(t, err, KindValidation)

	_, err = f.svc.AcceptProposal(ctx, n.buyer, n.p1.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitProposal(ctx, n.s2, newProposal(n.req.ID, "10"))
	requireKind(t, err, KindConflict)
}

func TestCreateDatasetRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.user(t, model.RoleBuyer, "b@example.com")
	seller := f.user(t, model.RoleSeller, "s@example.com")

	_, err := f.svc.CreateDatasetRequest(ctx, seller, newRequest())
	requireKind(t, err, KindForbidden)

	nr := newRequest()
	nr.BudgetMin = decimal.NewFromInt(900)
	_, err = f.svc.CreateDatasetRequest(ctx, buyer, nr)
	requireKind(t, err, KindValidation)

	nr = newRequest()
	nr.Deadline = time.Time{}
	_, err = f.svc.CreateDatasetRequest(ctx, buyer, nr)
	requireKind(t, err, KindValidation)

	nr = newRequest()
	nr.Title = ""
	_, err = f.svc.CreateDatasetRequest(ctx, buyer, nr)
	requireKind(t, err, KindValidation)
}

func TestRequestClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)

	_, err := f.svc.FulfillRequest(ctx, n.buyer, n.req.ID)
	requireKind(t, err, KindConflict)

	_, err = f.svc.FulfillRequest(ctx, n.s1, n.req.ID)
	requireKind(t, err, KindForbidden)

	_, err = f.svc.AcceptProposal(ctx, n.buyer, n.p1.ID)
	require.NoError(t, err)
	r, err := f.svc.FulfillRequest(ctx, n.buyer, n.req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFulfilled, r.Status)

	_, err = f.svc.CancelRequest(ctx, n.buyer, n.req.ID)
	requireKind(t, err, KindConflict)

	closed := f.rec.OfType(model.EventRequestClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, n.s1.ID, closed[0].SellerID)
	assert.Equal(t, string(model.RequestFulfilled), closed[0].Status)

	_, err = f.svc.CancelRequest(ctx, n.buyer, "missing")
	requireKind(t, err, KindNotFound)
}

func TestRequestReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.negotiation(t)

	other, err := f.svc.CreateDatasetRequest(ctx, n.buyer, model.NewDatasetRequest{
		Title:       "Satellite tiles",
		Description: "Sentinel-2 tiles over Lagos",
		Category:    "Geospatial",
		BudgetMax:   decimal.NewFromInt(50),
		Deadline:    time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	detail, err := f.svc.GetRequest(ctx, n.req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.ProposalCount)
	require.Len(t, detail.Proposals, 2)
	require.NotNil(t, detail.Buyer)
	assert.Equal(t, n.buyer.ID, detail.Buyer.ID)
	for _, p := range detail.Proposals {
		require.NotNil(t, p.Seller)
		assert.Equal(t, p.SellerID, p.Seller.ID)
	}

	_, err = f.svc.GetRequest(ctx, "missing")
	requireKind(t, err, KindNotFound)

	geo, err := f.svc.ListRequests(ctx, store.RequestFilter{Category: "Geospatial"})
	require.NoError(t, err)
	require.Len(t, geo, 1)
	assert.Equal(t, other.ID, geo[0].ID)

	_, err = f.svc.ListRequests(ctx, store.RequestFilter{Status: "bogus"})
	requireKind(t, err, KindValidation)

	mine, err := f.svc.ListBuyerRequests(ctx, n.buyer)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, other.ID, mine[0].ID)
	assert.Equal(t, 0, mine[0].ProposalCount)
	assert.Equal(t, 2, mine[1].ProposalCount)

	bids, err := f.svc.ListSellerProposals(ctx, n.s1)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.NotNil(t, bids[0].Request)
	assert.Equal(t, n.req.ID, bids[0].Request.ID)
}
