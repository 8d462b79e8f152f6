package market

import (
	"context"
	"strings"

	"golang.org/x/xerrors"

	"datanest-backend/internal/metrics"
	"datanest-backend/internal/model"
	"datanest-backend/internal/store"
)

func (s *Service) CreateDatasetRequest(ctx context.Context, buyer model.User, nr model.NewDatasetRequest) (model.DatasetRequest, error) {
	if !s.gate.CanPostRequest(buyer) {
		return model.DatasetRequest{}, forbidden("only buyers can post requests")
	}
	if err := s.check(nr); err != nil {
		return model.DatasetRequest{}, err
	}
	if nr.BudgetMin.GreaterThan(nr.BudgetMax) {
		return model.DatasetRequest{}, validation("budgetMin must not exceed budgetMax", nil)
	}

	r, err := s.store.CreateRequest(ctx, model.DatasetRequest{
		BuyerID:     buyer.ID,
		Title:       strings.TrimSpace(nr.Title),
		Description: nr.Description,
		Category:    nr.Category,
		Tags:        nr.Tags,
		BudgetMin:   nr.BudgetMin,
		BudgetMax:   nr.BudgetMax,
		Deadline:    nr.Deadline,
	})
	if err != nil {
		return model.DatasetRequest{}, xerrors.Errorf("creating request: %w", err)
	}

	s.publish(ctx, model.MarketEvent{
		Type:      model.EventRequestCreated,
		ActorID:   buyer.ID,
		BuyerID:   buyer.ID,
		RequestID: r.ID,
	})
	return r, nil
}

// SubmitProposal bids on an open request. Any seller may bid.
func (s *Service) SubmitProposal(ctx context.Context, seller model.User, np model.NewProposal) (model.Proposal, error) {
	if !s.gate.CanSubmitProposal(seller) {
		return model.Proposal{}, forbidden("only sellers can submit proposals")
	}
	if err := s.check(np); err != nil {
		return model.Proposal{}, err
	}

	var (
		p model.Proposal
		r model.DatasetRequest
	)
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetRequest(ctx, np.RequestID)
		if err != nil {
			return lookup("request", err)
		}
		if r.Status != model.RequestOpen {
			return conflict("request is " + string(r.Status) + ", not open")
		}
		p, err = tx.CreateProposal(ctx, model.Proposal{
			RequestID:    r.ID,
			SellerID:     seller.ID,
			Price:        np.Price,
			DeliveryTime: np.DeliveryTime,
			CoverLetter:  np.CoverLetter,
		})
		return err
	})
	if err != nil {
		return model.Proposal{}, lifecycleErr("submitting proposal", err)
	}

	metrics.Market.ProposalsSubmitted.Inc()
	s.publish(ctx, model.MarketEvent{
		Type:       model.EventProposalSubmitted,
		ActorID:    seller.ID,
		BuyerID:    r.BuyerID,
		SellerID:   seller.ID,
		RequestID:  r.ID,
		ProposalID: p.ID,
		Amount:     p.Price,
	})
	return p, nil
}

// requestLock serializes decisions on one request.
func (s *Service) requestLock(ctx context.Context, proposalID string) (func(), error) {
	p, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, lookup("proposal", err)
	}
	return s.lock(ctx, "request:"+p.RequestID)
}

// AcceptProposal makes proposalID the request's single accepted proposal
// and moves the request to in_progress. Accepting the proposal that is
// already accepted succeeds without changes.
func (s *Service) AcceptProposal(ctx context.Context, actor model.User, proposalID string) (model.Proposal, error) {
	unlock, err := s.requestLock(ctx, proposalID)
	if err != nil {
		return model.Proposal{}, err
	}
	defer unlock()

	var (
		p    model.Proposal
		r    model.DatasetRequest
		noop bool
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.GetProposal(ctx, proposalID); err != nil {
			return lookup("proposal", err)
		}
		if r, err = tx.GetRequest(ctx, p.RequestID); err != nil {
			return lookup("request", err)
		}
		if !s.gate.CanActOnRequest(actor, r) {
			return forbidden("only the request owner can accept proposals")
		}

		switch {
		case p.Status == model.ProposalAccepted && r.AcceptedProposalID == p.ID:
			noop = true
			return nil
		case r.AcceptedProposalID != "":
			return conflict("request already has an accepted proposal")
		case p.Status != model.ProposalPending:
			return conflict("proposal is " + string(p.Status))
		case r.Status != model.RequestOpen:
			return conflict("request is " + string(r.Status) + ", not open")
		}

		if p, err = tx.SetProposalStatus(ctx, p.ID, model.ProposalAccepted); err != nil {
			return err
		}
		r, err = tx.SetAcceptedProposal(ctx, r.ID, p.ID)
		return err
	})
	if err != nil {
		return model.Proposal{}, lifecycleErr("accepting proposal", err)
	}
	if noop {
		return p, nil
	}

	metrics.Market.ProposalsAccepted.Inc()
	log.Infow("proposal accepted", "proposal", p.ID, "request", r.ID, "seller", p.SellerID)
	s.publish(ctx, model.MarketEvent{
		Type:       model.EventProposalAccepted,
		ActorID:    actor.ID,
		BuyerID:    r.BuyerID,
		SellerID:   p.SellerID,
		RequestID:  r.ID,
		ProposalID: p.ID,
		Amount:     p.Price,
		Status:     string(r.Status),
	})
	return p, nil
}

// RejectProposal declines a pending proposal. The request is unaffected.
func (s *Service) RejectProposal(ctx context.Context, actor model.User, proposalID string) (model.Proposal, error) {
	unlock, err := s.requestLock(ctx, proposalID)
	if err != nil {
		return model.Proposal{}, err
	}
	defer unlock()

	var (
		p    model.Proposal
		r    model.DatasetRequest
		noop bool
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.GetProposal(ctx, proposalID); err != nil {
			return lookup("proposal", err)
		}
		if r, err = tx.GetRequest(ctx, p.RequestID); err != nil {
			return lookup("request", err)
		}
		if !s.gate.CanActOnRequest(actor, r) {
			return forbidden("only the request owner can reject proposals")
		}
		switch p.Status {
		case model.ProposalRejected:
			noop = true
			return nil
		case model.ProposalAccepted:
			return conflict("proposal was already accepted")
		}
		p, err = tx.SetProposalStatus(ctx, p.ID, model.ProposalRejected)
		return err
	})
	if err != nil {
		return model.Proposal{}, lifecycleErr("rejecting proposal", err)
	}
	if noop {
		return p, nil
	}

	s.publish(ctx, model.MarketEvent{
		Type:       model.EventProposalRejected,
		ActorID:    actor.ID,
		BuyerID:    r.BuyerID,
		SellerID:   p.SellerID,
		RequestID:  r.ID,
		ProposalID: p.ID,
	})
	return p, nil
}

// FulfillRequest records delivery of the accepted proposal.
func (s *Service) FulfillRequest(ctx context.Context, actor model.User, requestID string) (model.DatasetRequest, error) {
	return s.closeRequest(ctx, actor, requestID, model.RequestFulfilled)
}

// CancelRequest withdraws an open or in-progress request.
func (s *Service) CancelRequest(ctx context.Context, actor model.User, requestID string) (model.DatasetRequest, error) {
	return s.closeRequest(ctx, actor, requestID, model.RequestCancelled)
}

func (s *Service) closeRequest(ctx context.Context, actor model.User, requestID string, to model.RequestStatus) (model.DatasetRequest, error) {
	unlock, err := s.lock(ctx, "request:"+requestID)
	if err != nil {
		return model.DatasetRequest{}, err
	}
	defer unlock()

	var r model.DatasetRequest
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if r, err = tx.GetRequest(ctx, requestID); err != nil {
			return lookup("request", err)
		}
		if !s.gate.CanActOnRequest(actor, r) {
			return forbidden("only the request owner can close it")
		}
		if !r.Status.CanTransition(to) {
			return conflict("request is " + string(r.Status) + ", cannot become " + string(to))
		}
		r, err = tx.SetRequestStatus(ctx, r.ID, to)
		return err
	})
	if err != nil {
		return model.DatasetRequest{}, lifecycleErr("closing request", err)
	}

	evt := model.MarketEvent{
		Type:      model.EventRequestClosed,
		ActorID:   actor.ID,
		BuyerID:   r.BuyerID,
		RequestID: r.ID,
		Status:    string(r.Status),
	}
	if r.AcceptedProposalID != "" {
		evt.ProposalID = r.AcceptedProposalID
		if p, err := s.store.GetProposal(ctx, r.AcceptedProposalID); err == nil {
			evt.SellerID = p.SellerID
		}
	}
	s.publish(ctx, evt)
	return r, nil
}

// GetRequest returns the request with its buyer and every proposal.
func (s *Service) GetRequest(ctx context.Context, id string) (model.RequestWithDetails, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return model.RequestWithDetails{}, lookup("request", err)
	}
	ps, err := s.store.ListProposalsByRequest(ctx, r.ID)
	if err != nil {
		return model.RequestWithDetails{}, xerrors.Errorf("listing proposals: %w", err)
	}

	ids := []string{r.BuyerID}
	for _, p := range ps {
		ids = append(ids, p.SellerID)
	}
	users, err := s.summaries(ctx, ids...)
	if err != nil {
		return model.RequestWithDetails{}, err
	}

	out := model.RequestWithDetails{
		DatasetRequest: r,
		Buyer:          users[r.BuyerID],
		Proposals:      make([]model.ProposalWithSeller, len(ps)),
		ProposalCount:  len(ps),
	}
	for i, p := range ps {
		out.Proposals[i] = model.ProposalWithSeller{Proposal: p, Seller: users[p.SellerID]}
	}
	return out, nil
}

func (s *Service) ListRequests(ctx context.Context, f store.RequestFilter) ([]model.RequestWithDetails, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validation("unknown request status "+string(f.Status), nil)
	}
	rs, err := s.store.ListRequests(ctx, f)
	if err != nil {
		return nil, xerrors.Errorf("listing requests: %w", err)
	}
	return s.withCounts(ctx, rs)
}

// ListBuyerRequests is the buyer's dashboard view.
func (s *Service) ListBuyerRequests(ctx context.Context, buyer model.User) ([]model.RequestWithDetails, error) {
	rs, err := s.store.ListRequestsByBuyer(ctx, buyer.ID)
	if err != nil {
		return nil, xerrors.Errorf("listing buyer requests: %w", err)
	}
	return s.withCounts(ctx, rs)
}

func (s *Service) withCounts(ctx context.Context, rs []model.DatasetRequest) ([]model.RequestWithDetails, error) {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.BuyerID
	}
	buyers, err := s.summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]model.RequestWithDetails, len(rs))
	for i, r := range rs {
		ps, err := s.store.ListProposalsByRequest(ctx, r.ID)
		if err != nil {
			return nil, xerrors.Errorf("counting proposals: %w", err)
		}
		out[i] = model.RequestWithDetails{DatasetRequest: r, Buyer: buyers[r.BuyerID], ProposalCount: len(ps)}
	}
	return out, nil
}

// ListSellerProposals is the seller's dashboard view.
func (s *Service) ListSellerProposals(ctx context.Context, seller model.User) ([]model.ProposalWithRequest, error) {
	ps, err := s.store.ListProposalsBySeller(ctx, seller.ID)
	if err != nil {
		return nil, xerrors.Errorf("listing seller proposals: %w", err)
	}
	out := make([]model.ProposalWithRequest, len(ps))
	for i, p := range ps {
		out[i] = model.ProposalWithRequest{Proposal: p}
		r, err := s.store.GetRequest(ctx, p.RequestID)
		if err == nil {
			out[i].Request = &r
		} else if !IsKind(err, KindNotFound) {
			return nil, xerrors.Errorf("loading request: %w", err)
		}
	}
	return out, nil
}

// lifecycleErr passes classified errors through and wraps the rest.
func lifecycleErr(op string, err error) error {
	if KindOf(err) == KindInternal {
		return xerrors.Errorf("%s: %w", op, err)
	}
	return err
}
