package market

import (
	"context"
	"errors"

	"golang.org/x/xerrors"

	"datanest-backend/internal/metrics"
	"datanest-backend/internal/model"
	"datanest-backend/internal/payment"
	"datanest-backend/internal/store"
)

// CreatePaymentIntent opens a pending purchase of datasetID at its current
// price. A buyer holds at most one pending purchase per dataset; one older
// than the pending TTL is expired to failed first.
func (s *Service) CreatePaymentIntent(ctx context.Context, buyer model.User, datasetID string) (model.PaymentIntent, error) {
	in, err := s.createPaymentIntent(ctx, buyer, datasetID)
	if err != nil {
		metrics.Market.IntentsRejected.WithLabelValues(string(KindOf(err))).Inc()
		return model.PaymentIntent{}, err
	}
	metrics.Market.IntentsCreated.Inc()
	return in, nil
}

func (s *Service) createPaymentIntent(ctx context.Context, buyer model.User, datasetID string) (model.PaymentIntent, error) {
	if buyer.ID == "" {
		return model.PaymentIntent{}, forbidden("login required")
	}
	d, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return model.PaymentIntent{}, lookup("dataset", err)
	}

	unlock, err := s.lock(ctx, "purchase:"+buyer.ID+":"+d.ID)
	if err != nil {
		return model.PaymentIntent{}, err
	}
	defer unlock()

	var expired []model.Purchase
	err = s.store.Update(ctx, func(tx store.Tx) error {
		ps, err := tx.ListPurchasesByDataset(ctx, d.ID)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.BuyerID != buyer.ID {
				continue
			}
			switch p.Status {
			case model.PurchaseCompleted:
				return conflict("dataset already purchased")
			case model.PurchasePending:
				if !s.stale(p) {
					return conflict("a payment for this dataset is already in progress")
				}
				if p, err = tx.SetPurchaseStatus(ctx, p.ID, model.PurchaseFailed); err != nil {
					return err
				}
				expired = append(expired, p)
			}
		}

		if d, err = tx.GetDataset(ctx, d.ID); err != nil {
			return lookup("dataset", err)
		}
		if d.SellerID == buyer.ID {
			return conflict("cannot purchase your own dataset")
		}
		if !d.IsAvailable {
			return conflict("dataset is not available for purchase")
		}
		return nil
	})
	if err != nil {
		return model.PaymentIntent{}, lifecycleErr("checking purchase", err)
	}
	for _, p := range expired {
		metrics.Market.PurchasesFailed.Inc()
		log.Infow("expired stale pending purchase", "purchase", p.ID, "buyer", buyer.ID, "dataset", d.ID)
		s.publish(ctx, purchaseEvent(model.EventPurchaseFailed, buyer.ID, d.SellerID, p))
	}

	amount := d.Price
	intent, err := s.gateway.CreateIntent(ctx, payment.AmountCents(amount), payment.CurrencyUSD, map[string]string{
		"datasetId": d.ID,
		"buyerId":   buyer.ID,
		"sellerId":  d.SellerID,
	})
	if err != nil {
		log.Warnw("payment intent failed", "buyer", buyer.ID, "dataset", d.ID, "error", err)
		return model.PaymentIntent{}, unavailable("payment service unavailable", err)
	}

	// The seller may have deleted or withdrawn the dataset while the gateway
	// call was in flight; no pending purchase is recorded in that case.
	var p model.Purchase
	err = s.store.Update(ctx, func(tx store.Tx) error {
		cur, err := tx.GetDataset(ctx, d.ID)
		if errors.Is(err, store.ErrNotFound) {
			return conflict("dataset was removed during checkout")
		}
		if err != nil {
			return err
		}
		if !cur.IsAvailable {
			return conflict("dataset is not available for purchase")
		}
		p, err = tx.CreatePurchase(ctx, model.Purchase{
			BuyerID:            buyer.ID,
			DatasetID:          d.ID,
			Amount:             amount,
			ExternalPaymentRef: intent.Ref,
		})
		return err
	})
	if err != nil {
		if KindOf(err) == KindConflict {
			log.Warnw("abandoning payment intent", "ref", intent.Ref, "buyer", buyer.ID, "dataset", d.ID, "error", err)
		}
		return model.PaymentIntent{}, lifecycleErr("recording purchase", err)
	}

	log.Infow("payment intent created", "purchase", p.ID, "buyer", buyer.ID, "dataset", d.ID, "amount", amount.StringFixed(2))
	return model.PaymentIntent{PurchaseID: p.ID, PaymentIntentID: intent.Ref, ClientSecret: intent.ClientSecret, Amount: amount}, nil
}

func (s *Service) stale(p model.Purchase) bool {
	return s.pendingTTL > 0 && s.now().Sub(p.PurchasedAt) > s.pendingTTL
}

func purchaseEvent(t model.EventType, buyerID, sellerID string, p model.Purchase) model.MarketEvent {
	return model.MarketEvent{
		Type:       t,
		ActorID:    buyerID,
		BuyerID:    buyerID,
		SellerID:   sellerID,
		DatasetID:  p.DatasetID,
		PurchaseID: p.ID,
		Amount:     p.Amount,
		Status:     string(p.Status),
	}
}

// ConfirmPayment completes the buyer's purchase for ref and credits both
// parties in one transaction. Confirming a completed purchase is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, buyer model.User, ref string) (model.Purchase, error) {
	if ref == "" {
		return model.Purchase{}, validation("paymentIntentId is required", nil)
	}
	unlock, err := s.lock(ctx, "payment:"+ref)
	if err != nil {
		return model.Purchase{}, err
	}
	defer unlock()

	var (
		p      model.Purchase
		seller string
		noop   bool
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.FindPurchaseByRef(ctx, buyer.ID, ref); err != nil {
			return lookup("purchase", err)
		}
		switch p.Status {
		case model.PurchaseCompleted:
			noop = true
			return nil
		case model.PurchaseFailed:
			return conflict("purchase has failed")
		}

		d, err := tx.GetDataset(ctx, p.DatasetID)
		if err != nil {
			return lookup("dataset", err)
		}
		seller = d.SellerID

		if p, err = tx.SetPurchaseStatus(ctx, p.ID, model.PurchaseCompleted); err != nil {
			return err
		}
		if _, err = tx.IncrementUserPurchases(ctx, p.BuyerID); err != nil {
			return lookup("buyer", err)
		}
		if _, err = tx.AddUserEarnings(ctx, seller, p.Amount); err != nil {
			return lookup("seller", err)
		}
		return nil
	})
	if err != nil {
		return model.Purchase{}, lifecycleErr("confirming payment", err)
	}
	if noop {
		return p, nil
	}

	metrics.Market.PurchasesConfirmed.Inc()
	log.Infow("purchase completed", "purchase", p.ID, "buyer", p.BuyerID, "dataset", p.DatasetID, "amount", p.Amount.StringFixed(2))
	s.publish(ctx, purchaseEvent(model.EventPurchaseCompleted, p.BuyerID, seller, p))
	return p, nil
}

// FailPayment marks the buyer's pending purchase for ref as failed so a new
// intent can be opened. Failing a failed purchase is a no-op.
func (s *Service) FailPayment(ctx context.Context, buyer model.User, ref string) (model.Purchase, error) {
	if ref == "" {
		return model.Purchase{}, validation("paymentIntentId is required", nil)
	}
	unlock, err := s.lock(ctx, "payment:"+ref)
	if err != nil {
		return model.Purchase{}, err
	}
	defer unlock()

	var (
		p    model.Purchase
		noop bool
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.FindPurchaseByRef(ctx, buyer.ID, ref); err != nil {
			return lookup("purchase", err)
		}
		switch p.Status {
		case model.PurchaseFailed:
			noop = true
			return nil
		case model.PurchaseCompleted:
			return conflict("purchase already completed")
		}
		p, err = tx.SetPurchaseStatus(ctx, p.ID, model.PurchaseFailed)
		return err
	})
	if err != nil {
		return model.Purchase{}, lifecycleErr("failing payment", err)
	}
	if noop {
		return p, nil
	}

	var seller string
	if d, err := s.store.GetDataset(ctx, p.DatasetID); err == nil {
		seller = d.SellerID
	}
	metrics.Market.PurchasesFailed.Inc()
	s.publish(ctx, purchaseEvent(model.EventPurchaseFailed, p.BuyerID, seller, p))
	return p, nil
}

// ListBuyerPurchases is the buyer's dashboard view, every status included.
func (s *Service) ListBuyerPurchases(ctx context.Context, buyer model.User) ([]model.PurchaseWithDataset, error) {
	ps, err := s.store.ListPurchasesByBuyer(ctx, buyer.ID)
	if err != nil {
		return nil, xerrors.Errorf("listing purchases: %w", err)
	}
	out := make([]model.PurchaseWithDataset, len(ps))
	for i, p := range ps {
		out[i] = model.PurchaseWithDataset{Purchase: p}
		d, err := s.store.GetDataset(ctx, p.DatasetID)
		if err == nil {
			out[i].Dataset = &d
		} else if !IsKind(err, KindNotFound) {
			return nil, xerrors.Errorf("loading dataset: %w", err)
		}
	}
	return out, nil
}
