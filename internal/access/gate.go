// Package access centralizes the authorization checks that guard downloads,
// purchases and request decisions. The checks are predicates; callers turn a
// false result into a forbidden error.
package access

import (
	"context"

	"datanest-backend/internal/model"
)

// PurchaseChecker reports whether a buyer holds a completed purchase.
type PurchaseChecker interface {
	HasPurchased(ctx context.Context, buyerID, datasetID string) (bool, error)
}

// Gate evaluates access against the store's current state.
type Gate struct {
	purchases PurchaseChecker
}

func NewGate(purchases PurchaseChecker) *Gate {
	return &Gate{purchases: purchases}
}

// CanDownload is true for the dataset's seller and for buyers with a
// completed purchase. Availability is not considered. The error is only
// non-nil when the purchase lookup itself failed.
func (g *Gate) CanDownload(ctx context.Context, user model.User, d model.Dataset) (bool, error) {
	if user.ID == "" {
		return false, nil
	}
	if user.ID == d.SellerID {
		return true, nil
	}
	return g.purchases.HasPurchased(ctx, user.ID, d.ID)
}

// CanActOnRequest is true only for the buyer who posted the request.
func (g *Gate) CanActOnRequest(user model.User, r model.DatasetRequest) bool {
	return user.ID != "" && user.ID == r.BuyerID
}

// CanSubmitProposal lets any seller bid on any request.
func (g *Gate) CanSubmitProposal(user model.User) bool {
	return user.ID != "" && user.Role == model.RoleSeller
}

func (g *Gate) CanSell(user model.User) bool {
	return user.ID != "" && user.Role == model.RoleSeller
}

func (g *Gate) CanPostRequest(user model.User) bool {
	return user.ID != "" && user.Role == model.RoleBuyer
}

// CanReadMessage is true for either party of the message.
func (g *Gate) CanReadMessage(user model.User, m model.Message) bool {
	return user.ID != "" && (user.ID == m.SenderID || user.ID == m.ReceiverID)
}
