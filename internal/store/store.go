// Package store is the marketplace repository. Lifecycle code depends on the
// Store interface only; Mem is the process-lifetime implementation.
//
// There is no generic partial update. Each mutation names the one field it
// moves, so ownership fields and ids cannot be rewritten through the store.
package store

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

var (
	// ErrNotFound is returned by get/update/delete on an unknown id.
	ErrNotFound = xerrors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness rule.
	ErrConflict = xerrors.New("conflict")
)

// DatasetFilter narrows the public catalogue. Zero fields match everything.
type DatasetFilter struct {
	Category string
	Format   string
	Search   string
}

type RequestFilter struct {
	Category string
	Status   model.RequestStatus
}

// Tx is the query and mutation surface. It is implemented by the store
// itself and by the transaction handle passed to Store.Update.
type Tx interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	IncrementUserPurchases(ctx context.Context, id string) (model.User, error)
	AddUserEarnings(ctx context.Context, id string, amount decimal.Decimal) (model.User, error)
	IncrementUserDatasets(ctx context.Context, id string) (model.User, error)
	SetUserVerified(ctx context.Context, id string, verified bool) (model.User, error)

	CreateDataset(ctx context.Context, d model.Dataset) (model.Dataset, error)
	GetDataset(ctx context.Context, id string) (model.Dataset, error)
	ListDatasets(ctx context.Context, f DatasetFilter) ([]model.Dataset, error)
	ListDatasetsBySeller(ctx context.Context, sellerID string) ([]model.Dataset, error)
	IncrementDownloads(ctx context.Context, id string) (model.Dataset, error)
	SetDatasetAvailability(ctx context.Context, id string, available bool) (model.Dataset, error)
	DeleteDataset(ctx context.Context, id string) (bool, error)

	CreateRequest(ctx context.Context, r model.DatasetRequest) (model.DatasetRequest, error)
	GetRequest(ctx context.Context, id string) (model.DatasetRequest, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]model.DatasetRequest, error)
	ListRequestsByBuyer(ctx context.Context, buyerID string) ([]model.DatasetRequest, error)
	SetRequestStatus(ctx context.Context, id string, status model.RequestStatus) (model.DatasetRequest, error)
	// SetAcceptedProposal records the winning proposal and moves the request
	// to in_progress. It fails with ErrConflict if a different proposal was
	// already recorded.
	SetAcceptedProposal(ctx context.Context, id, proposalID string) (model.DatasetRequest, error)

	CreateProposal(ctx context.Context, p model.Proposal) (model.Proposal, error)
	GetProposal(ctx context.Context, id string) (model.Proposal, error)
	ListProposalsByRequest(ctx context.Context, requestID string) ([]model.Proposal, error)
	ListProposalsBySeller(ctx context.Context, sellerID string) ([]model.Proposal, error)
	SetProposalStatus(ctx context.Context, id string, status model.ProposalStatus) (model.Proposal, error)

	CreatePurchase(ctx context.Context, p model.Purchase) (model.Purchase, error)
	GetPurchase(ctx context.Context, id string) (model.Purchase, error)
	FindPurchaseByRef(ctx context.Context, buyerID, ref string) (model.Purchase, error)
	ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]model.Purchase, error)
	ListPurchasesByDataset(ctx context.Context, datasetID string) ([]model.Purchase, error)
	HasPurchased(ctx context.Context, buyerID, datasetID string) (bool, error)
	SetPurchaseStatus(ctx context.Context, id string, status model.PurchaseStatus) (model.Purchase, error)

	CreateMessage(ctx context.Context, m model.Message) (model.Message, error)
	GetMessage(ctx context.Context, id string) (model.Message, error)
	// MessagesBetween is ordered oldest first.
	MessagesBetween(ctx context.Context, userA, userB string) ([]model.Message, error)
	// Conversations returns the latest message per counterpart, newest first.
	Conversations(ctx context.Context, userID string) ([]model.Message, error)
	MarkMessageRead(ctx context.Context, id string) (model.Message, error)
}

// Store is the repository injected into the lifecycle.
type Store interface {
	Tx
	// Update runs fn atomically. If fn returns an error none of its writes
	// are kept and no other operation observes them.
	Update(ctx context.Context, fn func(tx Tx) error) error
}
