package store

import (
	"context"

	"github.com/shopspring/decimal"

	"datanest-backend/internal/model"
)

// The methods below give Mem the Tx surface, each call under the lock.

func (m *Mem) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	tx, done := m.write()
	defer done()
	return tx.CreateUser(ctx, u)
}

func (m *Mem) GetUser(ctx context.Context, id string) (model.User, error) {
	tx, done := m.view()
	defer done()
	return tx.GetUser(ctx, id)
}

func (m *Mem) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	tx, done := m.view()
	defer done()
	return tx.GetUserByEmail(ctx, email)
}

func (m *Mem) IncrementUserPurchases(ctx context.Context, id string) (model.User, error) {
	tx, done := m.write()
	defer done()
	return tx.IncrementUserPurchases(ctx, id)
}

func (m *Mem) AddUserEarnings(ctx context.Context, id string, amount decimal.Decimal) (model.User, error) {
	tx, done := m.write()
	defer done()
	return tx.AddUserEarnings(ctx, id, amount)
}

func (m *Mem) IncrementUserDatasets(ctx context.Context, id string) (model.User, error) {
	tx, done := m.write()
	defer done()
	return tx.IncrementUserDatasets(ctx, id)
}

func (m *Mem) SetUserVerified(ctx context.Context, id string, verified bool) (model.User, error) {
	tx, done := m.write()
	defer done()
	return tx.SetUserVerified(ctx, id, verified)
}

func (m *Mem) CreateDataset(ctx context.Context, d model.Dataset) (model.Dataset, error) {
	tx, done := m.write()
	defer done()
	return tx.CreateDataset(ctx, d)
}

func (m *Mem) GetDataset(ctx context.Context, id string) (model.Dataset, error) {
	tx, done := m.view()
	defer done()
	return tx.GetDataset(ctx, id)
}

func (m *Mem) ListDatasets(ctx context.Context, f DatasetFilter) ([]model.Dataset, error) {
	tx, done := m.view()
	defer done()
	return tx.ListDatasets(ctx, f)
}

func (m *Mem) ListDatasetsBySeller(ctx context.Context, sellerID string) ([]model.Dataset, error) {
	tx, done := m.view()
	defer done()
	return tx.ListDatasetsBySeller(ctx, sellerID)
}

func (m *Mem) IncrementDownloads(ctx context.Context, id string) (model.Dataset, error) {
	tx, done := m.write()
	defer done()
	return tx.IncrementDownloads(ctx, id)
}

func (m *Mem) SetDatasetAvailability(ctx context.Context, id string, available bool) (model.Dataset, error) {
	tx, done := m.write()
	defer done()
	return tx.SetDatasetAvailability(ctx, id, available)
}

func (m *Mem) DeleteDataset(ctx context.Context, id string) (bool, error) {
	tx, done := m.write()
	defer done()
	return tx.DeleteDataset(ctx, id)
}

func (m *Mem) CreateRequest(ctx context.Context, r model.DatasetRequest) (model.DatasetRequest, error) {
	tx, done := m.write()
	defer done()
	return tx.CreateRequest(ctx, r)
}

func (m *Mem) GetRequest(ctx context.Context, id string) (model.DatasetRequest, error) {
	tx, done := m.view()
	defer done()
	return tx.GetRequest(ctx, id)
}

func (m *Mem) ListRequests(ctx context.Context, f RequestFilter) ([]model.DatasetRequest, error) {
	tx, done := m.view()
	defer done()
	return tx.ListRequests(ctx, f)
}

func (m *Mem) ListRequestsByBuyer(ctx context.Context, buyerID string) ([]model.DatasetRequest, error) {
	tx, done := m.view()
	defer done()
	return tx.ListRequestsByBuyer(ctx, buyerID)
}

func (m *Mem) SetRequestStatus(ctx context.Context, id string, status model.RequestStatus) (model.DatasetRequest, error) {
	tx, done := m.write()
	defer done()
	return tx.SetRequestStatus(ctx, id, status)
}

func (m *Mem) SetAcceptedProposal(ctx context.Context, id, proposalID string) (model.DatasetRequest, error) {
	tx, done := m.write()
	defer done()
	return tx.SetAcceptedProposal(ctx, id, proposalID)
}

func (m *Mem) CreateProposal(ctx context.Context, p model.Proposal) (model.Proposal, error) {
	tx, done := m.write()
	defer done()
	return tx.CreateProposal(ctx, p)
}

func (m *Mem) GetProposal(ctx context.Context, id string) (model.Proposal, error) {
	tx, done := m.view()
	defer done()
	return tx.GetProposal(ctx, id)
}

func (m *Mem) ListProposalsByRequest(ctx context.Context, requestID string) ([]model.Proposal, error) {
	tx, done := m.view()
	defer done()
	return tx.ListProposalsByRequest(ctx, requestID)
}

func (m *Mem) ListProposalsBySeller(ctx context.Context, sellerID string) ([]model.Proposal, error) {
	tx, done := m.view()
	defer done()
	return tx.ListProposalsBySeller(ctx, sellerID)
}

func (m *Mem) SetProposalStatus(ctx context.Context, id string, status model.ProposalStatus) (model.Proposal, error) {
	tx, done := m.write()
	defer done()
	return tx.SetProposalStatus(ctx, id, status)
}

func (m *Mem) CreatePurchase(ctx context.Context, p model.Purchase) (model.Purchase, error) {
	tx, done := m.write()
	defer done()
	return tx.CreatePurchase(ctx, p)
}

func (m *Mem) GetPurchase(ctx context.Context, id string) (model.Purchase, error) {
	tx, done := m.view()
	defer done()
	return tx.GetPurchase(ctx, id)
}

func (m *Mem) FindPurchaseByRef(ctx context.Context, buyerID, ref string) (model.Purchase, error) {
	tx, done := m.view()
	defer done()
	return tx.FindPurchaseByRef(ctx, buyerID, ref)
}

func (m *Mem) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]model.Purchase, error) {
	tx, done := m.view()
	defer done()
	return tx.ListPurchasesByBuyer(ctx, buyerID)
}

func (m *Mem) ListPurchasesByDataset(ctx context.Context, datasetID string) ([]model.Purchase, error) {
	tx, done := m.view()
	defer done()
	return tx.ListPurchasesByDataset(ctx, datasetID)
}

func (m *Mem) HasPurchased(ctx context.Context, buyerID, datasetID string) (bool, error) {
	tx, done := m.view()
	defer done()
	return tx.HasPurchased(ctx, buyerID, datasetID)
}

func (m *Mem) SetPurchaseStatus(ctx context.Context, id string, status model.PurchaseStatus) (model.Purchase, error) {
	tx, done := m.write()
	defer done()
	return tx.SetPurchaseStatus(ctx, id, status)
}

func (m *Mem) CreateMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	tx, done := m.write()
	defer done()
	return tx.CreateMessage(ctx, msg)
}

func (m *Mem) GetMessage(ctx context.Context, id string) (model.Message, error) {
	tx, done := m.view()
	defer done()
	return tx.GetMessage(ctx, id)
}

func (m *Mem) MessagesBetween(ctx context.Context, userA, userB string) ([]model.Message, error) {
	tx, done := m.view()
	defer done()
	return tx.MessagesBetween(ctx, userA, userB)
}

func (m *Mem) Conversations(ctx context.Context, userID string) ([]model.Message, error) {
	tx, done := m.view()
	defer done()
	return tx.Conversations(ctx, userID)
}

func (m *Mem) MarkMessageRead(ctx context.Context, id string) (model.Message, error) {
	tx, done := m.write()
	defer done()
	return tx.MarkMessageRead(ctx, id)
}
