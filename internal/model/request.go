package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a DatasetRequest.
type RequestStatus string

const (
	RequestOpen       RequestStatus = "open"
	RequestInProgress RequestStatus = "in_progress"
	RequestFulfilled  RequestStatus = "fulfilled"
	RequestCancelled  RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestOpen:       {RequestInProgress, RequestCancelled},
	RequestInProgress: {RequestFulfilled, RequestCancelled},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestOpen, RequestInProgress, RequestFulfilled, RequestCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are defined.
func (s RequestStatus) Terminal() bool {
	return s == RequestFulfilled || s == RequestCancelled
}

// CanTransition reports whether from -> to is an edge of the request state machine.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// DatasetRequest is a buyer's call for a custom dataset.
type DatasetRequest struct {
	ID                 string          `json:"id"`
	BuyerID            string          `json:"buyerId"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	Tags               []string        `json:"tags"`
	BudgetMin          decimal.Decimal `json:"budgetMin"`
	BudgetMax          decimal.Decimal `json:"budgetMax"`
	Deadline           time.Time       `json:"deadline"`
	Status             RequestStatus   `json:"status"`
	AcceptedProposalID string          `json:"acceptedProposalId,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type NewDatasetRequest struct {
	Title       string          `json:"title" validate:"required,max=300"`
	Description string          `json:"description" validate:"required"`
	Category    string          `json:"category" validate:"required"`
	Tags        []string        `json:"tags" validate:"dive,required,max=64"`
	BudgetMin   decimal.Decimal `json:"budgetMin" validate:"gte=0"`
	BudgetMax   decimal.Decimal `json:"budgetMax" validate:"gte=0"`
	Deadline    time.Time       `json:"deadline" validate:"required"`
}

// RequestWithDetails is the request view with its buyer and proposals.
type RequestWithDetails struct {
	DatasetRequest
	Buyer         *UserSummary         `json:"buyer"`
	Proposals     []ProposalWithSeller `json:"proposals,omitempty"`
	ProposalCount int                  `json:"proposalCount"`
}

// ProposalStatus is the lifecycle state of a Proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalPending, ProposalAccepted, ProposalRejected:
		return true
	}
	return false
}

// CanTransition only allows leaving pending; accepted and rejected are final.
func (s ProposalStatus) CanTransition(to ProposalStatus) bool {
	return s == ProposalPending && (to == ProposalAccepted || to == ProposalRejected)
}

// Proposal is a seller's offer against a DatasetRequest.
type Proposal struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"requestId"`
	SellerID     string          `json:"sellerId"`
	Price        decimal.Decimal `json:"price"`
	DeliveryTime int             `json:"deliveryTime"`
	CoverLetter  string          `json:"coverLetter"`
	Status       ProposalStatus  `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type NewProposal struct {
	RequestID    string          `json:"requestId" validate:"required"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	DeliveryTime int             `json:"deliveryTime" validate:"required,gt=0"`
	CoverLetter  string          `json:"coverLetter" validate:"required"`
}

type ProposalWithSeller struct {
	Proposal
	Seller *UserSummary `json:"seller"`
}

type ProposalWithRequest struct {
	Proposal
	Request *DatasetRequest `json:"request"`
}
