package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a marketplace event published after a lifecycle
// operation commits.
type EventType string

const (
	EventDatasetCreated    EventType = "dataset.created"
	EventDatasetDownloaded EventType = "dataset.downloaded"
	EventRequestCreated    EventType = "request.created"
	EventRequestClosed     EventType = "request.closed"
	EventProposalSubmitted EventType = "proposal.submitted"
	EventProposalAccepted  EventType = "proposal.accepted"
	EventProposalRejected  EventType = "proposal.rejected"
	EventPurchaseCompleted EventType = "purchase.completed"
	EventPurchaseFailed    EventType = "purchase.failed"
	EventMessageSent       EventType = "message.sent"
)

// MarketEvent is published to topic market.events and consumed by the
// notifier and the projectors. Only the fields relevant to Type are set.
type MarketEvent struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	ActorID    string          `json:"actor_id"`
	BuyerID    string          `json:"buyer_id,omitempty"`
	SellerID   string          `json:"seller_id,omitempty"`
	DatasetID  string          `json:"dataset_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	ProposalID string          `json:"proposal_id,omitempty"`
	PurchaseID string          `json:"purchase_id,omitempty"`
	MessageID  string          `json:"message_id,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	Status     string          `json:"status,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Key is the partitioning key: events about one entity land on one partition.
func (e MarketEvent) Key() string {
	switch {
	case e.PurchaseID != "":
		return "purchase:" + e.PurchaseID
	case e.RequestID != "":
		return "request:" + e.RequestID
	case e.DatasetID != "":
		return "dataset:" + e.DatasetID
	case e.MessageID != "":
		return "message:" + e.MessageID
	}
	return string(e.Type)
}
