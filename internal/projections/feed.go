package projections

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

const (
	feedKey = "feed:recent"
	feedLen = 100
	feedTTL = 24 * time.Hour
)

// Activity is a public feed entry. It carries no buyer identity.
type Activity struct {
	Type      model.EventType `json:"type"`
	DatasetID string          `json:"datasetId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	SellerID  string          `json:"sellerId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func publicActivity(evt model.MarketEvent) (Activity, bool) {
	switch evt.Type {
	case model.EventDatasetCreated, model.EventPurchaseCompleted, model.EventRequestCreated, model.EventProposalAccepted:
		return Activity{
			Type:      evt.Type,
			DatasetID: evt.DatasetID,
			RequestID: evt.RequestID,
			SellerID:  evt.SellerID,
			Timestamp: evt.Timestamp,
		}, true
	}
	return Activity{}, false
}

func pushFeed(ctx context.Context, pipe redis.Pipeliner, prefix string, evt model.MarketEvent) error {
	a, ok := publicActivity(evt)
	if !ok {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return xerrors.Errorf("encoding activity: %w", err)
	}
	key := prefix + feedKey
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, feedLen-1)
	pipe.Expire(ctx, key, feedTTL)
	return nil
}

// Recent returns up to n feed entries, newest first.
func (s *Stats) Recent(ctx context.Context, n int) ([]Activity, error) {
	if n <= 0 || n > feedLen {
		n = feedLen
	}
	raw, err := s.rdb.LRange(ctx, s.prefix+feedKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, xerrors.Errorf("reading feed: %w", err)
	}
	out := make([]Activity, 0, len(raw))
	for _, r := range raw {
		var a Activity
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			log.Warnw("dropping undecodable feed entry", "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
