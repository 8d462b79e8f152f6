package projections

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

// Sorted-set keys, relative to the projector prefix.
const (
	BoardDatasetDownloads = "top:datasets:downloads"
	BoardDatasetSales     = "top:datasets:sales"
	BoardSellerEarnings   = "top:sellers:earnings"
)

type update struct {
	board  string
	member string
	delta  float64
}

func updates(evt model.MarketEvent) []update {
	switch evt.Type {
	case model.EventDatasetDownloaded:
		return []update{{BoardDatasetDownloads, evt.DatasetID, 1}}
	case model.EventPurchaseCompleted:
		amount, _ := evt.Amount.Float64()
		ups := []update{{BoardDatasetSales, evt.DatasetID, 1}}
		if evt.SellerID != "" {
			ups = append(ups, update{BoardSellerEarnings, evt.SellerID, amount})
		}
		return ups
	}
	return nil
}

// Entry is one leaderboard row.
type Entry struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Stats reads the leaderboards.
type Stats struct {
	rdb    *redis.Client
	prefix string
}

func NewStats(rdb *redis.Client, prefix string) *Stats {
	return &Stats{rdb: rdb, prefix: prefix}
}

// Top returns up to n highest-scored members of board.
func (s *Stats) Top(ctx context.Context, board string, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.prefix+board, 0, int64(n-1)).Result()
	if err != nil {
		return nil, xerrors.Errorf("reading %s: %w", board, err)
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		var id string
		switch m := z.Member.(type) {
		case string:
			id = m
		case int64:
			id = strconv.FormatInt(m, 10)
		default:
			continue
		}
		out = append(out, Entry{ID: id, Score: z.Score})
	}
	return out, nil
}
