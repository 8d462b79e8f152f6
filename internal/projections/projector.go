// Package projections keeps Redis read models built from market events:
// leaderboards for the stats endpoints and a short-lived recent activity
// feed. Kafka delivers at least once, so every event is applied at most
// once by claiming its id first.
package projections

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

var log = logging.Logger("projections")

const seenTTL = 24 * time.Hour

type Projector struct {
	rdb    *redis.Client
	prefix string
}

func NewProjector(rdb *redis.Client, prefix string) *Projector {
	return &Projector{rdb: rdb, prefix: prefix}
}

// Handle matches events.Handler. A claimed id is released again when the
// projection fails, so a redelivery is applied.
func (p *Projector) Handle(ctx context.Context, evt model.MarketEvent) error {
	var claim string
	if evt.ID != "" {
		claim = p.prefix + "seen:" + evt.ID
		// SETNX returns false when another delivery already claimed the id.
		fresh, err := p.rdb.SetNX(ctx, claim, 1, seenTTL).Result()
		if err != nil {
			return xerrors.Errorf("claiming event %s: %w", evt.ID, err)
		}
		if !fresh {
			log.Debugw("skipping duplicate event", "event", evt.ID, "type", evt.Type)
			return nil
		}
	}

	if err := p.apply(ctx, evt); err != nil {
		if claim != "" {
			if derr := p.rdb.Del(context.WithoutCancel(ctx), claim).Err(); derr != nil {
				log.Errorw("releasing event claim", "event", evt.ID, "error", derr)
			}
		}
		return err
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, evt model.MarketEvent) error {
	ups := updates(evt)
	pipe := p.rdb.TxPipeline()
	for _, u := range ups {
		pipe.ZIncrBy(ctx, p.prefix+u.board, u.delta, u.member)
	}
	if err := pushFeed(ctx, pipe, p.prefix, evt); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Errorf("projecting %s: %w", evt.Type, err)
	}
	if len(ups) > 0 {
		log.Debugw("projected event", "event", evt.ID, "type", evt.Type, "boards", len(ups))
	}
	return nil
}
