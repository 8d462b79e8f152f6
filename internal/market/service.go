// Package market is the marketplace lifecycle: listing and downloading
// datasets, the request/proposal negotiation, and the purchase/payment
// flow. Every operation takes the acting user explicitly; authentication
// happens before the service is called.
package market

import (
	"context"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"

	"datanest-backend/internal/access"
	"datanest-backend/internal/blob"
	"datanest-backend/internal/events"
	"datanest-backend/internal/keylock"
	"datanest-backend/internal/metrics"
	"datanest-backend/internal/model"
	"datanest-backend/internal/payment"
	"datanest-backend/internal/store"
)

var log = logging.Logger("market")

// DefaultPendingTTL is how long a pending purchase blocks a new intent for
// the same buyer and dataset.
const DefaultPendingTTL = 30 * time.Minute

// DefaultMIMETypes are the upload types accepted for datasets.
var DefaultMIMETypes = []string{
	"text/csv",
	"application/json",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
	"application/xml",
	"application/zip",
	"image/jpeg",
	"image/png",
	"audio/wav",
	"audio/mpeg",
	"video/mp4",
}

// TokenIssuer mints the session token returned by Register and Login.
type TokenIssuer interface {
	Issue(u model.User) (string, error)
}

type Service struct {
	store    store.Store
	gate     *access.Gate
	gateway  payment.Gateway
	blobs    blob.Store
	tokens   TokenIssuer
	locks    keylock.Locker
	events   events.Publisher
	validate *validator.Validate

	now        func() time.Time
	pendingTTL time.Duration
	mimeTypes  map[string]bool
}

type Option func(*Service)

func WithLocker(l keylock.Locker) Option {
	return func(s *Service) { s.locks = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPendingTTL overrides DefaultPendingTTL. d <= 0 keeps pending
// purchases blocking forever.
func WithPendingTTL(d time.Duration) Option {
	return func(s *Service) { s.pendingTTL = d }
}

func WithMIMETypes(types []string) Option {
	return func(s *Service) { s.mimeTypes = mimeSet(types) }
}

func New(st store.Store, gw payment.Gateway, blobs blob.Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:      st,
		gate:       access.NewGate(st),
		gateway:    gw,
		blobs:      blobs,
		tokens:     tokens,
		locks:      keylock.NewLocal(),
		events:     events.Nop{},
		validate:   newValidator(),
		now:        time.Now,
		pendingTTL: DefaultPendingTTL,
		mimeTypes:  mimeSet(DefaultMIMETypes),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func mimeSet(types []string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		out, _ := d.Float64()
		return out
	}, decimal.Decimal{})
	return v
}

func (s *Service) check(payload interface{}) error {
	if err := s.validate.Struct(payload); err != nil {
		return validation("invalid payload", err)
	}
	return nil
}

// lock takes the keyed lock and maps a cancelled wait to Unavailable.
func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, unavailable("busy, retry later", err)
	}
	return unlock, nil
}

// publish sends evt after the operation committed. Failures are logged
// and counted; they never fail the operation.
func (s *Service) publish(ctx context.Context, evt model.MarketEvent) {
	evt.ID = uuid.NewString()
	evt.Timestamp = s.now().UTC()
	if err := s.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		metrics.Market.EventPublishErrors.Inc()
		log.Warnw("publishing event failed", "type", evt.Type, "key", evt.Key(), "error", err)
	}
}

// summaries loads user summaries for ids, skipping users that no longer
// exist.
func (s *Service) summaries(ctx context.Context, ids ...string) (map[string]*model.UserSummary, error) {
	out := make(map[string]*model.UserSummary, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok || id == "" {
			continue
		}
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			if IsKind(err, KindNotFound) {
				continue
			}
			return nil, lookup("user", err)
		}
		out[id] = u.Summary()
	}
	return out, nil
}
