package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

type row[T any] struct {
	seq uint64
	v   T
}

// table is one keyed collection. seq records insertion order, which is the
// listing order; timestamps may tie.
type table[T any] map[string]row[T]

func (t table[T]) freshID() string {
	for {
		id := uuid.NewString()
		if _, ok := t[id]; !ok {
			return id
		}
	}
}

func (t table[T]) put(j *journal, id string, r row[T]) {
	old, had := t[id]
	j.record(func() {
		if had {
			t[id] = old
		} else {
			delete(t, id)
		}
	})
	t[id] = r
}

func (t table[T]) remove(j *journal, id string) bool {
	old, had := t[id]
	if !had {
		return false
	}
	j.record(func() { t[id] = old })
	delete(t, id)
	return true
}

// collect returns the values accepted by keep, newest first unless
// oldestFirst is set.
func collect[T any](t table[T], keep func(T) bool, oldestFirst bool) []T {
	rows := make([]row[T], 0, len(t))
	for _, r := range t {
		if keep == nil || keep(r.v) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if oldestFirst {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.v
	}
	return out
}

// journal holds undo steps for the writes of one Update call. A nil journal
// records nothing.
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

type memDB struct {
	now func() time.Time
	seq uint64

	users     table[model.User]
	emails    table[string]
	datasets  table[model.Dataset]
	requests  table[model.DatasetRequest]
	proposals table[model.Proposal]
	purchases table[model.Purchase]
	messages  table[model.Message]
}

// Mem is an in-memory Store guarded by a single RWMutex. Reads share the
// lock, writes and Update calls hold it exclusively.
type Mem struct {
	mu sync.RWMutex
	db memDB
}

var _ Store = (*Mem)(nil)

type MemOption func(*Mem)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) MemOption {
	return func(m *Mem) { m.db.now = now }
}

func NewMem(opts ...MemOption) *Mem {
	m := &Mem{db: memDB{
		now:       func() time.Time { return time.Now().UTC() },
		users:     table[model.User]{},
		emails:    table[string]{},
		datasets:  table[model.Dataset]{},
		requests:  table[model.DatasetRequest]{},
		proposals: table[model.Proposal]{},
		purchases: table[model.Purchase]{},
		messages:  table[model.Message]{},
	}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Update runs fn while holding the write lock. fn must only use the Tx it is
// given; calling back into m would deadlock.
func (m *Mem) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := &journal{}
	committed := false
	defer func() {
		if !committed {
			j.rollback()
		}
	}()
	if err := fn(memTx{db: &m.db, j: j}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *Mem) view() (memTx, func()) {
	m.mu.RLock()
	return memTx{db: &m.db}, m.mu.RUnlock
}

func (m *Mem) write() (memTx, func()) {
	m.mu.Lock()
	return memTx{db: &m.db}, m.mu.Unlock
}

// memTx implements Tx over memDB without locking; the caller holds the lock.
type memTx struct {
	db *memDB
	j  *journal
}

var _ Tx = memTx{}

func (tx memTx) next() uint64 {
	tx.db.seq++
	return tx.db.seq
}

func get[T any](t table[T], kind, id string) (T, error) {
	r, ok := t[id]
	if !ok {
		var zero T
		return zero, xerrors.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return r.v, nil
}

func mutate[T any](tx memTx, t table[T], kind, id string, fn func(v *T) error) (T, error) {
	r, ok := t[id]
	if !ok {
		var zero T
		return zero, xerrors.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err := fn(&r.v); err != nil {
		var zero T
		return zero, err
	}
	t.put(tx.j, id, r)
	return r.v, nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return slices.Clone(tags)
}

// Users

func (tx memTx) CreateUser(_ context.Context, u model.User) (model.User, error) {
	key := emailKey(u.Email)
	if _, ok := tx.db.emails[key]; ok {
		return model.User{}, xerrors.Errorf("email %q already registered: %w", u.Email, ErrConflict)
	}
	now := tx.db.now()
	u.ID = tx.db.users.freshID()
	u.TotalDatasets = 0
	u.TotalPurchases = 0
	u.TotalEarnings = decimal.Zero
	u.CreatedAt, u.UpdatedAt = now, now

	seq := tx.next()
	tx.db.users.put(tx.j, u.ID, row[model.User]{seq: seq, v: u})
	tx.db.emails.put(tx.j, key, row[string]{seq: seq, v: u.ID})
	return u, nil
}

func (tx memTx) GetUser(_ context.Context, id string) (model.User, error) {
	return get(tx.db.users, "user", id)
}

func (tx memTx) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	r, ok := tx.db.emails[emailKey(email)]
	if !ok {
		return model.User{}, xerrors.Errorf("user with email %q: %w", email, ErrNotFound)
	}
	return get(tx.db.users, "user", r.v)
}

func (tx memTx) IncrementUserPurchases(_ context.Context, id string) (model.User, error) {
	now := tx.db.now()
	return mutate(tx, tx.db.users, "user", id, func(u *model.User) error {
		u.TotalPurchases++
		u.UpdatedAt = now
		return nil
	})
}

func (tx memTx) AddUserEarnings(_ context.Context, id string, amount decimal.Decimal) (model.User, error) {
	if amount.IsNegative() {
		return model.User{}, xerrors.Errorf("negative earnings %s for user %s", amount, id)
	}
	now := tx.db.now()
	return mutate(tx, tx.db.users, "user", id, func(u *model.User) error {
		u.TotalEarnings = u.TotalEarnings.Add(amount)
		u.UpdatedAt = now
		return nil
	})
}

func (tx memTx) IncrementUserDatasets(_ context.Context, id string) (model.User, error) {
	now := tx.db.now()
	return mutate(tx, tx.db.users, "user", id, func(u *model.User) error {
		u.TotalDatasets++
		u.UpdatedAt = now
		return nil
	})
}

func (tx memTx) SetUserVerified(_ context.Context, id string, verified bool) (model.User, error) {
	now := tx.db.now()
	return mutate(tx, tx.db.users, "user", id, func(u *model.User) error {
		u.IsVerified = verified
		u.UpdatedAt = now
		return nil
	})
}

// Datasets

func outDataset(d model.Dataset) model.Dataset {
	d.Tags = cloneTags(d.Tags)
	return d
}

func outDatasets(ds []model.Dataset) []model.Dataset {
	for i := range ds {
		ds[i] = outDataset(ds[i])
	}
	return ds
}

func (tx memTx) CreateDataset(_ context.Context, d model.Dataset) (model.Dataset, error) {
	now := tx.db.now()
	d.ID = tx.db.datasets.freshID()
	d.Tags = cloneTags(d.Tags)
	d.Downloads = 0
	d.IsAvailable = true
	d.CreatedAt, d.UpdatedAt = now, now
	tx.db.datasets.put(tx.j, d.ID, row[model.Dataset]{seq: tx.next(), v: d})
	return outDataset(d), nil
}

func (tx memTx) GetDataset(_ context.Context, id string) (model.Dataset, error) {
	d, err := get(tx.db.datasets, "dataset", id)
	if err != nil {
		return d, err
	}
	return outDataset(d), nil
}

func (tx memTx) ListDatasets(_ context.Context, f DatasetFilter) ([]model.Dataset, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	return outDatasets(collect(tx.db.datasets, func(d model.Dataset) bool {
		if !d.IsAvailable {
			return false
		}
		if f.Category != "" && f.Category != model.AllCategories && d.Category != f.Category {
			return false
		}
		if f.Format != "" && d.Format != f.Format {
			return false
		}
		return search == "" || matchesSearch(d, search)
	}, false)), nil
}

func matchesSearch(d model.Dataset, search string) bool {
	if strings.Contains(strings.ToLower(d.Title), search) ||
		strings.Contains(strings.ToLower(d.Description), search) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), search) {
			return true
		}
	}
	return false
}

func (tx memTx) ListDatasetsBySeller(_ context.Context, sellerID string) ([]model.Dataset, error) {
	return outDatasets(collect(tx.db.datasets, func(d model.Dataset) bool {
		return d.SellerID == sellerID
	}, false)), nil
}

func (tx memTx) IncrementDownloads(_ context.Context, id string) (model.Dataset, error) {
	now := tx.db.now()
	d, err := mutate(tx, tx.db.datasets, "dataset", id, func(d *model.Dataset) error {
		d.Downloads++
		d.UpdatedAt = now
		return nil
	})
	return outDataset(d), err
}

func (tx memTx) SetDatasetAvailability(_ context.Context, id string, available bool) (model.Dataset, error) {
	now := tx.db.now()
	d, err := mutate(tx, tx.db.datasets, "dataset", id, func(d *model.Dataset) error {
		d.IsAvailable = available
		d.UpdatedAt = now
		return nil
	})
	return outDataset(d), err
}

func (tx memTx) DeleteDataset(_ context.Context, id string) (bool, error) {
	return tx.db.datasets.remove(tx.j, id), nil
}

// Requests

func outRequest(r model.DatasetRequest) model.DatasetRequest {
	r.Tags = cloneTags(r.Tags)
	return r
}

func outRequests(rs []model.DatasetRequest) []model.DatasetRequest {
	for i := range rs {
		rs[i] = outRequest(rs[i])
	}
	return rs
}

func (tx memTx) CreateRequest(_ context.Context, r model.DatasetRequest) (model.DatasetRequest, error) {
	now := tx.db.now()
	r.ID = tx.db.requests.freshID()
	r.Tags = cloneTags(r.Tags)
	r.Status = model.RequestOpen
	r.AcceptedProposalID = ""
	r.CreatedAt, r.UpdatedAt = now, now
	tx.db.requests.put(tx.j, r.ID, row[model.DatasetRequest]{seq: tx.next(), v: r})
	return outRequest(r), nil
}

func (tx memTx) GetRequest(_ context.Context, id string) (model.DatasetRequest, error) {
	r, err := get(tx.db.requests, "request", id)
	if err != nil {
		return r, err
	}
	return outRequest(r), nil
}

func (tx memTx) ListRequests(_ context.Context, f RequestFilter) ([]model.DatasetRequest, error) {
	return outRequests(collect(tx.db.requests, func(r model.DatasetRequest) bool {
		if f.Category != "" && f.Category != model.AllCategories && r.Category != f.Category {
			return false
		}
		return f.Status == "" || r.Status == f.Status
	}, false)), nil
}

func (tx memTx) ListRequestsByBuyer(_ context.Context, buyerID string) ([]model.DatasetRequest, error) {
	return outRequests(collect(tx.db.requests, func(r model.DatasetRequest) bool {
		return r.BuyerID == buyerID
	}, false)), nil
}

func (tx memTx) SetRequestStatus(_ context.Context, id string, status model.RequestStatus) (model.DatasetRequest, error) {
	if !status.Valid() {
		return model.DatasetRequest{}, xerrors.Errorf("invalid request status %q", status)
	}
	now := tx.db.now()
	r, err := mutate(tx, tx.db.requests, "request", id, func(r *model.DatasetRequest) error {
		r.Status = status
		r.UpdatedAt = now
		return nil
	})
	return outRequest(r), err
}

func (tx memTx) SetAcceptedProposal(_ context.Context, id, proposalID string) (model.DatasetRequest, error) {
	now := tx.db.now()
	r, err := mutate(tx, tx.db.requests, "request", id, func(r *model.DatasetRequest) error {
		if r.AcceptedProposalID != "" && r.AcceptedProposalID != proposalID {
			return xerrors.Errorf("request %s already accepted proposal %s: %w", id, r.AcceptedProposalID, ErrConflict)
		}
		r.AcceptedProposalID = proposalID
		if r.Status == model.RequestOpen {
			r.Status = model.RequestInProgress
		}
		r.UpdatedAt = now
		return nil
	})
	return outRequest(r), err
}

// Proposals

func (tx memTx) CreateProposal(_ context.Context, p model.Proposal) (model.Proposal, error) {
	now := tx.db.now()
	p.ID = tx.db.proposals.freshID()
	p.Status = model.ProposalPending
	p.CreatedAt, p.UpdatedAt = now, now
	tx.db.proposals.put(tx.j, p.ID, row[model.Proposal]{seq: tx.next(), v: p})
	return p, nil
}

func (tx memTx) GetProposal(_ context.Context, id string) (model.Proposal, error) {
	return get(tx.db.proposals, "proposal", id)
}

func (tx memTx) ListProposalsByRequest(_ context.Context, requestID string) ([]model.Proposal, error) {
	return collect(tx.db.proposals, func(p model.Proposal) bool {
		return p.RequestID == requestID
	}, false), nil
}

func (tx memTx) ListProposalsBySeller(_ context.Context, sellerID string) ([]model.Proposal, error) {
	return collect(tx.db.proposals, func(p model.Proposal) bool {
		return p.SellerID == sellerID
	}, false), nil
}

func (tx memTx) SetProposalStatus(_ context.Context, id string, status model.ProposalStatus) (model.Proposal, error) {
	if !status.Valid() {
		return model.Proposal{}, xerrors.Errorf("invalid proposal status %q", status)
	}
	now := tx.db.now()
	return mutate(tx, tx.db.proposals, "proposal", id, func(p *model.Proposal) error {
		p.Status = status
		p.UpdatedAt = now
		return nil
	})
}

// Purchases

func (tx memTx) CreatePurchase(_ context.Context, p model.Purchase) (model.Purchase, error) {
	p.ID = tx.db.purchases.freshID()
	p.Status = model.PurchasePending
	p.PurchasedAt = tx.db.now()
	p.CompletedAt = nil
	tx.db.purchases.put(tx.j, p.ID, row[model.Purchase]{seq: tx.next(), v: p})
	return p, nil
}

func (tx memTx) GetPurchase(_ context.Context, id string) (model.Purchase, error) {
	return get(tx.db.purchases, "purchase", id)
}

func (tx memTx) FindPurchaseByRef(_ context.Context, buyerID, ref string) (model.Purchase, error) {
	found := collect(tx.db.purchases, func(p model.Purchase) bool {
		return p.BuyerID == buyerID && p.ExternalPaymentRef == ref
	}, false)
	if len(found) == 0 {
		return model.Purchase{}, xerrors.Errorf("purchase with ref %q: %w", ref, ErrNotFound)
	}
	return found[0], nil
}

func (tx memTx) ListPurchasesByBuyer(_ context.Context, buyerID string) ([]model.Purchase, error) {
	return collect(tx.db.purchases, func(p model.Purchase) bool {
		return p.BuyerID == buyerID
	}, false), nil
}

func (tx memTx) ListPurchasesByDataset(_ context.Context, datasetID string) ([]model.Purchase, error) {
	return collect(tx.db.purchases, func(p model.Purchase) bool {
		return p.DatasetID == datasetID
	}, false), nil
}

func (tx memTx) HasPurchased(_ context.Context, buyerID, datasetID string) (bool, error) {
	for _, r := range tx.db.purchases {
		p := r.v
		if p.BuyerID == buyerID && p.DatasetID == datasetID && p.Effective() {
			return true, nil
		}
	}
	return false, nil
}

func (tx memTx) SetPurchaseStatus(_ context.Context, id string, status model.PurchaseStatus) (model.Purchase, error) {
	if !status.Valid() {
		return model.Purchase{}, xerrors.Errorf("invalid purchase status %q", status)
	}
	now := tx.db.now()
	return mutate(tx, tx.db.purchases, "purchase", id, func(p *model.Purchase) error {
		p.Status = status
		if status == model.PurchaseCompleted {
			p.CompletedAt = &now
		}
		return nil
	})
}

// Messages

func (tx memTx) CreateMessage(_ context.Context, m model.Message) (model.Message, error) {
	m.ID = tx.db.messages.freshID()
	m.IsRead = false
	m.CreatedAt = tx.db.now()
	tx.db.messages.put(tx.j, m.ID, row[model.Message]{seq: tx.next(), v: m})
	return m, nil
}

func (tx memTx) GetMessage(_ context.Context, id string) (model.Message, error) {
	return get(tx.db.messages, "message", id)
}

func (tx memTx) MessagesBetween(_ context.Context, userA, userB string) ([]model.Message, error) {
	return collect(tx.db.messages, func(m model.Message) bool {
		return (m.SenderID == userA && m.ReceiverID == userB) ||
			(m.SenderID == userB && m.ReceiverID == userA)
	}, true), nil
}

func (tx memTx) Conversations(_ context.Context, userID string) ([]model.Message, error) {
	all := collect(tx.db.messages, func(m model.Message) bool {
		return m.SenderID == userID || m.ReceiverID == userID
	}, false)

	seen := make(map[string]bool)
	latest := []model.Message{}
	for _, m := range all {
		other := m.SenderID
		if other == userID {
			other = m.ReceiverID
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		latest = append(latest, m)
	}
	return latest, nil
}

func (tx memTx) MarkMessageRead(_ context.Context, id string) (model.Message, error) {
	return mutate(tx, tx.db.messages, "message", id, func(m *model.Message) error {
		m.IsRead = true
		return nil
	})
}
