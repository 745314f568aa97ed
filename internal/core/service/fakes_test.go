package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/google/uuid"
)

type memPayments struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]domain.Payment
	byOrder map[string]uuid.UUID
}

func newMemPayments() *memPayments {
	return &memPayments{byID: map[uuid.UUID]domain.Payment{}, byOrder: map[string]uuid.UUID{}}
}

func (r *memPayments) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[p.OrderID]; ok {
		return errors.New("duplicate order id")
	}
	r.byID[p.ID] = *p
	r.byOrder[p.OrderID] = p.ID
	return nil
}

func (r *memPayments) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *memPayments) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	r.mu.Lock()
	id, ok := r.byOrder[orderID]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memPayments) UpdateMetadata(_ context.Context, id uuid.UUID, meta domain.GatewayMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.Metadata = meta
	r.byID[id] = p
	return nil
}

func (r *memPayments) TransitionStatus(_ context.Context, orderID string, from, to domain.PaymentStatus, transID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return false, nil
	}
	p := r.byID[id]
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	if transID != nil {
		p.TransID = transID
	}
	r.byID[id] = p
	return true, nil
}

func (r *memPayments) CountPendingBefore(_ context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.byID {
		if p.Status == domain.PaymentPending && p.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func (r *memPayments) only() domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		return p
	}
	panic("no payments stored")
}

type memMemberships struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Membership
}

func newMemMemberships() *memMemberships {
	return &memMemberships{byID: map[uuid.UUID]domain.Membership{}}
}

func (r *memMemberships) Create(_ context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.PaymentID == m.PaymentID {
			return errors.New("duplicate payment id")
		}
	}
	r.byID[m.ID] = *m
	return nil
}

func (r *memMemberships) GetByID(_ context.Context, id uuid.UUID) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	return &m, nil
}

func (r *memMemberships) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byID {
		if m.PaymentID == paymentID {
			return &m, nil
		}
	}
	return nil, domain.ErrMembershipNotFound
}

func (r *memMemberships) ListByMember(_ context.Context, memberID uuid.UUID) ([]domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Membership
	for _, m := range r.byID {
		if m.MemberID == memberID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memMemberships) UpdateState(_ context.Context, id uuid.UUID, from, to domain.MembershipStatus, startDate *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	m.StartDate = startDate
	r.byID[id] = m
	return true, nil
}

func (r *memMemberships) AdjustUsedSessions(_ context.Context, id uuid.UUID, delta int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok || m.Status != domain.MembershipActive {
		return false, nil
	}
	used := m.UsedSessions + delta
	if used < 0 || used > m.AvailableSessions {
		return false, nil
	}
	m.UsedSessions = used
	r.byID[id] = m
	return true, nil
}

func (r *memMemberships) ExpireEnded(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.byID {
		if m.Status == domain.MembershipActive && m.EndDate.Before(now) {
			m.Status = domain.MembershipExpired
			r.byID[id] = m
			n++
		}
	}
	return n, nil
}

func (r *memMemberships) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *memMemberships) put(m domain.Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = m
}

type memPackages map[uuid.UUID]domain.Package

func (r memPackages) GetByID(_ context.Context, id uuid.UUID) (*domain.Package, error) {
	p, ok := r[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return &p, nil
}

type memPromotions []domain.Promotion

func (r memPromotions) FindActiveForPackage(_ context.Context, packageID uuid.UUID, t time.Time) (*domain.Promotion, error) {
	var best *domain.Promotion
	for i := range r {
		p := r[i]
		if p.AppliesTo(packageID, t) && (best == nil || p.DiscountPercent > best.DiscountPercent) {
			best = &p
		}
	}
	return best, nil
}

type fakeMembers struct {
	exists bool
	err    error
}

func (f fakeMembers) MemberExists(context.Context, uuid.UUID) (bool, error) {
	return f.exists, f.err
}

type fakeGateway struct {
	mu     sync.Mutex
	resp   *domain.ChargeResponse
	err    error
	orders []domain.ChargeOrder
}

func (g *fakeGateway) CreateCharge(_ context.Context, order domain.ChargeOrder) (*domain.ChargeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, order)
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

// inlineTx runs fn without a real transaction.
type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// noLock leaves ordering to the conditional status update alone.
type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *keyedLock) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.MembershipActivated
	err    error
}

func (n *recordingNotifier) NotifyMembershipActivated(_ context.Context, evt domain.MembershipActivated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
