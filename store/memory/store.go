// Package memory provides an in-memory Store for tests and demos. It honors
// the full transactional contract: per-payment and per-lease exclusive locks,
// buffered writes applied atomically at commit, and the unique charge key
// backstop.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/types"
)

// DefaultLockTimeout bounds how long a transaction waits for a contended
// payment or lease lock before failing with ErrContention.
const DefaultLockTimeout = 2 * time.Second

// Option configures the memory store.
type Option func(*Store)

// WithLockTimeout overrides the lock-wait timeout. Tests use a short value
// to observe contention quickly.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Fact storage
	charges     map[string]*charge.Charge
	payments    map[string]*payment.Payment
	allocations []*allocation.Allocation

	// Idempotency backstop: (org, lease, kind, due date) -> charge id
	chargeKeys map[string]string

	// Lease directory
	leases map[string]*lease.Lease

	locks       *lockTable
	lockTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		charges:     make(map[string]*charge.Charge),
		payments:    make(map[string]*payment.Payment),
		allocations: make([]*allocation.Allocation, 0),
		chargeKeys:  make(map[string]string),
		leases:      make(map[string]*lease.Lease),
		locks:       newLockTable(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func chargeKey(orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, due types.Date) string {
	return orgID.String() + "|" + leaseID.String() + "|" + string(kind) + "|" + due.String()
}

// sortChargesFIFO orders charges by due date, then created at, then id, all
// ascending. This is the allocation order and the statement display order.
func sortChargesFIFO(charges []*charge.Charge) {
	sort.SliceStable(charges, func(i, j int) bool {
		a, b := charges[i], charges[j]
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func sortPayments(payments []*payment.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if c := a.PaidAt.Compare(b.PaidAt); c != 0 {
			return c < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// Charge methods

func (s *Store) CreateCharge(_ context.Context, c *charge.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return rentledger.ErrStoreClosed
	}
	if _, exists := s.charges[c.ID.String()]; exists {
		return rentledger.ErrAlreadyExists
	}
	key := chargeKey(c.OrgID, c.LeaseID, c.Kind, c.DueDate)
	if _, exists := s.chargeKeys[key]; exists {
		return rentledger.ErrAlreadyExists
	}

	cp := *c
	s.charges[c.ID.String()] = &cp
	s.chargeKeys[key] = c.ID.String()
	return nil
}

func (s *Store) GetCharge(_ context.Context, orgID id.OrgID, chargeID id.ChargeID) (*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.charges[chargeID.String()]; ok && c.OrgID == orgID {
		cp := *c
		return &cp, nil
	}
	return nil, rentledger.ErrChargeNotFound
}

func (s *Store) ListCharges(_ context.Context, orgID id.OrgID, opts charge.ListOpts) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*charge.Charge, 0)
	for _, c := range s.charges {
		if c.OrgID != orgID {
			continue
		}
		if !opts.LeaseID.IsNil() && c.LeaseID != opts.LeaseID {
			continue
		}
		if opts.Kind != "" && c.Kind != opts.Kind {
			continue
		}
		if !opts.DueFrom.IsZero() && c.DueDate.Before(opts.DueFrom) {
			continue
		}
		if !opts.DueTo.IsZero() && c.DueDate.After(opts.DueTo) {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sortChargesFIFO(result)
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListChargesDueBy(ctx context.Context, orgID id.OrgID, asOf types.Date) ([]*charge.Charge, error) {
	return s.ListCharges(ctx, orgID, charge.ListOpts{DueTo: asOf})
}

func (s *Store) ListChargesDueBetween(ctx context.Context, orgID id.OrgID, kind charge.Kind, from, to types.Date) ([]*charge.Charge, error) {
	return s.ListCharges(ctx, orgID, charge.ListOpts{Kind: kind, DueFrom: from, DueTo: to})
}

// Payment methods

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return rentledger.ErrStoreClosed
	}
	if _, exists := s.payments[p.ID.String()]; exists {
		return rentledger.ErrAlreadyExists
	}

	cp := *p
	s.payments[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPayment(_ context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok && p.OrgID == orgID {
		cp := *p
		return &cp, nil
	}
	return nil, rentledger.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, orgID id.OrgID, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.OrgID != orgID {
			continue
		}
		if !opts.LeaseID.IsNil() && p.LeaseID != opts.LeaseID {
			continue
		}
		if opts.Method != "" && p.Method != opts.Method {
			continue
		}
		if !opts.PaidFrom.IsZero() && p.PaidAt.Before(opts.PaidFrom) {
			continue
		}
		if !opts.PaidTo.IsZero() && p.PaidAt.After(opts.PaidTo) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sortPayments(result)
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Allocation aggregates

func (s *Store) SumAllocationsByCharge(_ context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(chargeIDs))
	for _, cid := range chargeIDs {
		want[cid.String()] = true
	}

	sums := make(map[string]int64, len(chargeIDs))
	for _, a := range s.allocations {
		if a.OrgID != orgID {
			continue
		}
		if want[a.ChargeID.String()] {
			sums[a.ChargeID.String()] += a.Amount.Amount
		}
	}
	return sums, nil
}

func (s *Store) SumAllocationsByPayment(_ context.Context, orgID id.OrgID, paymentIDs []id.PaymentID) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(paymentIDs))
	for _, pid := range paymentIDs {
		want[pid.String()] = true
	}

	sums := make(map[string]int64, len(paymentIDs))
	for _, a := range s.allocations {
		if a.OrgID != orgID {
			continue
		}
		if want[a.PaymentID.String()] {
			sums[a.PaymentID.String()] += a.Amount.Amount
		}
	}
	return sums, nil
}

func (s *Store) SumPayments(_ context.Context, orgID id.OrgID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, p := range s.payments {
		if p.OrgID == orgID {
			sum += p.Amount.Amount
		}
	}
	return sum, nil
}

func (s *Store) SumAllocations(_ context.Context, orgID id.OrgID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, a := range s.allocations {
		if a.OrgID == orgID {
			sum += a.Amount.Amount
		}
	}
	return sum, nil
}

func (s *Store) ListAllocations(_ context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leaseCharges := make(map[string]bool)
	for _, c := range s.charges {
		if c.OrgID == orgID && c.LeaseID == leaseID {
			leaseCharges[c.ID.String()] = true
		}
	}

	result := make([]*allocation.Allocation, 0)
	for _, a := range s.allocations {
		if a.OrgID == orgID && leaseCharges[a.ChargeID.String()] {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// Lease directory methods

func (s *Store) CreateLease(_ context.Context, l *lease.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return rentledger.ErrStoreClosed
	}
	if _, exists := s.leases[l.ID.String()]; exists {
		return rentledger.ErrAlreadyExists
	}

	cp := *l
	s.leases[l.ID.String()] = &cp
	return nil
}

func (s *Store) GetLease(_ context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.leases[leaseID.String()]; ok && l.OrgID == orgID {
		cp := *l
		return &cp, nil
	}
	return nil, rentledger.ErrLeaseNotFound
}

func (s *Store) ListLeases(_ context.Context, orgID id.OrgID, opts lease.ListOpts) ([]*lease.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*lease.Lease, 0)
	for _, l := range s.leases {
		if l.OrgID != orgID {
			continue
		}
		if opts.Status != "" && l.Status != opts.Status {
			continue
		}
		if !opts.UnitID.IsNil() && l.UnitID != opts.UnitID {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateLease(_ context.Context, l *lease.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[l.ID.String()]
	if !ok || existing.OrgID != l.OrgID {
		return rentledger.ErrLeaseNotFound
	}

	cp := *l
	cp.Touch()
	s.leases[l.ID.String()] = &cp
	return nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return rentledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
