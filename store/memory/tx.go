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

// lockTable hands out one capacity-1 channel per key. Sending into the
// channel acquires the lock, receiving releases it. Unrelated keys never
// contend, which gives the memory store the same isolation shape as
// row-level SELECT ... FOR UPDATE.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) channel(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[key] = ch
	}
	return ch
}

func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := t.channel(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return rentledger.ErrContention
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(key string) {
	<-t.channel(key)
}

// tx is the memory Tx. Writes are buffered and applied under the store mutex
// at commit; reads see committed state plus this transaction's own buffer.
// Locks are tracked so re-locking a key already held by this transaction is
// a no-op, and so everything releases in reverse order on completion.
type tx struct {
	s *Store

	held     []string
	heldSet  map[string]bool
	deadline time.Duration

	newCharges     []*charge.Charge
	newAllocations []*allocation.Allocation
}

var _ store.Tx = (*tx)(nil)

// InTx runs fn inside a single all-or-nothing transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return rentledger.ErrStoreClosed
	}

	t := &tx{
		s:        s,
		heldSet:  make(map[string]bool),
		deadline: s.lockTimeout,
	}
	defer t.releaseAll()

	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func (t *tx) lock(ctx context.Context, key string) error {
	if t.heldSet[key] {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.deadline); err != nil {
		return err
	}
	t.held = append(t.held, key)
	t.heldSet[key] = true
	return nil
}

func (t *tx) releaseAll() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
	t.heldSet = nil
}

func (t *tx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.s.closed {
		return rentledger.ErrStoreClosed
	}

	// Unique key backstop re-checked at commit.
	for _, c := range t.newCharges {
		key := chargeKey(c.OrgID, c.LeaseID, c.Kind, c.DueDate)
		if _, exists := t.s.chargeKeys[key]; exists {
			return rentledger.ErrAlreadyExists
		}
		if _, exists := t.s.charges[c.ID.String()]; exists {
			return rentledger.ErrAlreadyExists
		}
	}

	for _, c := range t.newCharges {
		cp := *c
		t.s.charges[c.ID.String()] = &cp
		t.s.chargeKeys[chargeKey(c.OrgID, c.LeaseID, c.Kind, c.DueDate)] = c.ID.String()
	}
	for _, a := range t.newAllocations {
		cp := *a
		t.s.allocations = append(t.s.allocations, &cp)
	}
	return nil
}

func paymentLockKey(paymentID id.PaymentID) string { return "payment:" + paymentID.String() }

// leaseLockKey covers the lease row and its charge set together. Allocation
// validates charge balances lease-wide, so a finer grain would let two
// transactions each pass validation against state the other is changing.
func leaseLockKey(leaseID id.LeaseID) string { return "lease:" + leaseID.String() }

func (t *tx) LockPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	if err := t.lock(ctx, paymentLockKey(paymentID)); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if p, ok := t.s.payments[paymentID.String()]; ok && p.OrgID == orgID {
		cp := *p
		return &cp, nil
	}
	return nil, rentledger.ErrPaymentNotFound
}

func (t *tx) LockLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	if err := t.lock(ctx, leaseLockKey(leaseID)); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if l, ok := t.s.leases[leaseID.String()]; ok && l.OrgID == orgID {
		cp := *l
		return &cp, nil
	}
	return nil, rentledger.ErrLeaseNotFound
}

func (t *tx) LockLeaseCharges(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*charge.Charge, error) {
	if err := t.lock(ctx, leaseLockKey(leaseID)); err != nil {
		return nil, err
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	result := make([]*charge.Charge, 0)
	for _, c := range t.s.charges {
		if c.OrgID == orgID && c.LeaseID == leaseID {
			cp := *c
			result = append(result, &cp)
		}
	}
	for _, c := range t.newCharges {
		if c.OrgID == orgID && c.LeaseID == leaseID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sortChargesFIFO(result)
	return result, nil
}

func (t *tx) LockCharges(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]*charge.Charge, error) {
	// Lock at lease granularity. Lease keys are sorted so two transactions
	// touching overlapping lease sets acquire in the same order.
	t.s.mu.RLock()
	leaseKeys := make([]string, 0)
	seen := make(map[string]bool)
	for _, cid := range chargeIDs {
		c, ok := t.s.charges[cid.String()]
		if !ok || c.OrgID != orgID {
			continue
		}
		key := leaseLockKey(c.LeaseID)
		if !seen[key] {
			seen[key] = true
			leaseKeys = append(leaseKeys, key)
		}
	}
	t.s.mu.RUnlock()
	sort.Strings(leaseKeys)

	for _, key := range leaseKeys {
		if err := t.lock(ctx, key); err != nil {
			return nil, err
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	result := make(map[string]*charge.Charge, len(chargeIDs))
	for _, cid := range chargeIDs {
		if c, ok := t.s.charges[cid.String()]; ok && c.OrgID == orgID {
			cp := *c
			result[cid.String()] = &cp
		}
	}
	return result, nil
}

func (t *tx) AllocatedForPayment(_ context.Context, orgID id.OrgID, paymentID id.PaymentID) (int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var sum int64
	for _, a := range t.s.allocations {
		if a.OrgID == orgID && a.PaymentID == paymentID {
			sum += a.Amount.Amount
		}
	}
	for _, a := range t.newAllocations {
		if a.OrgID == orgID && a.PaymentID == paymentID {
			sum += a.Amount.Amount
		}
	}
	return sum, nil
}

func (t *tx) AllocatedForCharge(_ context.Context, orgID id.OrgID, chargeID id.ChargeID) (int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var sum int64
	for _, a := range t.s.allocations {
		if a.OrgID == orgID && a.ChargeID == chargeID {
			sum += a.Amount.Amount
		}
	}
	for _, a := range t.newAllocations {
		if a.OrgID == orgID && a.ChargeID == chargeID {
			sum += a.Amount.Amount
		}
	}
	return sum, nil
}

func (t *tx) FindChargeByKey(_ context.Context, orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, dueDate types.Date) (*charge.Charge, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	key := chargeKey(orgID, leaseID, kind, dueDate)
	if cid, ok := t.s.chargeKeys[key]; ok {
		if c, found := t.s.charges[cid]; found {
			cp := *c
			return &cp, nil
		}
	}
	for _, c := range t.newCharges {
		if c.OrgID == orgID && c.LeaseID == leaseID && c.Kind == kind && c.DueDate == dueDate {
			cp := *c
			return &cp, nil
		}
	}
	return nil, rentledger.ErrChargeNotFound
}

func (t *tx) CreateAllocation(_ context.Context, a *allocation.Allocation) error {
	cp := *a
	t.newAllocations = append(t.newAllocations, &cp)
	return nil
}

func (t *tx) CreateCharge(_ context.Context, c *charge.Charge) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	key := chargeKey(c.OrgID, c.LeaseID, c.Kind, c.DueDate)
	if _, exists := t.s.chargeKeys[key]; exists {
		return rentledger.ErrAlreadyExists
	}
	for _, buffered := range t.newCharges {
		if chargeKey(buffered.OrgID, buffered.LeaseID, buffered.Kind, buffered.DueDate) == key {
			return rentledger.ErrAlreadyExists
		}
	}

	cp := *c
	t.newCharges = append(t.newCharges, &cp)
	return nil
}
