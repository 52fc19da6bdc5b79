package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/types"
)

func newCharge(orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, amount int64, due types.Date) *charge.Charge {
	return &charge.Charge{
		ID:        id.NewChargeID(),
		OrgID:     orgID,
		LeaseID:   leaseID,
		Kind:      kind,
		Amount:    types.USD(amount),
		DueDate:   due,
		CreatedAt: time.Now().UTC(),
	}
}

func newPayment(orgID id.OrgID, leaseID id.LeaseID, amount int64, paidAt time.Time) *payment.Payment {
	return &payment.Payment{
		ID:        id.NewPaymentID(),
		OrgID:     orgID,
		LeaseID:   leaseID,
		Amount:    types.USD(amount),
		PaidAt:    paidAt,
		Method:    payment.MethodTransfer,
		CreatedAt: time.Now().UTC(),
	}
}

func TestChargeCRUD(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	c := newCharge(orgID, leaseID, charge.KindRent, 120000, types.NewDate(2026, time.March, 1))
	if err := s.CreateCharge(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetCharge(ctx, orgID, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != c.ID || !got.Amount.Equal(c.Amount) {
		t.Errorf("got %+v, want %+v", got, c)
	}

	// Same id again is rejected.
	if err := s.CreateCharge(ctx, c); !errors.Is(err, rentledger.ErrAlreadyExists) {
		t.Errorf("duplicate id err = %v, want ErrAlreadyExists", err)
	}

	// Same (org, lease, kind, due date) with a fresh id is rejected too.
	dup := newCharge(orgID, leaseID, charge.KindRent, 95000, types.NewDate(2026, time.March, 1))
	if err := s.CreateCharge(ctx, dup); !errors.Is(err, rentledger.ErrAlreadyExists) {
		t.Errorf("duplicate key err = %v, want ErrAlreadyExists", err)
	}

	// Wrong org sees nothing.
	if _, err := s.GetCharge(ctx, id.NewOrgID(), c.ID); !errors.Is(err, rentledger.ErrChargeNotFound) {
		t.Errorf("cross-org get err = %v, want ErrChargeNotFound", err)
	}
}

func TestListChargesFIFOOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	// Insert out of order; the listing must come back due-date ascending.
	feb := newCharge(orgID, leaseID, charge.KindRent, 100, types.NewDate(2026, time.February, 1))
	jan := newCharge(orgID, leaseID, charge.KindRent, 100, types.NewDate(2026, time.January, 1))
	mar := newCharge(orgID, leaseID, charge.KindRent, 100, types.NewDate(2026, time.March, 1))
	for _, c := range []*charge.Charge{feb, jan, mar} {
		if err := s.CreateCharge(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.ListCharges(ctx, orgID, charge.ListOpts{LeaseID: leaseID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []id.ChargeID{jan.ID, feb.ID, mar.ID}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestListChargesFilters(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	rent := newCharge(orgID, leaseID, charge.KindRent, 100, types.NewDate(2026, time.January, 1))
	fee := newCharge(orgID, leaseID, charge.KindLateFee, 100, types.NewDate(2026, time.February, 10))
	for _, c := range []*charge.Charge{rent, fee} {
		if err := s.CreateCharge(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	byKind, err := s.ListCharges(ctx, orgID, charge.ListOpts{Kind: charge.KindLateFee})
	if err != nil {
		t.Fatalf("list by kind: %v", err)
	}
	if len(byKind) != 1 || byKind[0].ID != fee.ID {
		t.Errorf("kind filter returned %d rows", len(byKind))
	}

	dueBy, err := s.ListChargesDueBy(ctx, orgID, types.NewDate(2026, time.January, 31))
	if err != nil {
		t.Fatalf("due by: %v", err)
	}
	if len(dueBy) != 1 || dueBy[0].ID != rent.ID {
		t.Errorf("due-by filter returned %d rows", len(dueBy))
	}

	between, err := s.ListChargesDueBetween(ctx, orgID, charge.KindRent,
		types.NewDate(2026, time.January, 1), types.NewDate(2026, time.December, 31))
	if err != nil {
		t.Fatalf("due between: %v", err)
	}
	if len(between) != 1 || between[0].ID != rent.ID {
		t.Errorf("due-between filter returned %d rows", len(between))
	}
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	for day := 1; day <= 5; day++ {
		c := newCharge(orgID, leaseID, charge.KindMisc, 100, types.NewDate(2026, time.March, day))
		if err := s.CreateCharge(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := s.ListCharges(ctx, orgID, charge.ListOpts{LeaseID: leaseID, Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page len = %d, want 2", len(page))
	}
	if page[0].DueDate != types.NewDate(2026, time.March, 4) {
		t.Errorf("page starts at %s, want 2026-03-04", page[0].DueDate)
	}

	past, err := s.ListCharges(ctx, orgID, charge.ListOpts{LeaseID: leaseID, Limit: 10, Offset: 10})
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(past) != 0 {
		t.Errorf("past-end page len = %d, want 0", len(past))
	}
}

func TestListPaymentsReceiptOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	// Same calendar day, different receipt times, inserted out of order.
	noon := newPayment(orgID, leaseID, 200, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	morning := newPayment(orgID, leaseID, 100, time.Date(2026, time.March, 1, 8, 30, 0, 0, time.UTC))
	evening := newPayment(orgID, leaseID, 300, time.Date(2026, time.March, 1, 19, 45, 0, 0, time.UTC))

	for _, p := range []*payment.Payment{noon, evening, morning} {
		if err := s.CreatePayment(ctx, p); err != nil {
			t.Fatalf("create payment: %v", err)
		}
	}

	got, err := s.ListPayments(ctx, orgID, payment.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("payments = %d, want 3", len(got))
	}
	want := []id.PaymentID{morning.ID, noon.ID, evening.ID}
	for i, p := range got {
		if p.ID != want[i] {
			t.Errorf("payment[%d] = %s, want %s", i, p.ID, want[i])
		}
	}

	afternoon, err := s.ListPayments(ctx, orgID, payment.ListOpts{
		PaidFrom: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("list from noon: %v", err)
	}
	if len(afternoon) != 2 {
		t.Errorf("payments from noon = %d, want 2", len(afternoon))
	}
}

func TestAllocationAggregates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	c := newCharge(orgID, leaseID, charge.KindRent, 100000, types.NewDate(2026, time.March, 1))
	p := newPayment(orgID, leaseID, 80000, time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC))
	if err := s.CreateCharge(ctx, c); err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateAllocation(ctx, &allocation.Allocation{
			ID:        id.NewAllocationID(),
			OrgID:     orgID,
			PaymentID: p.ID,
			ChargeID:  c.ID,
			Amount:    types.USD(80000),
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	byCharge, err := s.SumAllocationsByCharge(ctx, orgID, []id.ChargeID{c.ID})
	if err != nil {
		t.Fatalf("sum by charge: %v", err)
	}
	if byCharge[c.ID.String()] != 80000 {
		t.Errorf("charge sum = %d, want 80000", byCharge[c.ID.String()])
	}

	byPayment, err := s.SumAllocationsByPayment(ctx, orgID, []id.PaymentID{p.ID})
	if err != nil {
		t.Fatalf("sum by payment: %v", err)
	}
	if byPayment[p.ID.String()] != 80000 {
		t.Errorf("payment sum = %d, want 80000", byPayment[p.ID.String()])
	}

	totalPayments, err := s.SumPayments(ctx, orgID)
	if err != nil {
		t.Fatalf("sum payments: %v", err)
	}
	if totalPayments != 80000 {
		t.Errorf("org payments = %d, want 80000", totalPayments)
	}

	allocs, err := s.ListAllocations(ctx, orgID, leaseID)
	if err != nil {
		t.Fatalf("list allocations: %v", err)
	}
	if len(allocs) != 1 {
		t.Errorf("allocations = %d, want 1", len(allocs))
	}
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateCharge(ctx, newCharge(orgID, leaseID, charge.KindRent, 100, types.NewDate(2026, time.March, 1))); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	charges, err := s.ListCharges(ctx, orgID, charge.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(charges) != 0 {
		t.Errorf("charges = %d after rollback, want 0", len(charges))
	}
}

func TestInTxChargeKeyConflict(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()
	due := types.NewDate(2026, time.March, 1)

	if err := s.CreateCharge(ctx, newCharge(orgID, leaseID, charge.KindRent, 100, due)); err != nil {
		t.Fatalf("seed charge: %v", err)
	}

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateCharge(ctx, newCharge(orgID, leaseID, charge.KindRent, 200, due))
	})
	if !errors.Is(err, rentledger.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestLockContention(t *testing.T) {
	ctx := context.Background()
	s := memory.New(memory.WithLockTimeout(50 * time.Millisecond))
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	p := newPayment(orgID, leaseID, 100, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.InTx(ctx, func(tx store.Tx) error {
			if _, err := tx.LockPayment(ctx, orgID, p.ID); err != nil {
				return err
			}
			close(holding)
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}()

	<-holding
	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockPayment(ctx, orgID, p.ID)
		return err
	})
	if !errors.Is(err, rentledger.ErrContention) {
		t.Errorf("err = %v, want ErrContention", err)
	}
	<-done
}

func TestLockReentrancy(t *testing.T) {
	ctx := context.Background()
	s := memory.New(memory.WithLockTimeout(50 * time.Millisecond))
	orgID := id.NewOrgID()

	ls := &lease.Lease{
		ID:         id.NewLeaseID(),
		OrgID:      orgID,
		StartDate:  types.NewDate(2026, time.January, 1),
		RentAmount: types.USD(120000),
		RentDueDay: 1,
		Status:     lease.StatusActive,
	}
	if err := s.CreateLease(ctx, ls); err != nil {
		t.Fatalf("create lease: %v", err)
	}

	// Locking the same lease twice inside one transaction must not deadlock.
	err := s.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockLease(ctx, orgID, ls.ID); err != nil {
			return err
		}
		_, err := tx.LockLeaseCharges(ctx, orgID, ls.ID)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	orgID, leaseID := id.NewOrgID(), id.NewLeaseID()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := s.Ping(ctx); !errors.Is(err, rentledger.ErrStoreClosed) {
		t.Errorf("ping err = %v, want ErrStoreClosed", err)
	}
	err := s.CreateCharge(ctx, newCharge(orgID, leaseID, charge.KindRent, 100, types.NewDate(2026, time.March, 1)))
	if !errors.Is(err, rentledger.ErrStoreClosed) {
		t.Errorf("create err = %v, want ErrStoreClosed", err)
	}
	err = s.InTx(ctx, func(store.Tx) error { return nil })
	if !errors.Is(err, rentledger.ErrStoreClosed) {
		t.Errorf("tx err = %v, want ErrStoreClosed", err)
	}
}
