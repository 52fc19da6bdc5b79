package rentledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/types"
)

func newTestLedger(t *testing.T) (*rentledger.Ledger, id.OrgID) {
	t.Helper()

	l := rentledger.New(memory.New())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	return l, id.NewOrgID()
}

func mustCreateLease(t *testing.T, l *rentledger.Ledger, orgID id.OrgID, rent types.Money, dueDay int, start types.Date) *lease.Lease {
	t.Helper()

	ls := &lease.Lease{
		OrgID:      orgID,
		StartDate:  start,
		RentAmount: rent,
		RentDueDay: dueDay,
		Status:     lease.StatusActive,
	}
	if err := l.CreateLease(context.Background(), ls); err != nil {
		t.Fatalf("create lease: %v", err)
	}
	return ls
}

func mustCreateCharge(t *testing.T, l *rentledger.Ledger, orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, amount types.Money, due types.Date) *charge.Charge {
	t.Helper()

	c := &charge.Charge{
		OrgID:   orgID,
		LeaseID: leaseID,
		Kind:    kind,
		Amount:  amount,
		DueDate: due,
	}
	if err := l.CreateCharge(context.Background(), c); err != nil {
		t.Fatalf("create charge: %v", err)
	}
	return c
}

func mustRecordPayment(t *testing.T, l *rentledger.Ledger, orgID id.OrgID, leaseID id.LeaseID, amount types.Money) *payment.Payment {
	t.Helper()

	p := &payment.Payment{
		OrgID:   orgID,
		LeaseID: leaseID,
		Amount:  amount,
		Method:  payment.MethodTransfer,
	}
	if err := l.RecordPayment(context.Background(), p); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	return p
}

func TestCreateCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		c := mustCreateCharge(t, l, orgID, ls.ID, charge.KindLateFee, types.USD(7500), types.NewDate(2026, time.March, 10))

		if c.ID.IsNil() {
			t.Error("expected charge id to be assigned")
		}
		got, err := l.GetCharge(ctx, orgID, c.ID)
		if err != nil {
			t.Fatalf("get charge: %v", err)
		}
		if !got.Amount.Equal(types.USD(7500)) {
			t.Errorf("amount = %s, want $75.00", got.Amount)
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		err := l.CreateCharge(ctx, &charge.Charge{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Kind:    "penalty",
			Amount:  types.USD(100),
			DueDate: types.NewDate(2026, time.March, 1),
		})
		if !errors.Is(err, rentledger.ErrUnknownKind) {
			t.Errorf("err = %v, want ErrUnknownKind", err)
		}
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		err := l.CreateCharge(ctx, &charge.Charge{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Kind:    charge.KindMisc,
			Amount:  types.USD(0),
			DueDate: types.NewDate(2026, time.March, 1),
		})
		if !errors.Is(err, rentledger.ErrNonPositiveAmount) {
			t.Errorf("err = %v, want ErrNonPositiveAmount", err)
		}
	})

	t.Run("UnknownLease", func(t *testing.T) {
		l, orgID := newTestLedger(t)

		err := l.CreateCharge(ctx, &charge.Charge{
			OrgID:   orgID,
			LeaseID: id.NewLeaseID(),
			Kind:    charge.KindMisc,
			Amount:  types.USD(100),
			DueDate: types.NewDate(2026, time.March, 1),
		})
		if !rentledger.IsNotFound(err) {
			t.Errorf("err = %v, want a not-found error", err)
		}
	})
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		p := &payment.Payment{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Amount:  types.USD(50000),
		}
		if err := l.RecordPayment(ctx, p); err != nil {
			t.Fatalf("record payment: %v", err)
		}

		if p.Method != payment.MethodOther {
			t.Errorf("method = %q, want %q", p.Method, payment.MethodOther)
		}
		if p.PaidAt.IsZero() {
			t.Error("expected paid-at to default to the receipt time")
		}
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		err := l.RecordPayment(ctx, &payment.Payment{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Amount:  types.USD(50000),
			Method:  "crypto",
		})
		if !errors.Is(err, rentledger.ErrUnknownMethod) {
			t.Errorf("err = %v, want ErrUnknownMethod", err)
		}
	})
}

func TestAllocateAuto(t *testing.T) {
	ctx := context.Background()

	t.Run("FIFOAcrossCharges", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		jan := mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(120000), types.NewDate(2026, time.January, 1))
		feb := mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(120000), types.NewDate(2026, time.February, 1))

		result, err := l.RecordPaymentAndAllocate(ctx, &payment.Payment{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Amount:  types.USD(150000),
			Method:  payment.MethodTransfer,
		}, rentledger.AllocateFIFO, nil)
		if err != nil {
			t.Fatalf("record and allocate: %v", err)
		}

		if len(result.Allocations) != 2 {
			t.Fatalf("allocations = %d, want 2", len(result.Allocations))
		}
		if result.Allocations[0].ChargeID != jan.ID || !result.Allocations[0].Amount.Equal(types.USD(120000)) {
			t.Errorf("first allocation = %s %s, want full $1200.00 to january", result.Allocations[0].ChargeID, result.Allocations[0].Amount)
		}
		if result.Allocations[1].ChargeID != feb.ID || !result.Allocations[1].Amount.Equal(types.USD(30000)) {
			t.Errorf("second allocation = %s %s, want $300.00 to february", result.Allocations[1].ChargeID, result.Allocations[1].Amount)
		}
		if !result.Applied.Equal(types.USD(150000)) {
			t.Errorf("applied = %s, want $1500.00", result.Applied)
		}
		if !result.Remaining.IsZero() {
			t.Errorf("remaining = %s, want zero", result.Remaining)
		}
	})

	t.Run("SkipsSettledCharges", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(100000), types.NewDate(2026, time.January, 1))
		feb := mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(100000), types.NewDate(2026, time.February, 1))

		p1 := mustRecordPayment(t, l, orgID, ls.ID, types.USD(100000))
		if _, err := l.AllocateAuto(ctx, orgID, p1.ID); err != nil {
			t.Fatalf("first allocation: %v", err)
		}

		p2 := mustRecordPayment(t, l, orgID, ls.ID, types.USD(40000))
		result, err := l.AllocateAuto(ctx, orgID, p2.ID)
		if err != nil {
			t.Fatalf("second allocation: %v", err)
		}

		if len(result.Allocations) != 1 {
			t.Fatalf("allocations = %d, want 1", len(result.Allocations))
		}
		if result.Allocations[0].ChargeID != feb.ID {
			t.Errorf("allocated to %s, want february charge (january is settled)", result.Allocations[0].ChargeID)
		}
	})

	t.Run("RerunIsNoop", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(120000), types.NewDate(2026, time.January, 1))

		p := mustRecordPayment(t, l, orgID, ls.ID, types.USD(120000))
		if _, err := l.AllocateAuto(ctx, orgID, p.ID); err != nil {
			t.Fatalf("first run: %v", err)
		}

		result, err := l.AllocateAuto(ctx, orgID, p.ID)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if len(result.Allocations) != 0 {
			t.Errorf("allocations = %d, want 0 on rerun", len(result.Allocations))
		}
		if !result.Applied.IsZero() {
			t.Errorf("applied = %s, want zero on rerun", result.Applied)
		}
	})

	t.Run("NoOpenCharges", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		p := mustRecordPayment(t, l, orgID, ls.ID, types.USD(50000))
		result, err := l.AllocateAuto(ctx, orgID, p.ID)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if len(result.Allocations) != 0 {
			t.Errorf("allocations = %d, want 0", len(result.Allocations))
		}
		if !result.Remaining.Equal(types.USD(50000)) {
			t.Errorf("remaining = %s, want full payment as credit", result.Remaining)
		}
	})

	t.Run("UnknownPayment", func(t *testing.T) {
		l, orgID := newTestLedger(t)

		_, err := l.AllocateAuto(ctx, orgID, id.NewPaymentID())
		if !errors.Is(err, rentledger.ErrPaymentNotFound) {
			t.Errorf("err = %v, want ErrPaymentNotFound", err)
		}
	})

	t.Run("ConcurrentRunsNeverOverApply", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		c := mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(60000), types.NewDate(2026, time.January, 1))

		p := mustRecordPayment(t, l, orgID, ls.ID, types.USD(100000))

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = l.AllocateAuto(ctx, orgID, p.ID)
			}()
		}
		wg.Wait()

		stmt, err := l.LeaseStatement(ctx, orgID, ls.ID)
		if err != nil {
			t.Fatalf("statement: %v", err)
		}
		if !stmt.Charges[0].Allocated.Equal(types.USD(60000)) {
			t.Errorf("charge %s allocated = %s, want exactly $600.00", c.ID, stmt.Charges[0].Allocated)
		}
	})
}

func TestAllocateManual(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*rentledger.Ledger, id.OrgID, *lease.Lease, *charge.Charge, *payment.Payment) {
		t.Helper()
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		c := mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(120000), types.NewDate(2026, time.March, 1))
		p := mustRecordPayment(t, l, orgID, ls.ID, types.USD(100000))
		return l, orgID, ls, c, p
	}

	t.Run("AppliesRequestedSplit", func(t *testing.T) {
		l, orgID, ls, c, p := setup(t)
		fee := mustCreateCharge(t, l, orgID, ls.ID, charge.KindLateFee, types.USD(5000), types.NewDate(2026, time.March, 10))

		result, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: c.ID, Amount: types.USD(90000)},
			{ChargeID: fee.ID, Amount: types.USD(5000)},
		})
		if err != nil {
			t.Fatalf("allocate manual: %v", err)
		}

		if len(result.Allocations) != 2 {
			t.Fatalf("allocations = %d, want 2", len(result.Allocations))
		}
		if !result.Applied.Equal(types.USD(95000)) {
			t.Errorf("applied = %s, want $950.00", result.Applied)
		}
		if !result.Remaining.Equal(types.USD(5000)) {
			t.Errorf("remaining = %s, want $50.00", result.Remaining)
		}
	})

	t.Run("EmptyRequest", func(t *testing.T) {
		l, orgID, _, _, p := setup(t)

		_, err := l.AllocateManual(ctx, orgID, p.ID, nil)
		if !errors.Is(err, rentledger.ErrEmptyAllocationRequest) {
			t.Errorf("err = %v, want ErrEmptyAllocationRequest", err)
		}
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		l, orgID, _, c, p := setup(t)

		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: c.ID, Amount: types.USD(0)},
		})
		if !errors.Is(err, rentledger.ErrNonPositiveAmount) {
			t.Errorf("err = %v, want ErrNonPositiveAmount", err)
		}
	})

	t.Run("CurrencyMismatch", func(t *testing.T) {
		l, orgID, _, c, p := setup(t)

		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: c.ID, Amount: types.EUR(1000)},
		})
		if !errors.Is(err, rentledger.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("InsufficientPaymentBalance", func(t *testing.T) {
		l, orgID, _, c, p := setup(t)

		// Payment is $1000.00; requesting $1100.00 across the batch.
		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: c.ID, Amount: types.USD(110000)},
		})
		if !errors.Is(err, rentledger.ErrInsufficientPaymentBalance) {
			t.Errorf("err = %v, want ErrInsufficientPaymentBalance", err)
		}
	})

	t.Run("UnknownCharge", func(t *testing.T) {
		l, orgID, _, _, p := setup(t)

		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: id.NewChargeID(), Amount: types.USD(1000)},
		})
		if !errors.Is(err, rentledger.ErrChargeNotFound) {
			t.Errorf("err = %v, want ErrChargeNotFound", err)
		}
	})

	t.Run("BoundaryMismatch", func(t *testing.T) {
		l, orgID, _, _, p := setup(t)

		other := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		otherCharge := mustCreateCharge(t, l, orgID, other.ID, charge.KindRent, types.USD(120000), types.NewDate(2026, time.March, 1))

		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: otherCharge.ID, Amount: types.USD(1000)},
		})
		if !errors.Is(err, rentledger.ErrBoundaryMismatch) {
			t.Errorf("err = %v, want ErrBoundaryMismatch", err)
		}
	})

	t.Run("ChargeOverAllocation", func(t *testing.T) {
		l, orgID, ls, _, p := setup(t)
		small := mustCreateCharge(t, l, orgID, ls.ID, charge.KindMisc, types.USD(2000), types.NewDate(2026, time.March, 5))

		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: small.ID, Amount: types.USD(3000)},
		})
		if !errors.Is(err, rentledger.ErrChargeOverAllocation) {
			t.Errorf("err = %v, want ErrChargeOverAllocation", err)
		}
	})

	t.Run("DuplicateChargeAccumulates", func(t *testing.T) {
		l, orgID, ls, _, p := setup(t)
		small := mustCreateCharge(t, l, orgID, ls.ID, charge.KindMisc, types.USD(2000), types.NewDate(2026, time.March, 5))

		// Two requests against the same $20.00 charge totalling $30.00. The
		// second must see the first as already applied and fail the batch.
		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: small.ID, Amount: types.USD(1500)},
			{ChargeID: small.ID, Amount: types.USD(1500)},
		})
		if !errors.Is(err, rentledger.ErrChargeOverAllocation) {
			t.Errorf("err = %v, want ErrChargeOverAllocation", err)
		}
	})

	t.Run("FailedBatchWritesNothing", func(t *testing.T) {
		l, orgID, ls, c, p := setup(t)

		_, err := l.AllocateManual(ctx, orgID, p.ID, []allocation.Request{
			{ChargeID: c.ID, Amount: types.USD(50000)},
			{ChargeID: id.NewChargeID(), Amount: types.USD(1000)},
		})
		if !errors.Is(err, rentledger.ErrChargeNotFound) {
			t.Fatalf("err = %v, want ErrChargeNotFound", err)
		}

		// The valid first request must have been rolled back with the batch.
		stmt, err := l.LeaseStatement(ctx, orgID, ls.ID)
		if err != nil {
			t.Fatalf("statement: %v", err)
		}
		if !stmt.Charges[0].Allocated.IsZero() {
			t.Errorf("charge allocated = %s after failed batch, want zero", stmt.Charges[0].Allocated)
		}
		if !stmt.Totals.UnappliedPayments.Equal(types.USD(100000)) {
			t.Errorf("unapplied = %s, want full payment", stmt.Totals.UnappliedPayments)
		}
	})
}

func TestRecordPaymentAndAllocate(t *testing.T) {
	ctx := context.Background()

	t.Run("NoneLeavesCredit", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		mustCreateCharge(t, l, orgID, ls.ID, charge.KindRent, types.USD(120000), types.NewDate(2026, time.March, 1))

		result, err := l.RecordPaymentAndAllocate(ctx, &payment.Payment{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Amount:  types.USD(50000),
		}, rentledger.AllocateNone, nil)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if !result.Remaining.Equal(types.USD(50000)) {
			t.Errorf("remaining = %s, want full payment", result.Remaining)
		}
	})

	t.Run("UnknownMode", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		_, err := l.RecordPaymentAndAllocate(ctx, &payment.Payment{
			OrgID:   orgID,
			LeaseID: ls.ID,
			Amount:  types.USD(50000),
		}, "proportional", nil)
		if !errors.Is(err, rentledger.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestGenerateMonth(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesRentCharge", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		result, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 3)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !result.Created {
			t.Fatal("expected charge to be created")
		}
		if result.Charge.Kind != charge.KindRent {
			t.Errorf("kind = %q, want rent", result.Charge.Kind)
		}
		if result.Charge.DueDate != types.NewDate(2026, time.March, 1) {
			t.Errorf("due date = %s, want 2026-03-01", result.Charge.DueDate)
		}
		if !result.Charge.Amount.Equal(types.USD(120000)) {
			t.Errorf("amount = %s, want $1200.00", result.Charge.Amount)
		}
		if result.Charge.CreatedBy != "system" {
			t.Errorf("created by = %q, want system", result.Charge.CreatedBy)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		first, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 3)
		if err != nil {
			t.Fatalf("first run: %v", err)
		}
		second, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 3)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}

		if second.Created {
			t.Error("second run created a duplicate charge")
		}
		if second.Charge.ID != first.Charge.ID {
			t.Errorf("second run returned %s, want existing %s", second.Charge.ID, first.Charge.ID)
		}
	})

	t.Run("DueDayClampedToShortMonth", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 31, types.NewDate(2026, time.January, 1))

		result, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 2)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if result.Charge.DueDate != types.NewDate(2026, time.February, 28) {
			t.Errorf("due date = %s, want 2026-02-28", result.Charge.DueDate)
		}
	})

	t.Run("OutOfTerm", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.June, 1))

		_, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 3)
		if !errors.Is(err, rentledger.ErrOutOfLeaseTerm) {
			t.Errorf("err = %v, want ErrOutOfLeaseTerm", err)
		}
	})

	t.Run("MissingRentAmount", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.Money{}, 1, types.NewDate(2026, time.January, 1))

		_, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 3)
		if !errors.Is(err, rentledger.ErrMissingRentAmount) {
			t.Errorf("err = %v, want ErrMissingRentAmount", err)
		}
	})

	t.Run("NonPositiveRentAmount", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(0), 1, types.NewDate(2026, time.January, 1))

		_, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, 3)
		if !errors.Is(err, rentledger.ErrNonPositiveRentAmount) {
			t.Errorf("err = %v, want ErrNonPositiveRentAmount", err)
		}
	})

	t.Run("InvalidMonth", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		ls := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		for _, month := range []int{0, 13, -1} {
			if _, err := l.GenerateMonth(ctx, orgID, ls.ID, 2026, month); !errors.Is(err, rentledger.ErrInvalidMonth) {
				t.Errorf("month %d: err = %v, want ErrInvalidMonth", month, err)
			}
		}
	})
}

func TestRunCurrentMonth(t *testing.T) {
	ctx := context.Background()

	t.Run("PostsEveryLease", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		mustCreateLease(t, l, orgID, types.USD(95000), 5, types.NewDate(2026, time.January, 1))

		asOf := types.NewDate(2026, time.March, 15)
		result, err := l.RunCurrentMonth(ctx, orgID, asOf)
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if result.Processed != 2 {
			t.Errorf("processed = %d, want 2", result.Processed)
		}
		if result.Created != 2 {
			t.Errorf("created = %d, want 2", result.Created)
		}
		if len(result.Errors) != 0 {
			t.Errorf("errors = %v, want none", result.Errors)
		}
		if result.AsOf != asOf {
			t.Errorf("as-of = %s, want %s", result.AsOf, asOf)
		}

		// The new charge ids must be reported and resolvable.
		if len(result.CreatedChargeIDs) != 2 {
			t.Fatalf("created charge ids = %d, want 2", len(result.CreatedChargeIDs))
		}
		for _, chargeID := range result.CreatedChargeIDs {
			if _, err := l.GetCharge(ctx, orgID, chargeID); err != nil {
				t.Errorf("get created charge %s: %v", chargeID, err)
			}
		}
	})

	t.Run("StatusDoesNotGatePosting", func(t *testing.T) {
		l, orgID := newTestLedger(t)

		// An ended lease whose term still covers the month owes that month.
		ended := &lease.Lease{
			OrgID:      orgID,
			StartDate:  types.NewDate(2026, time.January, 1),
			RentAmount: types.USD(80000),
			RentDueDay: 1,
			Status:     lease.StatusEnded,
		}
		if err := l.CreateLease(ctx, ended); err != nil {
			t.Fatalf("create ended lease: %v", err)
		}

		result, err := l.RunCurrentMonth(ctx, orgID, types.NewDate(2026, time.March, 15))
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if result.Processed != 1 {
			t.Errorf("processed = %d, want 1", result.Processed)
		}
		if result.Created != 1 {
			t.Errorf("created = %d, want 1", result.Created)
		}
		if len(result.Errors) != 0 {
			t.Errorf("errors = %v, want none", result.Errors)
		}
	})

	t.Run("OutOfTermLeaseReportsError", func(t *testing.T) {
		l, orgID := newTestLedger(t)

		// Term ended before the target month: processed, not skipped.
		expired := &lease.Lease{
			OrgID:      orgID,
			StartDate:  types.NewDate(2025, time.January, 1),
			EndDate:    types.NewDate(2025, time.December, 31),
			RentAmount: types.USD(80000),
			RentDueDay: 1,
			Status:     lease.StatusEnded,
		}
		if err := l.CreateLease(ctx, expired); err != nil {
			t.Fatalf("create expired lease: %v", err)
		}

		result, err := l.RunCurrentMonth(ctx, orgID, types.NewDate(2026, time.March, 15))
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if result.Processed != 1 {
			t.Errorf("processed = %d, want 1", result.Processed)
		}
		if result.Created != 0 {
			t.Errorf("created = %d, want 0", result.Created)
		}
		if len(result.Errors) != 1 {
			t.Fatalf("errors = %d, want 1", len(result.Errors))
		}
		if !errors.Is(result.Errors[0].Err, rentledger.ErrOutOfLeaseTerm) {
			t.Errorf("error = %v, want ErrOutOfLeaseTerm", result.Errors[0].Err)
		}
	})

	t.Run("RerunSkips", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))

		asOf := types.NewDate(2026, time.March, 15)
		if _, err := l.RunCurrentMonth(ctx, orgID, asOf); err != nil {
			t.Fatalf("first run: %v", err)
		}
		result, err := l.RunCurrentMonth(ctx, orgID, asOf)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}

		if result.Created != 0 || result.Skipped != 1 {
			t.Errorf("created = %d, skipped = %d, want 0 and 1", result.Created, result.Skipped)
		}
		if len(result.CreatedChargeIDs) != 0 {
			t.Errorf("created charge ids = %v, want none on rerun", result.CreatedChargeIDs)
		}
	})

	t.Run("FailureIsolatedPerLease", func(t *testing.T) {
		l, orgID := newTestLedger(t)
		good := mustCreateLease(t, l, orgID, types.USD(120000), 1, types.NewDate(2026, time.January, 1))
		bad := mustCreateLease(t, l, orgID, types.Money{}, 1, types.NewDate(2026, time.January, 1))

		result, err := l.RunCurrentMonth(ctx, orgID, types.NewDate(2026, time.March, 15))
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if result.Processed != 2 {
			t.Errorf("processed = %d, want 2", result.Processed)
		}
		if result.Created != 1 {
			t.Errorf("created = %d, want 1", result.Created)
		}
		if len(result.Errors) != 1 {
			t.Fatalf("errors = %d, want 1", len(result.Errors))
		}
		if result.Errors[0].LeaseID != bad.ID {
			t.Errorf("failed lease = %s, want %s", result.Errors[0].LeaseID, bad.ID)
		}
		if !errors.Is(result.Errors[0].Err, rentledger.ErrMissingRentAmount) {
			t.Errorf("error = %v, want ErrMissingRentAmount", result.Errors[0].Err)
		}

		// The good lease's charge must exist despite the neighbor failing.
		charges, err := l.ListCharges(ctx, orgID, charge.ListOpts{LeaseID: good.ID})
		if err != nil {
			t.Fatalf("list charges: %v", err)
		}
		if len(charges) != 1 {
			t.Errorf("good lease charges = %d, want 1", len(charges))
		}
	})
}

func TestCreateLease(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsToDraft", func(t *testing.T) {
		l, orgID := newTestLedger(t)

		ls := &lease.Lease{
			OrgID:      orgID,
			StartDate:  types.NewDate(2026, time.January, 1),
			RentAmount: types.USD(120000),
			RentDueDay: 1,
		}
		if err := l.CreateLease(ctx, ls); err != nil {
			t.Fatalf("create: %v", err)
		}
		if ls.Status != lease.StatusDraft {
			t.Errorf("status = %q, want draft", ls.Status)
		}
	})

	t.Run("InvalidDueDay", func(t *testing.T) {
		l, orgID := newTestLedger(t)

		for _, day := range []int{0, 32} {
			err := l.CreateLease(ctx, &lease.Lease{
				OrgID:      orgID,
				StartDate:  types.NewDate(2026, time.January, 1),
				RentAmount: types.USD(120000),
				RentDueDay: day,
			})
			if !errors.Is(err, rentledger.ErrInvalidInput) {
				t.Errorf("due day %d: err = %v, want ErrInvalidInput", day, err)
			}
		}
	})
}
