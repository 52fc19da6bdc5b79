package rentledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/types"
)

// Ledger is the rental billing engine. Charges, payments, and allocations are
// append-only facts; every balance the engine reports is derived from them
// inside the operation that reports it.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Currency used for derived totals when an org has no facts yet.
	defaultCurrency string
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		defaultCurrency: "usd",
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithDefaultCurrency sets the currency reported for empty derived totals.
func WithDefaultCurrency(currency string) Option {
	return func(l *Ledger) {
		l.defaultCurrency = currency
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("rentledger started",
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Charge entry
// ──────────────────────────────────────────────────

// CreateCharge records a manual charge fact (late fee, misc, or an off-cycle
// rent charge). The charge is validated against ledger invariants before it
// is written and is immutable afterwards.
func (l *Ledger) CreateCharge(ctx context.Context, c *charge.Charge) error {
	if c.OrgID.IsNil() || c.LeaseID.IsNil() {
		return fmt.Errorf("%w: org and lease required", ErrInvalidInput)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: charge amount %s", ErrNonPositiveAmount, c.Amount)
	}
	if c.DueDate.IsZero() {
		return fmt.Errorf("%w: due date required", ErrInvalidInput)
	}

	if _, err := l.store.GetLease(ctx, c.OrgID, c.LeaseID); err != nil {
		return err
	}

	if c.ID.IsNil() {
		c.ID = id.NewChargeID()
	}
	c.CreatedAt = time.Now().UTC()

	if err := l.store.CreateCharge(ctx, c); err != nil {
		return err
	}

	l.plugins.EmitChargeCreated(ctx, c)
	return nil
}

// GetCharge retrieves a charge by ID within an org.
func (l *Ledger) GetCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (*charge.Charge, error) {
	return l.store.GetCharge(ctx, orgID, chargeID)
}

// ListCharges lists charges for an org.
func (l *Ledger) ListCharges(ctx context.Context, orgID id.OrgID, opts charge.ListOpts) ([]*charge.Charge, error) {
	return l.store.ListCharges(ctx, orgID, opts)
}

// ──────────────────────────────────────────────────
// Payment recording
// ──────────────────────────────────────────────────

// RecordPayment records a payment fact. The payment starts fully unapplied;
// allocation is a separate step.
func (l *Ledger) RecordPayment(ctx context.Context, p *payment.Payment) error {
	if p.OrgID.IsNil() || p.LeaseID.IsNil() {
		return fmt.Errorf("%w: org and lease required", ErrInvalidInput)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount %s", ErrNonPositiveAmount, p.Amount)
	}
	if p.Method == "" {
		p.Method = payment.MethodOther
	}
	if !p.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, p.Method)
	}

	if _, err := l.store.GetLease(ctx, p.OrgID, p.LeaseID); err != nil {
		return err
	}

	if p.ID.IsNil() {
		p.ID = id.NewPaymentID()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	p.CreatedAt = time.Now().UTC()

	if err := l.store.CreatePayment(ctx, p); err != nil {
		return err
	}

	l.plugins.EmitPaymentRecorded(ctx, p)
	return nil
}

// GetPayment retrieves a payment by ID within an org.
func (l *Ledger) GetPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	return l.store.GetPayment(ctx, orgID, paymentID)
}

// ListPayments lists payments for an org.
func (l *Ledger) ListPayments(ctx context.Context, orgID id.OrgID, opts payment.ListOpts) ([]*payment.Payment, error) {
	return l.store.ListPayments(ctx, orgID, opts)
}

// AllocationMode selects how RecordPaymentAndAllocate applies the payment.
type AllocationMode string

const (
	// AllocateNone records the payment and leaves it fully unapplied.
	AllocateNone AllocationMode = "none"
	// AllocateFIFO runs automatic FIFO allocation after recording.
	AllocateFIFO AllocationMode = "fifo"
	// AllocateManualMode applies the supplied allocation requests.
	AllocateManualMode AllocationMode = "manual"
)

// RecordPaymentAndAllocate records a payment and immediately allocates it.
// The payment write and the allocation run are separate transactions: a
// failed allocation leaves the recorded payment fully unapplied.
func (l *Ledger) RecordPaymentAndAllocate(ctx context.Context, p *payment.Payment, mode AllocationMode, requests []allocation.Request) (*allocation.Result, error) {
	if err := l.RecordPayment(ctx, p); err != nil {
		return nil, err
	}

	switch mode {
	case AllocateNone, "":
		return &allocation.Result{
			PaymentID: p.ID,
			Applied:   types.Zero(p.Amount.Currency),
			Remaining: p.Amount,
		}, nil
	case AllocateFIFO:
		return l.AllocateAuto(ctx, p.OrgID, p.ID)
	case AllocateManualMode:
		return l.AllocateManual(ctx, p.OrgID, p.ID, requests)
	default:
		return nil, fmt.Errorf("%w: allocation mode %q", ErrInvalidInput, mode)
	}
}

// ──────────────────────────────────────────────────
// Allocation engine
// ──────────────────────────────────────────────────

// AllocateAuto applies a payment's unapplied remainder to the lease's open
// charges in FIFO order: oldest due date first, then created at, then id.
// The whole run happens inside one transaction holding the payment row lock
// and the lease charge-set lock, so every balance it reads is stable until
// commit. Calling it on a fully allocated payment is a no-op, not an error.
func (l *Ledger) AllocateAuto(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*allocation.Result, error) {
	var result *allocation.Result

	err := l.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPayment(ctx, orgID, paymentID)
		if err != nil {
			return err
		}

		charges, err := tx.LockLeaseCharges(ctx, orgID, p.LeaseID)
		if err != nil {
			return err
		}

		allocated, err := tx.AllocatedForPayment(ctx, orgID, paymentID)
		if err != nil {
			return err
		}

		remaining := p.Amount.Amount - allocated
		result = &allocation.Result{
			PaymentID:   paymentID,
			Allocations: []*allocation.Allocation{},
			Applied:     types.Zero(p.Amount.Currency),
			Remaining:   types.NewMoney(remaining, p.Amount.Currency),
		}
		if remaining <= 0 {
			return nil
		}

		for _, c := range charges {
			chargeAllocated, err := tx.AllocatedForCharge(ctx, orgID, c.ID)
			if err != nil {
				return err
			}
			open := c.Amount.Amount - chargeAllocated
			if open <= 0 {
				continue
			}

			apply := open
			if remaining < apply {
				apply = remaining
			}

			a := &allocation.Allocation{
				ID:        id.NewAllocationID(),
				OrgID:     orgID,
				PaymentID: paymentID,
				ChargeID:  c.ID,
				Amount:    types.NewMoney(apply, p.Amount.Currency),
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.CreateAllocation(ctx, a); err != nil {
				return err
			}

			result.Allocations = append(result.Allocations, a)
			remaining -= apply
			if remaining == 0 {
				break
			}
		}

		result.Applied = types.NewMoney(p.Amount.Amount-allocated-remaining, p.Amount.Currency)
		result.Remaining = types.NewMoney(remaining, p.Amount.Currency)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Allocations) > 0 {
		l.plugins.EmitAllocated(ctx, result)
		l.logger.Debug("payment auto-allocated",
			"payment_id", paymentID.String(),
			"allocations", len(result.Allocations),
			"applied", result.Applied.String(),
		)
	}

	return result, nil
}

// AllocateManual applies a payment to explicitly chosen charges. The run is
// all-or-nothing: if any single request fails validation, no allocation from
// the batch is written.
func (l *Ledger) AllocateManual(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID, requests []allocation.Request) (*allocation.Result, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyAllocationRequest
	}

	var result *allocation.Result

	err := l.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPayment(ctx, orgID, paymentID)
		if err != nil {
			return err
		}

		var requested int64
		for _, req := range requests {
			if !req.Amount.IsPositive() {
				return fmt.Errorf("%w: allocation amount %s for charge %s", ErrNonPositiveAmount, req.Amount, req.ChargeID)
			}
			if req.Amount.Currency != p.Amount.Currency {
				return fmt.Errorf("%w: allocation currency %q does not match payment currency %q", ErrInvalidInput, req.Amount.Currency, p.Amount.Currency)
			}
			requested += req.Amount.Amount
		}

		allocated, err := tx.AllocatedForPayment(ctx, orgID, paymentID)
		if err != nil {
			return err
		}
		unapplied := p.Amount.Amount - allocated
		if requested > unapplied {
			return fmt.Errorf("%w: requested %d, unapplied %d", ErrInsufficientPaymentBalance, requested, unapplied)
		}

		chargeIDs := make([]id.ChargeID, 0, len(requests))
		for _, req := range requests {
			chargeIDs = append(chargeIDs, req.ChargeID)
		}
		charges, err := tx.LockCharges(ctx, orgID, chargeIDs)
		if err != nil {
			return err
		}

		result = &allocation.Result{
			PaymentID:   paymentID,
			Allocations: []*allocation.Allocation{},
		}

		for _, req := range requests {
			c, ok := charges[req.ChargeID.String()]
			if !ok {
				return fmt.Errorf("%w: charge %s", ErrChargeNotFound, req.ChargeID)
			}
			if c.OrgID != orgID || c.LeaseID != p.LeaseID {
				return fmt.Errorf("%w: charge %s", ErrBoundaryMismatch, req.ChargeID)
			}

			chargeAllocated, err := tx.AllocatedForCharge(ctx, orgID, c.ID)
			if err != nil {
				return err
			}
			open := c.Amount.Amount - chargeAllocated
			if req.Amount.Amount > open {
				return fmt.Errorf("%w: charge %s open balance %d, requested %d", ErrChargeOverAllocation, c.ID, open, req.Amount.Amount)
			}

			a := &allocation.Allocation{
				ID:        id.NewAllocationID(),
				OrgID:     orgID,
				PaymentID: paymentID,
				ChargeID:  c.ID,
				Amount:    req.Amount,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.CreateAllocation(ctx, a); err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, a)
		}

		result.Applied = types.NewMoney(requested, p.Amount.Currency)
		result.Remaining = types.NewMoney(unapplied-requested, p.Amount.Currency)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitAllocated(ctx, result)
	l.logger.Debug("payment manually allocated",
		"payment_id", paymentID.String(),
		"allocations", len(result.Allocations),
		"applied", result.Applied.String(),
	)

	return result, nil
}

// ──────────────────────────────────────────────────
// Rent charge generation
// ──────────────────────────────────────────────────

// GenerateMonthResult reports a rent generation run for one lease and month.
type GenerateMonthResult struct {
	Charge  *charge.Charge `json:"charge"`
	Created bool           `json:"created"`
}

// GenerateMonth generates the monthly rent charge for a lease. The lease row
// is locked for the duration so concurrent calls for the same lease and
// month serialize; the second caller finds the existing charge and reports
// Created false. The rent due day is clamped to the last day of shorter
// months.
func (l *Ledger) GenerateMonth(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID, year int, month int) (*GenerateMonthResult, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	var result *GenerateMonthResult

	err := l.store.InTx(ctx, func(tx store.Tx) error {
		ls, err := tx.LockLease(ctx, orgID, leaseID)
		if err != nil {
			return err
		}

		if !ls.InTermFor(year, month) {
			return fmt.Errorf("%w: lease %s, month %04d-%02d", ErrOutOfLeaseTerm, leaseID, year, month)
		}
		if ls.RentAmount.Currency == "" {
			return fmt.Errorf("%w: lease %s", ErrMissingRentAmount, leaseID)
		}
		if !ls.RentAmount.IsPositive() {
			return fmt.Errorf("%w: lease %s rent %s", ErrNonPositiveRentAmount, leaseID, ls.RentAmount)
		}

		dueDate := ls.DueDateIn(year, month)

		existing, err := tx.FindChargeByKey(ctx, orgID, leaseID, charge.KindRent, dueDate)
		if err == nil {
			result = &GenerateMonthResult{Charge: existing, Created: false}
			return nil
		}
		if !IsNotFound(err) {
			return err
		}

		c := &charge.Charge{
			ID:        id.NewChargeID(),
			OrgID:     orgID,
			LeaseID:   leaseID,
			Kind:      charge.KindRent,
			Amount:    ls.RentAmount,
			DueDate:   dueDate,
			Note:      fmt.Sprintf("Rent charge for %04d-%02d", year, month),
			CreatedBy: "system",
		}
		c.CreatedAt = time.Now().UTC()

		if err := tx.CreateCharge(ctx, c); err != nil {
			return err
		}

		result = &GenerateMonthResult{Charge: c, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		l.plugins.EmitRentCharged(ctx, result.Charge)
		l.plugins.EmitChargeCreated(ctx, result.Charge)
		l.logger.Debug("rent charge generated",
			"lease_id", leaseID.String(),
			"due_date", result.Charge.DueDate.String(),
			"amount", result.Charge.Amount.String(),
		)
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Batch rent posting
// ──────────────────────────────────────────────────

// PostingError records a per-lease failure in a batch posting run.
type PostingError struct {
	LeaseID id.LeaseID `json:"lease_id"`
	Err     error      `json:"-"`
	Message string     `json:"message"`
}

// PostingRunResult summarizes a batch rent posting run.
type PostingRunResult struct {
	AsOf             types.Date     `json:"as_of"`
	Processed        int            `json:"processed"`
	Created          int            `json:"created"`
	Skipped          int            `json:"skipped"`
	CreatedChargeIDs []id.ChargeID  `json:"created_charge_ids"`
	Errors           []PostingError `json:"errors"`
}

// RunCurrentMonth generates the rent charge for every lease in the org for
// the month containing asOf. Lease status is not consulted; a lease whose
// term does not cover the month surfaces as a per-lease OutOfLeaseTerm
// error. Each lease runs in its own transaction: a failure on one lease
// never rolls back or blocks the others. The run itself always returns nil
// error; per-lease failures are in the result.
func (l *Ledger) RunCurrentMonth(ctx context.Context, orgID id.OrgID, asOf types.Date) (*PostingRunResult, error) {
	if asOf.IsZero() {
		asOf = types.Today()
	}
	start := time.Now()

	leases, err := l.store.ListLeases(ctx, orgID, lease.ListOpts{})
	if err != nil {
		return nil, err
	}

	result := &PostingRunResult{
		AsOf:             asOf,
		CreatedChargeIDs: []id.ChargeID{},
		Errors:           []PostingError{},
	}

	for _, ls := range leases {
		result.Processed++

		gen, err := l.GenerateMonth(ctx, orgID, ls.ID, asOf.Year, int(asOf.Month))
		if err != nil {
			result.Errors = append(result.Errors, PostingError{
				LeaseID: ls.ID,
				Err:     err,
				Message: err.Error(),
			})
			continue
		}
		if gen.Created {
			result.Created++
			result.CreatedChargeIDs = append(result.CreatedChargeIDs, gen.Charge.ID)
		} else {
			result.Skipped++
		}
	}

	elapsed := time.Since(start)
	l.plugins.EmitRentPosted(ctx, result, elapsed)
	l.logger.Info("rent posting run completed",
		"org_id", orgID.String(),
		"processed", result.Processed,
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", len(result.Errors),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return result, nil
}

// ──────────────────────────────────────────────────
// Lease directory
// ──────────────────────────────────────────────────

// CreateLease registers a lease the ledger can post against.
func (l *Ledger) CreateLease(ctx context.Context, ls *lease.Lease) error {
	if ls.OrgID.IsNil() {
		return fmt.Errorf("%w: org required", ErrInvalidInput)
	}
	if ls.StartDate.IsZero() {
		return fmt.Errorf("%w: start date required", ErrInvalidInput)
	}
	if ls.RentDueDay < 1 || ls.RentDueDay > 31 {
		return fmt.Errorf("%w: rent due day %d", ErrInvalidInput, ls.RentDueDay)
	}
	if ls.Status == "" {
		ls.Status = lease.StatusDraft
	}
	if !ls.Status.Valid() {
		return fmt.Errorf("%w: lease status %q", ErrInvalidInput, ls.Status)
	}

	if ls.ID.IsNil() {
		ls.ID = id.NewLeaseID()
	}
	ls.Entity = types.NewEntity()

	return l.store.CreateLease(ctx, ls)
}

// GetLease retrieves a lease by ID within an org.
func (l *Ledger) GetLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	return l.store.GetLease(ctx, orgID, leaseID)
}

// ListLeases lists leases for an org.
func (l *Ledger) ListLeases(ctx context.Context, orgID id.OrgID, opts lease.ListOpts) ([]*lease.Lease, error) {
	return l.store.ListLeases(ctx, orgID, opts)
}

// UpdateLease updates lease directory data. Ledger facts already posted
// against the lease are unaffected.
func (l *Ledger) UpdateLease(ctx context.Context, ls *lease.Lease) error {
	if !ls.Status.Valid() {
		return fmt.Errorf("%w: lease status %q", ErrInvalidInput, ls.Status)
	}
	return l.store.UpdateLease(ctx, ls)
}
