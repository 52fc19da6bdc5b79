package rentledger

import (
	"context"
	"sort"

	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/types"
)

// Read-only projections. Every number here is recomputed from the fact
// tables on each call; nothing is cached or stored. Queries take no locks,
// so a projection running concurrently with a mutation sees either the
// pre-commit or post-commit ledger, never a partial write.

// ChargeRow is a statement line for one charge with derived totals.
type ChargeRow struct {
	Charge    *charge.Charge `json:"charge"`
	Allocated types.Money    `json:"allocated"`
	Balance   types.Money    `json:"balance"` // Open balance, clamped at zero.
}

// PaymentRow is a statement line for one payment with derived totals.
type PaymentRow struct {
	Payment   *payment.Payment `json:"payment"`
	Allocated types.Money      `json:"allocated"`
	Unapplied types.Money      `json:"unapplied"` // Payment credit, clamped at zero.
}

// StatementTotals are the lease-level derived totals.
type StatementTotals struct {
	Charges           types.Money `json:"charges"`
	Payments          types.Money `json:"payments"`
	Allocated         types.Money `json:"allocated"`
	Balance           types.Money `json:"balance"` // Charges minus allocated, clamped at zero.
	UnappliedPayments types.Money `json:"unapplied_payments"`
}

// Statement is the full ledger view for one lease.
type Statement struct {
	LeaseID  id.LeaseID    `json:"lease_id"`
	Totals   StatementTotals `json:"totals"`
	Charges  []ChargeRow   `json:"charges"`
	Payments []PaymentRow  `json:"payments"`
}

// LeaseStatement builds the statement for a lease: charges in due-date
// order, payments in paid-date order, with per-row allocation totals and
// derived balances.
func (l *Ledger) LeaseStatement(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*Statement, error) {
	if _, err := l.store.GetLease(ctx, orgID, leaseID); err != nil {
		return nil, err
	}

	charges, err := l.store.ListCharges(ctx, orgID, charge.ListOpts{LeaseID: leaseID})
	if err != nil {
		return nil, err
	}
	payments, err := l.store.ListPayments(ctx, orgID, payment.ListOpts{LeaseID: leaseID})
	if err != nil {
		return nil, err
	}

	chargeIDs := make([]id.ChargeID, 0, len(charges))
	for _, c := range charges {
		chargeIDs = append(chargeIDs, c.ID)
	}
	paymentIDs := make([]id.PaymentID, 0, len(payments))
	for _, p := range payments {
		paymentIDs = append(paymentIDs, p.ID)
	}

	allocByCharge, err := l.store.SumAllocationsByCharge(ctx, orgID, chargeIDs)
	if err != nil {
		return nil, err
	}
	allocByPayment, err := l.store.SumAllocationsByPayment(ctx, orgID, paymentIDs)
	if err != nil {
		return nil, err
	}

	currency := l.currencyFor(charges, payments)

	stmt := &Statement{
		LeaseID:  leaseID,
		Charges:  make([]ChargeRow, 0, len(charges)),
		Payments: make([]PaymentRow, 0, len(payments)),
	}

	var totalCharges, totalAllocated int64
	for _, c := range charges {
		allocated := allocByCharge[c.ID.String()]
		totalCharges += c.Amount.Amount
		totalAllocated += allocated

		stmt.Charges = append(stmt.Charges, ChargeRow{
			Charge:    c,
			Allocated: types.NewMoney(allocated, c.Amount.Currency),
			Balance:   types.NewMoney(c.Amount.Amount-allocated, c.Amount.Currency).ClampZero(),
		})
	}

	var totalPayments, totalFromPayments int64
	for _, p := range payments {
		allocated := allocByPayment[p.ID.String()]
		totalPayments += p.Amount.Amount
		totalFromPayments += allocated

		stmt.Payments = append(stmt.Payments, PaymentRow{
			Payment:   p,
			Allocated: types.NewMoney(allocated, p.Amount.Currency),
			Unapplied: types.NewMoney(p.Amount.Amount-allocated, p.Amount.Currency).ClampZero(),
		})
	}

	stmt.Totals = StatementTotals{
		Charges:           types.NewMoney(totalCharges, currency),
		Payments:          types.NewMoney(totalPayments, currency),
		Allocated:         types.NewMoney(totalAllocated, currency),
		Balance:           types.NewMoney(totalCharges-totalAllocated, currency).ClampZero(),
		UnappliedPayments: types.NewMoney(totalPayments-totalFromPayments, currency),
	}

	return stmt, nil
}

// AgingBuckets splits a lease's outstanding balance by days past due as-of
// the report date. Upper bounds are inclusive: a charge exactly 30 days past
// due is current, exactly 60 is in the 31-60 bucket, exactly 90 in 61-90.
type AgingBuckets struct {
	Current0to30 types.Money `json:"current_0_30"`
	Days31to60   types.Money `json:"days_31_60"`
	Days61to90   types.Money `json:"days_61_90"`
	Days90Plus   types.Money `json:"days_90_plus"`
}

// AgingRow is the delinquency summary for one lease.
type AgingRow struct {
	LeaseID          id.LeaseID  `json:"lease_id"`
	TotalOutstanding types.Money `json:"total_outstanding"`
	OldestDueDate    types.Date  `json:"oldest_due_date"`
	Buckets          AgingBuckets `json:"buckets"`
}

// Aging computes the A/R aging report for an org as-of a date. Only charges
// due on or before asOf are considered; fully allocated charges drop out.
// Leases with nothing outstanding are omitted. Rows are ordered by total
// outstanding descending, with lease id as a deterministic tie-break.
func (l *Ledger) Aging(ctx context.Context, orgID id.OrgID, asOf types.Date) ([]AgingRow, error) {
	if asOf.IsZero() {
		asOf = types.Today()
	}

	charges, err := l.store.ListChargesDueBy(ctx, orgID, asOf)
	if err != nil {
		return nil, err
	}
	if len(charges) == 0 {
		return []AgingRow{}, nil
	}

	chargeIDs := make([]id.ChargeID, 0, len(charges))
	for _, c := range charges {
		chargeIDs = append(chargeIDs, c.ID)
	}
	allocByCharge, err := l.store.SumAllocationsByCharge(ctx, orgID, chargeIDs)
	if err != nil {
		return nil, err
	}

	type agingAccum struct {
		leaseID  id.LeaseID
		currency string
		total    int64
		oldest   types.Date
		b0       int64
		b31      int64
		b61      int64
		b90      int64
	}
	byLease := make(map[string]*agingAccum)

	for _, c := range charges {
		remaining := c.Amount.Amount - allocByCharge[c.ID.String()]
		if remaining <= 0 {
			continue
		}

		key := c.LeaseID.String()
		rec, ok := byLease[key]
		if !ok {
			rec = &agingAccum{leaseID: c.LeaseID, currency: c.Amount.Currency, oldest: c.DueDate}
			byLease[key] = rec
		}

		rec.total += remaining
		if c.DueDate.Before(rec.oldest) {
			rec.oldest = c.DueDate
		}

		daysPastDue := asOf.DaysSince(c.DueDate)
		switch {
		case daysPastDue <= 30:
			rec.b0 += remaining
		case daysPastDue <= 60:
			rec.b31 += remaining
		case daysPastDue <= 90:
			rec.b61 += remaining
		default:
			rec.b90 += remaining
		}
	}

	rows := make([]AgingRow, 0, len(byLease))
	for _, rec := range byLease {
		rows = append(rows, AgingRow{
			LeaseID:          rec.leaseID,
			TotalOutstanding: types.NewMoney(rec.total, rec.currency),
			OldestDueDate:    rec.oldest,
			Buckets: AgingBuckets{
				Current0to30: types.NewMoney(rec.b0, rec.currency),
				Days31to60:   types.NewMoney(rec.b31, rec.currency),
				Days61to90:   types.NewMoney(rec.b61, rec.currency),
				Days90Plus:   types.NewMoney(rec.b90, rec.currency),
			},
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalOutstanding.Amount != rows[j].TotalOutstanding.Amount {
			return rows[i].TotalOutstanding.Amount > rows[j].TotalOutstanding.Amount
		}
		return rows[i].LeaseID.String() < rows[j].LeaseID.String()
	})

	return rows, nil
}

// DashboardSummary is the org-level KPI set, fully derived from facts.
type DashboardSummary struct {
	AsOf                  types.Date  `json:"as_of"`
	ExpectedRentThisMonth types.Money `json:"expected_rent_this_month"`
	CollectedThisMonth    types.Money `json:"collected_this_month"`
	OutstandingAsOf       types.Money `json:"outstanding_as_of"`
	DelinquentLeases      int         `json:"delinquent_leases"`
	UnappliedCredits      types.Money `json:"unapplied_credits"`
}

// Dashboard computes the org dashboard KPIs as-of a date. "This month" is
// the calendar month containing asOf. Collected-this-month counts
// allocations applied to rent charges due this month, regardless of when
// the payment itself arrived.
func (l *Ledger) Dashboard(ctx context.Context, orgID id.OrgID, asOf types.Date) (*DashboardSummary, error) {
	if asOf.IsZero() {
		asOf = types.Today()
	}

	monthStart := asOf.MonthStart()
	monthEnd := asOf.NextMonthStart().AddDays(-1)

	rentCharges, err := l.store.ListChargesDueBetween(ctx, orgID, charge.KindRent, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}

	var expected int64
	rentChargeIDs := make([]id.ChargeID, 0, len(rentCharges))
	for _, c := range rentCharges {
		expected += c.Amount.Amount
		rentChargeIDs = append(rentChargeIDs, c.ID)
	}

	allocToRent, err := l.store.SumAllocationsByCharge(ctx, orgID, rentChargeIDs)
	if err != nil {
		return nil, err
	}
	var collected int64
	for _, sum := range allocToRent {
		collected += sum
	}

	dueCharges, err := l.store.ListChargesDueBy(ctx, orgID, asOf)
	if err != nil {
		return nil, err
	}
	dueChargeIDs := make([]id.ChargeID, 0, len(dueCharges))
	for _, c := range dueCharges {
		dueChargeIDs = append(dueChargeIDs, c.ID)
	}
	allocToDue, err := l.store.SumAllocationsByCharge(ctx, orgID, dueChargeIDs)
	if err != nil {
		return nil, err
	}

	var outstanding int64
	delinquent := make(map[string]bool)
	for _, c := range dueCharges {
		remaining := c.Amount.Amount - allocToDue[c.ID.String()]
		if remaining > 0 {
			outstanding += remaining
			delinquent[c.LeaseID.String()] = true
		}
	}

	totalPayments, err := l.store.SumPayments(ctx, orgID)
	if err != nil {
		return nil, err
	}
	totalAllocated, err := l.store.SumAllocations(ctx, orgID)
	if err != nil {
		return nil, err
	}

	currency := l.currencyFor(dueCharges, nil)
	if currency == l.defaultCurrency && len(rentCharges) > 0 {
		currency = rentCharges[0].Amount.Currency
	}

	unapplied := totalPayments - totalAllocated
	if unapplied < 0 {
		unapplied = 0
	}

	return &DashboardSummary{
		AsOf:                  asOf,
		ExpectedRentThisMonth: types.NewMoney(expected, currency),
		CollectedThisMonth:    types.NewMoney(collected, currency),
		OutstandingAsOf:       types.NewMoney(outstanding, currency),
		DelinquentLeases:      len(delinquent),
		UnappliedCredits:      types.NewMoney(unapplied, currency),
	}, nil
}

// currencyFor picks the reporting currency from the facts at hand, falling
// back to the configured default when the org has no facts yet.
func (l *Ledger) currencyFor(charges []*charge.Charge, payments []*payment.Payment) string {
	if len(charges) > 0 {
		return charges[0].Amount.Currency
	}
	if len(payments) > 0 {
		return payments[0].Amount.Currency
	}
	return l.defaultCurrency
}
