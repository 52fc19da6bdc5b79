// Package lease defines the lease directory record read by the rent charge
// generator. The ledger treats leases as externally managed reference data:
// it reads rent terms from them and posts facts against their ids, but does
// not own their lifecycle rules.
package lease

import (
	"time"

	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/types"
)

// Status is the lease lifecycle state. Informational for the ledger: rent
// posting is gated by the term dates, not the status.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Valid reports whether s is a known lease status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusEnded:
		return true
	default:
		return false
	}
}

// Lease holds the rent terms the charge generator reads.
type Lease struct {
	types.Entity
	ID         id.LeaseID  `json:"id"`
	OrgID      id.OrgID    `json:"org_id"`
	UnitID     id.UnitID   `json:"unit_id"`
	StartDate  types.Date  `json:"start_date"`
	EndDate    types.Date  `json:"end_date,omitempty"` // Zero when open-ended.
	RentAmount types.Money `json:"rent_amount"`
	RentDueDay int         `json:"rent_due_day"`
	Status     Status      `json:"status"`
}

// DueDateIn returns the rent due date for the given month, with the due day
// clamped to the last day of shorter months. A lease with RentDueDay 31 is
// due on Feb 28 (or 29) rather than skipping February.
func (l *Lease) DueDateIn(year int, month int) types.Date {
	day := l.RentDueDay
	if day < 1 {
		day = 1
	}
	if last := types.DaysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return types.NewDate(year, time.Month(month), day)
}

// InTermFor reports whether the given month's rent date falls inside the
// lease term. The comparison is at month granularity: a lease starting
// mid-month owes that month's rent, and a lease ending mid-month owes its
// final month in full.
func (l *Lease) InTermFor(year int, month int) bool {
	monthStart := types.NewDate(year, time.Month(month), 1)
	leaseStartMonth := l.StartDate.MonthStart()
	if monthStart.Before(leaseStartMonth) {
		return false
	}
	if !l.EndDate.IsZero() && monthStart.After(l.EndDate.MonthStart()) {
		return false
	}
	return true
}

// ListOpts filters lease listings. Zero fields are ignored.
type ListOpts struct {
	Status Status
	UnitID id.UnitID
	Limit  int
	Offset int
}
