// Package charge defines the charge fact: an amount owed by a lease.
package charge

import (
	"time"

	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/types"
)

// Kind classifies what a charge is for.
type Kind string

const (
	KindRent    Kind = "rent"
	KindLateFee Kind = "late_fee"
	KindMisc    Kind = "misc"
)

// Valid reports whether k is a known charge kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRent, KindLateFee, KindMisc:
		return true
	default:
		return false
	}
}

// Charge is an append-only ledger fact recording an amount owed. A charge is
// never updated or deleted after creation; its open balance is derived from
// the allocations recorded against it.
//
// The tuple (OrgID, LeaseID, Kind, DueDate) is unique across the store, which
// is what makes rent generation idempotent.
type Charge struct {
	ID        id.ChargeID  `json:"id"`
	OrgID     id.OrgID     `json:"org_id"`
	LeaseID   id.LeaseID   `json:"lease_id"`
	Kind      Kind         `json:"kind"`
	Amount    types.Money  `json:"amount"`
	DueDate   types.Date   `json:"due_date"`
	Note      string       `json:"note,omitempty"`
	CreatedBy string       `json:"created_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ListOpts filters charge listings. Zero fields are ignored.
type ListOpts struct {
	LeaseID id.LeaseID
	Kind    Kind
	DueFrom types.Date
	DueTo   types.Date
	Limit   int
	Offset  int
}
