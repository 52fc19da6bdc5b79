// Package payment defines the payment fact: money received from a lease.
package payment

import (
	"time"

	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/types"
)

// Method records how a payment was made.
type Method string

const (
	MethodCash     Method = "cash"
	MethodTransfer Method = "transfer"
	MethodCheck    Method = "check"
	MethodOther    Method = "other"
)

// Valid reports whether m is a known payment method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCheck, MethodOther:
		return true
	default:
		return false
	}
}

// Payment is an append-only ledger fact recording money received. A payment
// is never updated or deleted; how much of it has been applied to charges is
// derived from its allocations. The unapplied remainder is payment credit.
type Payment struct {
	ID          id.PaymentID `json:"id"`
	OrgID       id.OrgID     `json:"org_id"`
	LeaseID     id.LeaseID   `json:"lease_id"`
	Amount      types.Money  `json:"amount"`
	PaidAt      time.Time    `json:"paid_at"`
	Method      Method       `json:"method"`
	ExternalRef string       `json:"external_ref,omitempty"`
	Note        string       `json:"note,omitempty"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ListOpts filters payment listings. Zero fields are ignored.
type ListOpts struct {
	LeaseID  id.LeaseID
	Method   Method
	PaidFrom time.Time
	PaidTo   time.Time
	Limit    int
	Offset   int
}
