// Package allocation defines the allocation fact linking a payment to a
// charge, and the request/result types of the allocation engine.
package allocation

import (
	"time"

	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/types"
)

// Allocation applies part of a payment to a charge. Allocations are
// append-only and created only by the allocation engine, inside the same
// transaction that validated them against derived balances.
type Allocation struct {
	ID        id.AllocationID `json:"id"`
	OrgID     id.OrgID        `json:"org_id"`
	PaymentID id.PaymentID    `json:"payment_id"`
	ChargeID  id.ChargeID     `json:"charge_id"`
	Amount    types.Money     `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Request names a charge and the amount to apply to it in a manual
// allocation.
type Request struct {
	ChargeID id.ChargeID `json:"charge_id"`
	Amount   types.Money `json:"amount"`
}

// Result reports what an allocation run did. An idempotent no-op run (payment
// already fully applied, or no open charges) returns an empty Allocations
// slice and zero Applied.
type Result struct {
	PaymentID   id.PaymentID  `json:"payment_id"`
	Allocations []*Allocation `json:"allocations"`
	Applied     types.Money   `json:"applied"`
	Remaining   types.Money   `json:"remaining"` // Unapplied payment credit after the run.
}
