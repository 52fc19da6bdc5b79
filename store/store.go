// Package store defines the storage contract for RentLedger. Backends
// implement Store for lock-free reads and writes, and Tx for the row-locked
// transactional view the allocation and rent-generation engines run inside.
package store

import (
	"context"

	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/types"
)

// Store is the unified storage interface for all RentLedger entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
//
// List methods return facts in deterministic order: charges by
// (due date, created at, id) ascending, payments by (paid at, created at, id)
// ascending. Aggregate methods return raw minor-unit sums; currency handling
// is the caller's concern.
type Store interface {
	// Charge methods
	CreateCharge(ctx context.Context, c *charge.Charge) error
	GetCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (*charge.Charge, error)
	ListCharges(ctx context.Context, orgID id.OrgID, opts charge.ListOpts) ([]*charge.Charge, error)
	ListChargesDueBy(ctx context.Context, orgID id.OrgID, asOf types.Date) ([]*charge.Charge, error)
	ListChargesDueBetween(ctx context.Context, orgID id.OrgID, kind charge.Kind, from, to types.Date) ([]*charge.Charge, error)

	// Payment methods
	CreatePayment(ctx context.Context, p *payment.Payment) error
	GetPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error)
	ListPayments(ctx context.Context, orgID id.OrgID, opts payment.ListOpts) ([]*payment.Payment, error)

	// Allocation aggregates (lock-free, used by projections)
	SumAllocationsByCharge(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]int64, error)
	SumAllocationsByPayment(ctx context.Context, orgID id.OrgID, paymentIDs []id.PaymentID) (map[string]int64, error)
	SumPayments(ctx context.Context, orgID id.OrgID) (int64, error)
	SumAllocations(ctx context.Context, orgID id.OrgID) (int64, error)
	ListAllocations(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*allocation.Allocation, error)

	// Lease directory methods
	CreateLease(ctx context.Context, l *lease.Lease) error
	GetLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error)
	ListLeases(ctx context.Context, orgID id.OrgID, opts lease.ListOpts) ([]*lease.Lease, error)
	UpdateLease(ctx context.Context, l *lease.Lease) error

	// InTx runs fn inside a single all-or-nothing transaction. Row locks
	// taken through the Tx are held until the transaction ends. Any error
	// from fn rolls back everything written through the Tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional view handed to InTx callbacks. Lock methods take
// exclusive row locks; if a lock cannot be acquired within the backend's
// lock-wait timeout the method fails with a contention error and the caller
// may retry the whole transaction.
type Tx interface {
	// LockPayment locks the payment row and returns it.
	LockPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error)

	// LockLease locks the lease row and returns it.
	LockLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error)

	// LockLeaseCharges locks every charge of the lease and returns them in
	// FIFO order: due date, then created at, then id, all ascending.
	LockLeaseCharges(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*charge.Charge, error)

	// LockCharges locks the named charges and returns them keyed by the
	// charge id string. Ids absent from the result did not exist in the org.
	LockCharges(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]*charge.Charge, error)

	// AllocatedForPayment returns the minor-unit sum already allocated from
	// the payment, as seen inside this transaction.
	AllocatedForPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (int64, error)

	// AllocatedForCharge returns the minor-unit sum already allocated to the
	// charge, as seen inside this transaction.
	AllocatedForCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (int64, error)

	// FindChargeByKey looks up a charge by its idempotency key
	// (org, lease, kind, due date).
	FindChargeByKey(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, dueDate types.Date) (*charge.Charge, error)

	// CreateAllocation appends an allocation fact.
	CreateAllocation(ctx context.Context, a *allocation.Allocation) error

	// CreateCharge appends a charge fact inside the transaction.
	CreateCharge(ctx context.Context, c *charge.Charge) error
}
