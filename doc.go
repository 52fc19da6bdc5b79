// Package rentledger provides an append-only rental billing ledger for Go applications.
//
// RentLedger is designed as a library, not a service. Import it directly into
// your Go application to track what each lease owes and has paid. It provides:
//
//   - Append-only charge and payment facts; nothing is updated in place
//   - FIFO and manual allocation of payments to charges under row locks
//   - Idempotent monthly rent generation keyed on (org, lease, kind, due date)
//   - Batch rent posting with per-lease failure isolation
//   - Derived statements, aging buckets, and an org dashboard; no stored balances
//   - Pluggable hooks for audit trails and metrics
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/rentledger"
//	    "github.com/xraph/rentledger/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.Open(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create the ledger engine
//	l := rentledger.New(store)
//
//	// Start it (runs migrations, initializes plugins)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Leases are the billing parties. Charges record amounts owed, payments
// record money received, and allocations link the two:
//
//	l.CreateLease(ctx, &lease.Lease{
//	    OrgID:      orgID,
//	    StartDate:  types.NewDate(2026, time.March, 1),
//	    RentAmount: types.USD(120000), // $1,200.00
//	    RentDueDay: 1,
//	    Status:     lease.StatusActive,
//	})
//
//	charge, _ := l.CreateCharge(ctx, &charge.Charge{
//	    OrgID:   orgID,
//	    LeaseID: leaseID,
//	    Kind:    charge.KindRent,
//	    Amount:  types.USD(120000),
//	    DueDate: types.NewDate(2026, time.March, 1),
//	})
//
// Recording a payment and applying it oldest-charge-first is one call:
//
//	p, result, _ := l.RecordPaymentAndAllocate(ctx, &payment.Payment{
//	    OrgID:   orgID,
//	    LeaseID: leaseID,
//	    Amount:  types.USD(150000),
//	    Method:  payment.MethodTransfer,
//	}, rentledger.AllocateFIFO)
//
// Balances are always derived from the facts at read time:
//
//	stmt, _ := l.LeaseStatement(ctx, orgID, leaseID)
//	fmt.Println(stmt.Totals.Balance)
//
// # Correctness
//
// All monetary amounts use integer arithmetic in minor units (cents for USD,
// pence for GBP). The allocation engine runs inside a single store
// transaction holding row locks on the payment and the lease's charges, so a
// payment can never be applied past its amount and a charge can never be
// paid past its balance, regardless of concurrency. Rent generation is
// idempotent: the charge key (org, lease, kind, due date) is unique in the
// store and re-posting a month returns the existing charge.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	lease_01h2xcejqtf2nbrexx3vqjhp41 // Lease ID
//	chg_01h2xcejqtf2nbrexx3vqjhp41   // Charge ID
//	pmt_01h455vb4pex5vsknk084sn02q   // Payment ID
//
// TypeIDs are K-sortable, so id order within equal timestamps matches
// creation order. FIFO allocation relies on this for its final tie-break.
package rentledger
