package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/types"
)

// InTx runs fn in a single write transaction. The _txlock=immediate DSN
// parameter makes BeginTx issue BEGIN IMMEDIATE, taking the database write
// lock before fn runs. A concurrent writer blocks on that lock for the busy
// timeout and then fails with SQLITE_BUSY, surfaced as a retryable
// contention error.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// sqliteTx implements store.Tx over a write transaction. The database-wide
// write lock is already held, so the lock methods are plain reads.
type sqliteTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) LockPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+paymentCols+" FROM rentledger_payments WHERE id = ? AND org_id = ?",
		paymentID.String(), orgID.String())
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rentledger.ErrPaymentNotFound
		}
		return nil, mapError(err)
	}
	return p, nil
}

func (t *sqliteTx) LockLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+leaseCols+" FROM rentledger_leases WHERE id = ? AND org_id = ?",
		leaseID.String(), orgID.String())
	l, err := scanLease(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rentledger.ErrLeaseNotFound
		}
		return nil, mapError(err)
	}
	return l, nil
}

func (t *sqliteTx) LockLeaseCharges(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*charge.Charge, error) {
	if _, err := t.LockLease(ctx, orgID, leaseID); err != nil {
		return nil, err
	}
	return queryCharges(ctx, t.tx, orgID, charge.ListOpts{LeaseID: leaseID})
}

func (t *sqliteTx) LockCharges(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]*charge.Charge, error) {
	result := make(map[string]*charge.Charge, len(chargeIDs))
	for _, chargeID := range chargeIDs {
		if _, ok := result[chargeID.String()]; ok {
			continue
		}

		row := t.tx.QueryRowContext(ctx,
			"SELECT "+chargeCols+" FROM rentledger_charges WHERE id = ? AND org_id = ?",
			chargeID.String(), orgID.String())
		c, err := scanCharge(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, mapError(err)
		}
		result[c.ID.String()] = c
	}
	return result, nil
}

func (t *sqliteTx) AllocatedForPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_minor), 0) FROM rentledger_allocations WHERE org_id = ? AND payment_id = ?",
		orgID.String(), paymentID.String()).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (t *sqliteTx) AllocatedForCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_minor), 0) FROM rentledger_allocations WHERE org_id = ? AND charge_id = ?",
		orgID.String(), chargeID.String()).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (t *sqliteTx) FindChargeByKey(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, dueDate types.Date) (*charge.Charge, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+chargeCols+" FROM rentledger_charges WHERE org_id = ? AND lease_id = ? AND kind = ? AND due_date = ?",
		orgID.String(), leaseID.String(), string(kind), dueDate.String())
	c, err := scanCharge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rentledger.ErrChargeNotFound
		}
		return nil, mapError(err)
	}
	return c, nil
}

func (t *sqliteTx) CreateAllocation(ctx context.Context, a *allocation.Allocation) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO rentledger_allocations
    (id, org_id, payment_id, charge_id, amount_minor, currency, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OrgID.String(), a.PaymentID.String(), a.ChargeID.String(),
		a.Amount.Amount, a.Amount.Currency, a.CreatedAt)
	return mapError(err)
}

func (t *sqliteTx) CreateCharge(ctx context.Context, c *charge.Charge) error {
	return insertCharge(ctx, t.tx, c)
}
