// Package sqlite provides the SQLite Store for RentLedger, built on
// database/sql with the mattn/go-sqlite3 driver.
//
// SQLite has one writer at a time, so transactional isolation comes from
// BEGIN IMMEDIATE rather than row locks: InTx takes the database write lock
// up front and every Tx lock method is a plain read under it. A second
// writer waits up to the busy timeout and then fails as retryable
// contention. Due dates are stored as ISO 8601 TEXT so lexicographic
// comparison matches calendar order; paid-at and created-at are TIMESTAMP
// columns handled by the driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/types"
)

// DefaultBusyTimeout bounds how long a writer waits for the database write
// lock before failing with SQLITE_BUSY.
const DefaultBusyTimeout = 2 * time.Second

// Option configures the sqlite store.
type Option func(*Store)

// WithBusyTimeout overrides the write lock wait timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database file at path. Use ":memory:" for an
// in-process throwaway database.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate",
		path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	s.db = db
	return s, nil
}

// mapError translates driver errors into rentledger sentinels. Errors that
// are not recognizable driver failures pass through untouched so domain
// errors raised inside InTx keep their identity.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return rentledger.ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return rentledger.ErrContention
		case sqlite3.ErrConstraint:
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return rentledger.ErrAlreadyExists
			case sqlite3.ErrConstraintCheck:
				return rentledger.ErrNonPositiveAmount
			}
		}
	}
	return err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ==================== Charge methods ====================

const chargeCols = "id, org_id, lease_id, kind, amount_minor, currency, due_date, note, created_by, created_at"

const insertChargeSQL = `INSERT INTO rentledger_charges
    (id, org_id, lease_id, kind, amount_minor, currency, due_date, note, created_by, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertCharge(ctx context.Context, ex execer, c *charge.Charge) error {
	_, err := ex.ExecContext(ctx, insertChargeSQL,
		c.ID.String(), c.OrgID.String(), c.LeaseID.String(), string(c.Kind),
		c.Amount.Amount, c.Amount.Currency, c.DueDate.String(),
		c.Note, c.CreatedBy, c.CreatedAt)
	return mapError(err)
}

func scanCharge(r rowScanner) (*charge.Charge, error) {
	var (
		idStr, orgStr, leaseStr          string
		kind, currency, due              string
		note, createdBy                  string
		amount                           int64
		createdAt                        time.Time
	)
	err := r.Scan(&idStr, &orgStr, &leaseStr, &kind, &amount, &currency, &due, &note, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}

	chargeID, err := id.Parse(idStr)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(orgStr)
	if err != nil {
		return nil, err
	}
	leaseID, err := id.Parse(leaseStr)
	if err != nil {
		return nil, err
	}
	dueDate, err := types.ParseDate(due)
	if err != nil {
		return nil, err
	}

	return &charge.Charge{
		ID:        chargeID,
		OrgID:     orgID,
		LeaseID:   leaseID,
		Kind:      charge.Kind(kind),
		Amount:    types.NewMoney(amount, currency),
		DueDate:   dueDate,
		Note:      note,
		CreatedBy: createdBy,
		CreatedAt: createdAt,
	}, nil
}

func (s *Store) CreateCharge(ctx context.Context, c *charge.Charge) error {
	return insertCharge(ctx, s.db, c)
}

func (s *Store) GetCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (*charge.Charge, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+chargeCols+" FROM rentledger_charges WHERE id = ? AND org_id = ?",
		chargeID.String(), orgID.String())
	c, err := scanCharge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rentledger.ErrChargeNotFound
		}
		return nil, mapError(err)
	}
	return c, nil
}

func (s *Store) ListCharges(ctx context.Context, orgID id.OrgID, opts charge.ListOpts) ([]*charge.Charge, error) {
	return queryCharges(ctx, s.db, orgID, opts)
}

func queryCharges(ctx context.Context, q querier, orgID id.OrgID, opts charge.ListOpts) ([]*charge.Charge, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + chargeCols + " FROM rentledger_charges WHERE org_id = ?")
	args := []any{orgID.String()}

	if !opts.LeaseID.IsNil() {
		sb.WriteString(" AND lease_id = ?")
		args = append(args, opts.LeaseID.String())
	}
	if opts.Kind != "" {
		sb.WriteString(" AND kind = ?")
		args = append(args, string(opts.Kind))
	}
	if !opts.DueFrom.IsZero() {
		sb.WriteString(" AND due_date >= ?")
		args = append(args, opts.DueFrom.String())
	}
	if !opts.DueTo.IsZero() {
		sb.WriteString(" AND due_date <= ?")
		args = append(args, opts.DueTo.String())
	}

	sb.WriteString(" ORDER BY due_date ASC, created_at ASC, id ASC")
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*charge.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (s *Store) ListChargesDueBy(ctx context.Context, orgID id.OrgID, asOf types.Date) ([]*charge.Charge, error) {
	return s.ListCharges(ctx, orgID, charge.ListOpts{DueTo: asOf})
}

func (s *Store) ListChargesDueBetween(ctx context.Context, orgID id.OrgID, kind charge.Kind, from, to types.Date) ([]*charge.Charge, error) {
	return s.ListCharges(ctx, orgID, charge.ListOpts{Kind: kind, DueFrom: from, DueTo: to})
}

// ==================== Payment methods ====================

const paymentCols = "id, org_id, lease_id, amount_minor, currency, paid_at, method, external_ref, note, created_by, created_at"

func scanPayment(r rowScanner) (*payment.Payment, error) {
	var (
		idStr, orgStr, leaseStr      string
		currency, method             string
		externalRef, note, createdBy string
		amount                       int64
		paidAt, createdAt            time.Time
	)
	err := r.Scan(&idStr, &orgStr, &leaseStr, &amount, &currency, &paidAt, &method, &externalRef, &note, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}

	paymentID, err := id.Parse(idStr)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(orgStr)
	if err != nil {
		return nil, err
	}
	leaseID, err := id.Parse(leaseStr)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		ID:          paymentID,
		OrgID:       orgID,
		LeaseID:     leaseID,
		Amount:      types.NewMoney(amount, currency),
		PaidAt:      paidAt,
		Method:      payment.Method(method),
		ExternalRef: externalRef,
		Note:        note,
		CreatedBy:   createdBy,
		CreatedAt:   createdAt,
	}, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rentledger_payments
    (id, org_id, lease_id, amount_minor, currency, paid_at, method, external_ref, note, created_by, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.OrgID.String(), p.LeaseID.String(),
		p.Amount.Amount, p.Amount.Currency, p.PaidAt.UTC(),
		string(p.Method), p.ExternalRef, p.Note, p.CreatedBy, p.CreatedAt)
	return mapError(err)
}

func (s *Store) GetPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	row := s.db.QueryRowContext(ctx,
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

func (s *Store) ListPayments(ctx context.Context, orgID id.OrgID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + paymentCols + " FROM rentledger_payments WHERE org_id = ?")
	args := []any{orgID.String()}

	if !opts.LeaseID.IsNil() {
		sb.WriteString(" AND lease_id = ?")
		args = append(args, opts.LeaseID.String())
	}
	if opts.Method != "" {
		sb.WriteString(" AND method = ?")
		args = append(args, string(opts.Method))
	}
	if !opts.PaidFrom.IsZero() {
		sb.WriteString(" AND paid_at >= ?")
		args = append(args, opts.PaidFrom.UTC())
	}
	if !opts.PaidTo.IsZero() {
		sb.WriteString(" AND paid_at <= ?")
		args = append(args, opts.PaidTo.UTC())
	}

	sb.WriteString(" ORDER BY paid_at ASC, created_at ASC, id ASC")
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// ==================== Allocation aggregates ====================

func (s *Store) SumAllocationsByCharge(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]int64, error) {
	return sumAllocationsBy(ctx, s.db, orgID, "charge_id", chargeIDs)
}

func (s *Store) SumAllocationsByPayment(ctx context.Context, orgID id.OrgID, paymentIDs []id.PaymentID) (map[string]int64, error) {
	return sumAllocationsBy(ctx, s.db, orgID, "payment_id", paymentIDs)
}

func sumAllocationsBy(ctx context.Context, q querier, orgID id.OrgID, column string, ids []id.ID) (map[string]int64, error) {
	sums := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return sums, nil
	}

	args := []any{orgID.String()}
	placeholders := make([]string, 0, len(ids))
	for _, v := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, v.String())
	}

	query := fmt.Sprintf(
		"SELECT %s, COALESCE(SUM(amount_minor), 0) FROM rentledger_allocations WHERE org_id = ? AND %s IN (%s) GROUP BY %s",
		column, column, strings.Join(placeholders, ", "), column)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var total int64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, err
		}
		sums[key] = total
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return sums, nil
}

func (s *Store) SumPayments(ctx context.Context, orgID id.OrgID) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_minor), 0) FROM rentledger_payments WHERE org_id = ?",
		orgID.String()).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (s *Store) SumAllocations(ctx context.Context, orgID id.OrgID) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_minor), 0) FROM rentledger_allocations WHERE org_id = ?",
		orgID.String()).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (s *Store) ListAllocations(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*allocation.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.id, a.org_id, a.payment_id, a.charge_id, a.amount_minor, a.currency, a.created_at
FROM rentledger_allocations AS a
JOIN rentledger_charges AS c ON c.id = a.charge_id
WHERE a.org_id = ? AND c.lease_id = ?
ORDER BY a.created_at ASC, a.id ASC`,
		orgID.String(), leaseID.String())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*allocation.Allocation
	for rows.Next() {
		var (
			idStr, orgStr, paymentStr, chargeStr, currency string
			amount                                         int64
			createdAt                                      time.Time
		)
		if err := rows.Scan(&idStr, &orgStr, &paymentStr, &chargeStr, &amount, &currency, &createdAt); err != nil {
			return nil, err
		}

		allocID, err := id.Parse(idStr)
		if err != nil {
			return nil, err
		}
		allocOrgID, err := id.Parse(orgStr)
		if err != nil {
			return nil, err
		}
		paymentID, err := id.Parse(paymentStr)
		if err != nil {
			return nil, err
		}
		chargeID, err := id.Parse(chargeStr)
		if err != nil {
			return nil, err
		}

		result = append(result, &allocation.Allocation{
			ID:        allocID,
			OrgID:     allocOrgID,
			PaymentID: paymentID,
			ChargeID:  chargeID,
			Amount:    types.NewMoney(amount, currency),
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// ==================== Lease directory methods ====================

const leaseCols = "id, org_id, unit_id, start_date, end_date, rent_amount_minor, rent_currency, rent_due_day, status, created_at, updated_at"

func scanLease(r rowScanner) (*lease.Lease, error) {
	var (
		idStr, orgStr, unitStr, startStr string
		endStr                           sql.NullString
		rentCurrency, status             string
		rentAmount                       int64
		rentDueDay                       int
		createdAt, updatedAt             time.Time
	)
	err := r.Scan(&idStr, &orgStr, &unitStr, &startStr, &endStr, &rentAmount, &rentCurrency, &rentDueDay, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	leaseID, err := id.Parse(idStr)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(orgStr)
	if err != nil {
		return nil, err
	}
	var unitID id.UnitID
	if unitStr != "" {
		unitID, err = id.Parse(unitStr)
		if err != nil {
			return nil, err
		}
	}
	startDate, err := types.ParseDate(startStr)
	if err != nil {
		return nil, err
	}
	var endDate types.Date
	if endStr.Valid && endStr.String != "" {
		endDate, err = types.ParseDate(endStr.String)
		if err != nil {
			return nil, err
		}
	}

	l := &lease.Lease{
		ID:         leaseID,
		OrgID:      orgID,
		UnitID:     unitID,
		StartDate:  startDate,
		EndDate:    endDate,
		RentAmount: types.NewMoney(rentAmount, rentCurrency),
		RentDueDay: rentDueDay,
		Status:     lease.Status(status),
	}
	l.CreatedAt = createdAt
	l.UpdatedAt = updatedAt
	return l, nil
}

func leaseEndArg(l *lease.Lease) any {
	if l.EndDate.IsZero() {
		return nil
	}
	return l.EndDate.String()
}

func (s *Store) CreateLease(ctx context.Context, l *lease.Lease) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rentledger_leases
    (id, org_id, unit_id, start_date, end_date, rent_amount_minor, rent_currency, rent_due_day, status, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.OrgID.String(), l.UnitID.String(),
		l.StartDate.String(), leaseEndArg(l),
		l.RentAmount.Amount, l.RentAmount.Currency, l.RentDueDay,
		string(l.Status), l.CreatedAt, l.UpdatedAt)
	return mapError(err)
}

func (s *Store) GetLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	row := s.db.QueryRowContext(ctx,
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

func (s *Store) ListLeases(ctx context.Context, orgID id.OrgID, opts lease.ListOpts) ([]*lease.Lease, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + leaseCols + " FROM rentledger_leases WHERE org_id = ?")
	args := []any{orgID.String()}

	if opts.Status != "" {
		sb.WriteString(" AND status = ?")
		args = append(args, string(opts.Status))
	}
	if !opts.UnitID.IsNil() {
		sb.WriteString(" AND unit_id = ?")
		args = append(args, opts.UnitID.String())
	}

	sb.WriteString(" ORDER BY id ASC")
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*lease.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (s *Store) UpdateLease(ctx context.Context, l *lease.Lease) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rentledger_leases SET
    unit_id = ?, start_date = ?, end_date = ?, rent_amount_minor = ?,
    rent_currency = ?, rent_due_day = ?, status = ?, updated_at = ?
    WHERE id = ? AND org_id = ?`,
		l.UnitID.String(), l.StartDate.String(), leaseEndArg(l),
		l.RentAmount.Amount, l.RentAmount.Currency, l.RentDueDay,
		string(l.Status), time.Now().UTC(),
		l.ID.String(), l.OrgID.String())
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rentledger.ErrLeaseNotFound
	}
	return nil
}

// ==================== Core methods ====================

// Migrate applies pending schema migrations, tracking applied versions in
// rentledger_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS rentledger_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`)
	if err != nil {
		return fmt.Errorf("%w: %v", rentledger.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("%w: %s: %v", rentledger.ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rentledger_migrations WHERE version = ?", m.Version).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO rentledger_migrations (version, name) VALUES (?, ?)", m.Version, m.Name)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
