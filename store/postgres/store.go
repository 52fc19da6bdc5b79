// Package postgres provides the PostgreSQL Store for RentLedger, built on
// GORM. Row locks use SELECT ... FOR UPDATE with a per-transaction
// lock_timeout, so contended transactions fail fast as retryable instead of
// queueing behind long holders.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/types"
)

// DefaultLockTimeout bounds how long a transaction waits for a contended row
// lock before postgres aborts it with a lock_not_available error.
const DefaultLockTimeout = 2 * time.Second

// Option configures the postgres store.
type Option func(*Store)

// WithLockTimeout overrides the per-transaction lock wait timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to postgres and returns a Store with pooled connections.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db, opts...), nil
}

// New wraps an existing gorm.DB as a Store.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mapError translates driver errors into rentledger sentinels. Errors that
// are not recognizable driver failures pass through untouched so domain
// errors raised inside InTx keep their identity.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rentledger.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return rentledger.ErrAlreadyExists
		case "23514": // check_violation
			return rentledger.ErrNonPositiveAmount
		case "55P03": // lock_not_available
			return rentledger.ErrContention
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return rentledger.ErrContention
		}
	}
	return err
}

// ==================== Charge methods ====================

func (s *Store) CreateCharge(ctx context.Context, c *charge.Charge) error {
	if err := s.db.WithContext(ctx).Create(toChargeModel(c)).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (*charge.Charge, error) {
	var m chargeModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", chargeID.String(), orgID.String()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rentledger.ErrChargeNotFound
		}
		return nil, mapError(err)
	}
	return fromChargeModel(&m)
}

func (s *Store) ListCharges(ctx context.Context, orgID id.OrgID, opts charge.ListOpts) ([]*charge.Charge, error) {
	q := s.db.WithContext(ctx).
		Model(&chargeModel{}).
		Where("org_id = ?", orgID.String())

	if !opts.LeaseID.IsNil() {
		q = q.Where("lease_id = ?", opts.LeaseID.String())
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if !opts.DueFrom.IsZero() {
		q = q.Where("due_date >= ?", opts.DueFrom.Time())
	}
	if !opts.DueTo.IsZero() {
		q = q.Where("due_date <= ?", opts.DueTo.Time())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var models []chargeModel
	if err := q.Order("due_date ASC, created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, mapError(err)
	}
	return chargesFromModels(models)
}

func (s *Store) ListChargesDueBy(ctx context.Context, orgID id.OrgID, asOf types.Date) ([]*charge.Charge, error) {
	return s.ListCharges(ctx, orgID, charge.ListOpts{DueTo: asOf})
}

func (s *Store) ListChargesDueBetween(ctx context.Context, orgID id.OrgID, kind charge.Kind, from, to types.Date) ([]*charge.Charge, error) {
	return s.ListCharges(ctx, orgID, charge.ListOpts{Kind: kind, DueFrom: from, DueTo: to})
}

func chargesFromModels(models []chargeModel) ([]*charge.Charge, error) {
	result := make([]*charge.Charge, 0, len(models))
	for i := range models {
		c, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// ==================== Payment methods ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if err := s.db.WithContext(ctx).Create(toPaymentModel(p)).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", paymentID.String(), orgID.String()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rentledger.ErrPaymentNotFound
		}
		return nil, mapError(err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, orgID id.OrgID, opts payment.ListOpts) ([]*payment.Payment, error) {
	q := s.db.WithContext(ctx).
		Model(&paymentModel{}).
		Where("org_id = ?", orgID.String())

	if !opts.LeaseID.IsNil() {
		q = q.Where("lease_id = ?", opts.LeaseID.String())
	}
	if opts.Method != "" {
		q = q.Where("method = ?", string(opts.Method))
	}
	if !opts.PaidFrom.IsZero() {
		q = q.Where("paid_at >= ?", opts.PaidFrom)
	}
	if !opts.PaidTo.IsZero() {
		q = q.Where("paid_at <= ?", opts.PaidTo)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var models []paymentModel
	if err := q.Order("paid_at ASC, created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, mapError(err)
	}

	result := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// ==================== Allocation aggregates ====================

type sumRow struct {
	Key   string `gorm:"column:key"`
	Total int64  `gorm:"column:total"`
}

func (s *Store) SumAllocationsByCharge(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]int64, error) {
	return s.sumAllocationsBy(ctx, orgID, "charge_id", idStrings(chargeIDs))
}

func (s *Store) SumAllocationsByPayment(ctx context.Context, orgID id.OrgID, paymentIDs []id.PaymentID) (map[string]int64, error) {
	return s.sumAllocationsBy(ctx, orgID, "payment_id", idStrings(paymentIDs))
}

func (s *Store) sumAllocationsBy(ctx context.Context, orgID id.OrgID, column string, ids []string) (map[string]int64, error) {
	sums := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return sums, nil
	}

	var rows []sumRow
	err := s.db.WithContext(ctx).
		Model(&allocationModel{}).
		Select(column+" AS key, COALESCE(SUM(amount_minor), 0) AS total").
		Where("org_id = ? AND "+column+" IN ?", orgID.String(), ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}

	for _, r := range rows {
		sums[r.Key] = r.Total
	}
	return sums, nil
}

func (s *Store) SumPayments(ctx context.Context, orgID id.OrgID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&paymentModel{}).
		Where("org_id = ?", orgID.String()).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (s *Store) SumAllocations(ctx context.Context, orgID id.OrgID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&allocationModel{}).
		Where("org_id = ?", orgID.String()).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (s *Store) ListAllocations(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*allocation.Allocation, error) {
	var models []allocationModel
	err := s.db.WithContext(ctx).
		Table("rentledger_allocations AS a").
		Select("a.*").
		Joins("JOIN rentledger_charges AS c ON c.id = a.charge_id").
		Where("a.org_id = ? AND c.lease_id = ?", orgID.String(), leaseID.String()).
		Order("a.created_at ASC, a.id ASC").
		Find(&models).Error
	if err != nil {
		return nil, mapError(err)
	}

	result := make([]*allocation.Allocation, 0, len(models))
	for i := range models {
		a, err := fromAllocationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// ==================== Lease directory methods ====================

func (s *Store) CreateLease(ctx context.Context, l *lease.Lease) error {
	if err := s.db.WithContext(ctx).Create(toLeaseModel(l)).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	var m leaseModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", leaseID.String(), orgID.String()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rentledger.ErrLeaseNotFound
		}
		return nil, mapError(err)
	}
	return fromLeaseModel(&m)
}

func (s *Store) ListLeases(ctx context.Context, orgID id.OrgID, opts lease.ListOpts) ([]*lease.Lease, error) {
	q := s.db.WithContext(ctx).
		Model(&leaseModel{}).
		Where("org_id = ?", orgID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.UnitID.IsNil() {
		q = q.Where("unit_id = ?", opts.UnitID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var models []leaseModel
	if err := q.Order("id ASC").Find(&models).Error; err != nil {
		return nil, mapError(err)
	}

	result := make([]*lease.Lease, 0, len(models))
	for i := range models {
		l, err := fromLeaseModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

func (s *Store) UpdateLease(ctx context.Context, l *lease.Lease) error {
	m := toLeaseModel(l)
	m.UpdatedAt = time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&leaseModel{}).
		Where("id = ? AND org_id = ?", m.ID, m.OrgID).
		Updates(m)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return rentledger.ErrLeaseNotFound
	}
	return nil
}

// ==================== Transactions ====================

// InTx runs fn in a single database transaction with the store's lock
// timeout applied via SET LOCAL, so it resets automatically at commit or
// rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if err := gtx.Exec(timeout).Error; err != nil {
			return err
		}
		return fn(&pgTx{db: gtx})
	})
	return mapError(err)
}

type pgTx struct {
	db *gorm.DB
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND org_id = ?", paymentID.String(), orgID.String()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rentledger.ErrPaymentNotFound
		}
		return nil, mapError(err)
	}
	return fromPaymentModel(&m)
}

func (t *pgTx) LockLease(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) (*lease.Lease, error) {
	var m leaseModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND org_id = ?", leaseID.String(), orgID.String()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rentledger.ErrLeaseNotFound
		}
		return nil, mapError(err)
	}
	return fromLeaseModel(&m)
}

// LockLeaseCharges locks the lease row first, then the charge set. The lease
// row lock serializes against concurrent rent generation, which inserts new
// charge rows that FOR UPDATE on existing rows alone would not block.
func (t *pgTx) LockLeaseCharges(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID) ([]*charge.Charge, error) {
	if _, err := t.LockLease(ctx, orgID, leaseID); err != nil {
		return nil, err
	}

	var models []chargeModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND lease_id = ?", orgID.String(), leaseID.String()).
		Order("due_date ASC, created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, mapError(err)
	}
	return chargesFromModels(models)
}

func (t *pgTx) LockCharges(ctx context.Context, orgID id.OrgID, chargeIDs []id.ChargeID) (map[string]*charge.Charge, error) {
	result := make(map[string]*charge.Charge, len(chargeIDs))
	if len(chargeIDs) == 0 {
		return result, nil
	}

	var models []chargeModel
	// Ordering by id keeps lock acquisition deterministic across
	// transactions touching overlapping charge sets.
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id IN ?", orgID.String(), idStrings(chargeIDs)).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, mapError(err)
	}

	for i := range models {
		c, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[c.ID.String()] = c
	}
	return result, nil
}

func (t *pgTx) AllocatedForPayment(ctx context.Context, orgID id.OrgID, paymentID id.PaymentID) (int64, error) {
	var total int64
	err := t.db.WithContext(ctx).
		Model(&allocationModel{}).
		Where("org_id = ? AND payment_id = ?", orgID.String(), paymentID.String()).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (t *pgTx) AllocatedForCharge(ctx context.Context, orgID id.OrgID, chargeID id.ChargeID) (int64, error) {
	var total int64
	err := t.db.WithContext(ctx).
		Model(&allocationModel{}).
		Where("org_id = ? AND charge_id = ?", orgID.String(), chargeID.String()).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func (t *pgTx) FindChargeByKey(ctx context.Context, orgID id.OrgID, leaseID id.LeaseID, kind charge.Kind, dueDate types.Date) (*charge.Charge, error) {
	var m chargeModel
	err := t.db.WithContext(ctx).
		Where("org_id = ? AND lease_id = ? AND kind = ? AND due_date = ?",
			orgID.String(), leaseID.String(), string(kind), dueDate.Time()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rentledger.ErrChargeNotFound
		}
		return nil, mapError(err)
	}
	return fromChargeModel(&m)
}

func (t *pgTx) CreateAllocation(ctx context.Context, a *allocation.Allocation) error {
	if err := t.db.WithContext(ctx).Create(toAllocationModel(a)).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (t *pgTx) CreateCharge(ctx context.Context, c *charge.Charge) error {
	if err := t.db.WithContext(ctx).Create(toChargeModel(c)).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// ==================== Core methods ====================

// Migrate applies pending schema migrations, tracking applied versions in
// rentledger_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).Exec(`
CREATE TABLE IF NOT EXISTS rentledger_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`).Error
	if err != nil {
		return fmt.Errorf("%w: %v", rentledger.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		applyErr := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			var count int64
			if err := gtx.Table("rentledger_migrations").
				Where("version = ?", m.Version).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}

			if err := gtx.Exec(m.SQL).Error; err != nil {
				return err
			}
			return gtx.Exec(
				"INSERT INTO rentledger_migrations (version, name) VALUES (?, ?)",
				m.Version, m.Name,
			).Error
		})
		if applyErr != nil {
			return fmt.Errorf("%w: %s: %v", rentledger.ErrMigrationFailed, m.Name, applyErr)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func idStrings(ids []id.ID) []string {
	result := make([]string, 0, len(ids))
	for _, v := range ids {
		result = append(result, v.String())
	}
	return result
}
