package postgres

import (
	"time"

	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/lease"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/types"
)

// ==================== Charge model ====================

type chargeModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	OrgID       string     `gorm:"column:org_id;not null"`
	LeaseID     string     `gorm:"column:lease_id;not null"`
	Kind        string     `gorm:"column:kind;not null"`
	AmountMinor int64      `gorm:"column:amount_minor;not null"`
	Currency    string     `gorm:"column:currency;not null"`
	DueDate     types.Date `gorm:"column:due_date;type:date;not null"`
	Note        string     `gorm:"column:note"`
	CreatedBy   string     `gorm:"column:created_by"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
}

func (chargeModel) TableName() string { return "rentledger_charges" }

func toChargeModel(c *charge.Charge) *chargeModel {
	return &chargeModel{
		ID:          c.ID.String(),
		OrgID:       c.OrgID.String(),
		LeaseID:     c.LeaseID.String(),
		Kind:        string(c.Kind),
		AmountMinor: c.Amount.Amount,
		Currency:    c.Amount.Currency,
		DueDate:     c.DueDate,
		Note:        c.Note,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
}

func fromChargeModel(m *chargeModel) (*charge.Charge, error) {
	chargeID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(m.OrgID)
	if err != nil {
		return nil, err
	}
	leaseID, err := id.Parse(m.LeaseID)
	if err != nil {
		return nil, err
	}

	return &charge.Charge{
		ID:        chargeID,
		OrgID:     orgID,
		LeaseID:   leaseID,
		Kind:      charge.Kind(m.Kind),
		Amount:    types.NewMoney(m.AmountMinor, m.Currency),
		DueDate:   m.DueDate,
		Note:      m.Note,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ==================== Payment model ====================

type paymentModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	OrgID       string    `gorm:"column:org_id;not null"`
	LeaseID     string    `gorm:"column:lease_id;not null"`
	AmountMinor int64     `gorm:"column:amount_minor;not null"`
	Currency    string    `gorm:"column:currency;not null"`
	PaidAt      time.Time `gorm:"column:paid_at;type:timestamptz;not null"`
	Method      string    `gorm:"column:method;not null"`
	ExternalRef string    `gorm:"column:external_ref"`
	Note        string    `gorm:"column:note"`
	CreatedBy   string    `gorm:"column:created_by"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (paymentModel) TableName() string { return "rentledger_payments" }

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:          p.ID.String(),
		OrgID:       p.OrgID.String(),
		LeaseID:     p.LeaseID.String(),
		AmountMinor: p.Amount.Amount,
		Currency:    p.Amount.Currency,
		PaidAt:      p.PaidAt,
		Method:      string(p.Method),
		ExternalRef: p.ExternalRef,
		Note:        p.Note,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(m.OrgID)
	if err != nil {
		return nil, err
	}
	leaseID, err := id.Parse(m.LeaseID)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		ID:          paymentID,
		OrgID:       orgID,
		LeaseID:     leaseID,
		Amount:      types.NewMoney(m.AmountMinor, m.Currency),
		PaidAt:      m.PaidAt,
		Method:      payment.Method(m.Method),
		ExternalRef: m.ExternalRef,
		Note:        m.Note,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// ==================== Allocation model ====================

type allocationModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	OrgID       string    `gorm:"column:org_id;not null"`
	PaymentID   string    `gorm:"column:payment_id;not null"`
	ChargeID    string    `gorm:"column:charge_id;not null"`
	AmountMinor int64     `gorm:"column:amount_minor;not null"`
	Currency    string    `gorm:"column:currency;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (allocationModel) TableName() string { return "rentledger_allocations" }

func toAllocationModel(a *allocation.Allocation) *allocationModel {
	return &allocationModel{
		ID:          a.ID.String(),
		OrgID:       a.OrgID.String(),
		PaymentID:   a.PaymentID.String(),
		ChargeID:    a.ChargeID.String(),
		AmountMinor: a.Amount.Amount,
		Currency:    a.Amount.Currency,
		CreatedAt:   a.CreatedAt,
	}
}

func fromAllocationModel(m *allocationModel) (*allocation.Allocation, error) {
	allocID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(m.OrgID)
	if err != nil {
		return nil, err
	}
	paymentID, err := id.Parse(m.PaymentID)
	if err != nil {
		return nil, err
	}
	chargeID, err := id.Parse(m.ChargeID)
	if err != nil {
		return nil, err
	}

	return &allocation.Allocation{
		ID:        allocID,
		OrgID:     orgID,
		PaymentID: paymentID,
		ChargeID:  chargeID,
		Amount:    types.NewMoney(m.AmountMinor, m.Currency),
		CreatedAt: m.CreatedAt,
	}, nil
}

// ==================== Lease model ====================

type leaseModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	OrgID           string     `gorm:"column:org_id;not null"`
	UnitID          string     `gorm:"column:unit_id"`
	StartDate       types.Date `gorm:"column:start_date;type:date;not null"`
	EndDate         types.Date `gorm:"column:end_date;type:date"`
	RentAmountMinor int64      `gorm:"column:rent_amount_minor;not null"`
	RentCurrency    string     `gorm:"column:rent_currency;not null"`
	RentDueDay      int        `gorm:"column:rent_due_day;not null"`
	Status          string     `gorm:"column:status;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null"`
}

func (leaseModel) TableName() string { return "rentledger_leases" }

func toLeaseModel(l *lease.Lease) *leaseModel {
	return &leaseModel{
		ID:              l.ID.String(),
		OrgID:           l.OrgID.String(),
		UnitID:          l.UnitID.String(),
		StartDate:       l.StartDate,
		EndDate:         l.EndDate,
		RentAmountMinor: l.RentAmount.Amount,
		RentCurrency:    l.RentAmount.Currency,
		RentDueDay:      l.RentDueDay,
		Status:          string(l.Status),
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func fromLeaseModel(m *leaseModel) (*lease.Lease, error) {
	leaseID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.Parse(m.OrgID)
	if err != nil {
		return nil, err
	}

	var unitID id.UnitID
	if m.UnitID != "" {
		unitID, err = id.Parse(m.UnitID)
		if err != nil {
			return nil, err
		}
	}

	l := &lease.Lease{
		ID:         leaseID,
		OrgID:      orgID,
		UnitID:     unitID,
		StartDate:  m.StartDate,
		EndDate:    m.EndDate,
		RentAmount: types.NewMoney(m.RentAmountMinor, m.RentCurrency),
		RentDueDay: m.RentDueDay,
		Status:     lease.Status(m.Status),
	}
	l.CreatedAt = m.CreatedAt
	l.UpdatedAt = m.UpdatedAt
	return l, nil
}
