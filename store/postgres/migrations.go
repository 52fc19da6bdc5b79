package postgres

// migration is one ordered schema step, applied exactly once and tracked in
// rentledger_migrations.
type migration struct {
	Version string
	Name    string
	SQL     string
}

// migrations is the ordered schema history for the postgres store. Append
// only; never edit an applied entry.
var migrations = []migration{
	{
		Version: "20260101000001",
		Name:    "create_rentledger_leases",
		SQL: `
CREATE TABLE IF NOT EXISTS rentledger_leases (
    id                TEXT PRIMARY KEY,
    org_id            TEXT NOT NULL,
    unit_id           TEXT NOT NULL DEFAULT '',
    start_date        DATE NOT NULL,
    end_date          DATE,
    rent_amount_minor BIGINT NOT NULL DEFAULT 0,
    rent_currency     TEXT NOT NULL DEFAULT '',
    rent_due_day      INT NOT NULL DEFAULT 1,
    status            TEXT NOT NULL DEFAULT 'draft',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_rentledger_leases_org ON rentledger_leases (org_id);
CREATE INDEX IF NOT EXISTS idx_rentledger_leases_org_status ON rentledger_leases (org_id, status);
`,
	},
	{
		Version: "20260101000002",
		Name:    "create_rentledger_charges",
		SQL: `
CREATE TABLE IF NOT EXISTS rentledger_charges (
    id           TEXT PRIMARY KEY,
    org_id       TEXT NOT NULL,
    lease_id     TEXT NOT NULL,
    kind         TEXT NOT NULL,
    amount_minor BIGINT NOT NULL,
    currency     TEXT NOT NULL,
    due_date     DATE NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    created_by   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT rentledger_charges_amount_positive CHECK (amount_minor > 0),
    CONSTRAINT rentledger_charges_kind_known CHECK (kind IN ('rent', 'late_fee', 'misc'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rentledger_charges_key
    ON rentledger_charges (org_id, lease_id, kind, due_date);
CREATE INDEX IF NOT EXISTS idx_rentledger_charges_org_lease
    ON rentledger_charges (org_id, lease_id, due_date);
CREATE INDEX IF NOT EXISTS idx_rentledger_charges_org_due
    ON rentledger_charges (org_id, due_date);
`,
	},
	{
		Version: "20260101000003",
		Name:    "create_rentledger_payments",
		SQL: `
CREATE TABLE IF NOT EXISTS rentledger_payments (
    id           TEXT PRIMARY KEY,
    org_id       TEXT NOT NULL,
    lease_id     TEXT NOT NULL,
    amount_minor BIGINT NOT NULL,
    currency     TEXT NOT NULL,
    paid_at      TIMESTAMPTZ NOT NULL,
    method       TEXT NOT NULL DEFAULT 'other',
    external_ref TEXT NOT NULL DEFAULT '',
    note         TEXT NOT NULL DEFAULT '',
    created_by   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT rentledger_payments_amount_positive CHECK (amount_minor > 0)
);

CREATE INDEX IF NOT EXISTS idx_rentledger_payments_org_lease
    ON rentledger_payments (org_id, lease_id, paid_at);
`,
	},
	{
		Version: "20260101000004",
		Name:    "create_rentledger_allocations",
		SQL: `
CREATE TABLE IF NOT EXISTS rentledger_allocations (
    id           TEXT PRIMARY KEY,
    org_id       TEXT NOT NULL,
    payment_id   TEXT NOT NULL REFERENCES rentledger_payments (id),
    charge_id    TEXT NOT NULL REFERENCES rentledger_charges (id),
    amount_minor BIGINT NOT NULL,
    currency     TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT rentledger_allocations_amount_positive CHECK (amount_minor > 0)
);

CREATE INDEX IF NOT EXISTS idx_rentledger_allocations_payment
    ON rentledger_allocations (org_id, payment_id);
CREATE INDEX IF NOT EXISTS idx_rentledger_allocations_charge
    ON rentledger_allocations (org_id, charge_id);
`,
	},
}
