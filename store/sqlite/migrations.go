package sqlite

// migration is one ordered schema step, applied exactly once and tracked in
// rentledger_migrations.
type migration struct {
	Version string
	Name    string
	SQL     string
}

// migrations is the ordered schema history for the sqlite store. Dates are
// ISO 8601 TEXT so lexicographic comparison matches calendar order. Append
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
    start_date        TEXT NOT NULL,
    end_date          TEXT,
    rent_amount_minor INTEGER NOT NULL DEFAULT 0,
    rent_currency     TEXT NOT NULL DEFAULT '',
    rent_due_day      INTEGER NOT NULL DEFAULT 1,
    status            TEXT NOT NULL DEFAULT 'draft',
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL
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
    kind         TEXT NOT NULL CHECK (kind IN ('rent', 'late_fee', 'misc')),
    amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
    currency     TEXT NOT NULL,
    due_date     TEXT NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    created_by   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMP NOT NULL
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
    amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
    currency     TEXT NOT NULL,
    paid_at      TIMESTAMP NOT NULL,
    method       TEXT NOT NULL DEFAULT 'other',
    external_ref TEXT NOT NULL DEFAULT '',
    note         TEXT NOT NULL DEFAULT '',
    created_by   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMP NOT NULL
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
    amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
    currency     TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rentledger_allocations_payment
    ON rentledger_allocations (org_id, payment_id);
CREATE INDEX IF NOT EXISTS idx_rentledger_allocations_charge
    ON rentledger_allocations (org_id, charge_id);
`,
	},
}
