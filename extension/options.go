package extension

import (
	"time"

	rentledger "github.com/xraph/rentledger"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/store"
)

// Option configures the RentLedger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a rentledger.Option through to the underlying engine.
func WithLedgerOption(opt rentledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, rentledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDriver selects the store backend built from config.
func WithDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.config.DSN = dsn
	}
}

// WithDefaultCurrency sets the currency reported for empty derived totals.
func WithDefaultCurrency(currency string) Option {
	return func(e *Extension) { e.config.DefaultCurrency = currency }
}

// WithLockTimeout sets the row lock wait timeout for config-built stores.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
