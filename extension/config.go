package extension

import "time"

// Config holds the RentLedger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.rentledger" or "rentledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend when none is provided
	// programmatically: "memory", "postgres", or "sqlite" (default: "memory").
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the postgres or sqlite driver.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// DefaultCurrency is reported for derived totals when an org has no
	// facts yet (default: "usd").
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency" yaml:"default_currency"`

	// LockTimeout bounds how long a transaction waits for a contended
	// payment or lease row lock before failing as retryable (default: 2s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:          "memory",
		DefaultCurrency: "usd",
		LockTimeout:     2 * time.Second,
	}
}
