// Package extension provides the Forge extension adapter for RentLedger.
//
// It implements the forge.Extension interface to integrate RentLedger
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.rentledger" or
// "rentledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	rentledger "github.com/xraph/rentledger"
	"github.com/xraph/rentledger/store"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/store/postgres"
	"github.com/xraph/rentledger/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "rentledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Append-only rental billing ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts RentLedger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *rentledger.Ledger
	store      store.Store
	ledgerOpts []rentledger.Option
}

// New creates a new RentLedger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *rentledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	opts := e.buildLedgerOpts()

	eng := rentledger.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*rentledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("rentledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("rentledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs a store backend from the resolved config when no
// store was provided programmatically.
func (e *Extension) buildStore() (store.Store, error) {
	switch e.config.Driver {
	case "", "memory":
		return memory.New(memory.WithLockTimeout(e.config.LockTimeout)), nil
	case "postgres":
		return postgres.Open(e.config.DSN, postgres.WithLockTimeout(e.config.LockTimeout))
	case "sqlite":
		return sqlite.Open(e.config.DSN, sqlite.WithBusyTimeout(e.config.LockTimeout))
	default:
		return nil, fmt.Errorf("rentledger: unknown store driver %q", e.config.Driver)
	}
}

// buildLedgerOpts constructs rentledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []rentledger.Option {
	opts := make([]rentledger.Option, 0, len(e.ledgerOpts)+1)

	if e.config.DefaultCurrency != "" {
		opts = append(opts, rentledger.WithDefaultCurrency(e.config.DefaultCurrency))
	}

	opts = append(opts, e.ledgerOpts...)

	return opts
}

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("rentledger: configuration is required but not found in config files; " +
				"ensure 'extensions.rentledger' or 'rentledger' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("rentledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("default_currency", e.config.DefaultCurrency),
		forge.F("lock_timeout", e.config.LockTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.rentledger" first (namespaced pattern).
	if cm.IsSet("extensions.rentledger") {
		if err := cm.Bind("extensions.rentledger", &cfg); err == nil {
			e.Logger().Debug("rentledger: loaded config from file",
				forge.F("key", "extensions.rentledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("rentledger: failed to bind extensions.rentledger config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "rentledger" key.
	if cm.IsSet("rentledger") {
		if err := cm.Bind("rentledger", &cfg); err == nil {
			e.Logger().Debug("rentledger: loaded config from file",
				forge.F("key", "rentledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("rentledger: failed to bind rentledger config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" && programmaticConfig.DSN != "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.DefaultCurrency == "" && programmaticConfig.DefaultCurrency != "" {
		yamlConfig.DefaultCurrency = programmaticConfig.DefaultCurrency
	}
	if yamlConfig.LockTimeout == 0 && programmaticConfig.LockTimeout != 0 {
		yamlConfig.LockTimeout = programmaticConfig.LockTimeout
	}

	return e.mergeWithDefaults(yamlConfig)
}
