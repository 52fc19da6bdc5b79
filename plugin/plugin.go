// Package plugin provides an extensible plugin system for RentLedger.
// Plugins can hook into ledger lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Fact hooks
// ──────────────────────────────────────────────────

// OnChargeCreated is called after a charge fact is committed.
type OnChargeCreated interface {
	Plugin
	OnChargeCreated(ctx context.Context, chg interface{}) error
}

// OnPaymentRecorded is called after a payment fact is committed.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, pmt interface{}) error
}

// OnAllocated is called after an allocation run commits. The result carries
// the allocations written; an idempotent no-op run is not emitted.
type OnAllocated interface {
	Plugin
	OnAllocated(ctx context.Context, result interface{}) error
}

// ──────────────────────────────────────────────────
// Rent posting hooks
// ──────────────────────────────────────────────────

// OnRentCharged is called after a monthly rent charge is generated for a
// lease. Idempotent replays that found an existing charge are not emitted.
type OnRentCharged interface {
	Plugin
	OnRentCharged(ctx context.Context, chg interface{}) error
}

// OnRentPosted is called after a batch rent posting run completes, with the
// run result including per-lease failures.
type OnRentPosted interface {
	Plugin
	OnRentPosted(ctx context.Context, result interface{}, elapsed time.Duration) error
}
