// Package observability provides a metrics extension for RentLedger that
// records ledger event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnChargeCreated   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded = (*MetricsExtension)(nil)
	_ plugin.OnAllocated       = (*MetricsExtension)(nil)
	_ plugin.OnRentCharged     = (*MetricsExtension)(nil)
	_ plugin.OnRentPosted      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as a Ledger plugin to automatically track billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Charge metrics
	ChargesCreated Counter
	ChargeAmount   Histogram

	// Payment metrics
	PaymentsRecorded Counter
	PaymentAmount    Histogram

	// Allocation metrics
	AllocationRuns     Counter
	AllocationsWritten Counter
	AllocationApplied  Histogram

	// Rent posting metrics
	RentChargesGenerated Counter
	PostingRuns          Counter
	PostingFailures      Counter
	PostingLatency       Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ChargesCreated: factory.Counter("rentledger.charge.created"),
		ChargeAmount:   factory.Histogram("rentledger.charge.amount"),

		PaymentsRecorded: factory.Counter("rentledger.payment.recorded"),
		PaymentAmount:    factory.Histogram("rentledger.payment.amount"),

		AllocationRuns:     factory.Counter("rentledger.allocation.runs"),
		AllocationsWritten: factory.Counter("rentledger.allocation.written"),
		AllocationApplied:  factory.Histogram("rentledger.allocation.applied_amount"),

		RentChargesGenerated: factory.Counter("rentledger.rent_charge.generated"),
		PostingRuns:          factory.Counter("rentledger.posting.runs"),
		PostingFailures:      factory.Counter("rentledger.posting.failures"),
		PostingLatency:       factory.Histogram("rentledger.posting.latency_ms"),

		StoreErrors:  factory.Counter("rentledger.store.errors"),
		PluginErrors: factory.Counter("rentledger.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnChargeCreated implements plugin.OnChargeCreated.
func (m *MetricsExtension) OnChargeCreated(_ context.Context, chg interface{}) error {
	m.ChargesCreated.Inc()
	if c, ok := chg.(*charge.Charge); ok {
		m.ChargeAmount.Observe(float64(c.Amount.Amount))
	}
	return nil
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, pmt interface{}) error {
	m.PaymentsRecorded.Inc()
	if p, ok := pmt.(*payment.Payment); ok {
		m.PaymentAmount.Observe(float64(p.Amount.Amount))
	}
	return nil
}

// OnAllocated implements plugin.OnAllocated.
func (m *MetricsExtension) OnAllocated(_ context.Context, result interface{}) error {
	m.AllocationRuns.Inc()
	if r, ok := result.(*allocation.Result); ok {
		m.AllocationsWritten.Add(float64(len(r.Allocations)))
		m.AllocationApplied.Observe(float64(r.Applied.Amount))
	}
	return nil
}

// OnRentCharged implements plugin.OnRentCharged.
func (m *MetricsExtension) OnRentCharged(_ context.Context, _ interface{}) error {
	m.RentChargesGenerated.Inc()
	return nil
}

// OnRentPosted implements plugin.OnRentPosted.
func (m *MetricsExtension) OnRentPosted(_ context.Context, result interface{}, elapsed time.Duration) error {
	m.PostingRuns.Inc()
	m.PostingLatency.Observe(float64(elapsed.Milliseconds()))
	if r, ok := result.(*rentledger.PostingRunResult); ok {
		m.PostingFailures.Add(float64(len(r.Errors)))
	}
	return nil
}
