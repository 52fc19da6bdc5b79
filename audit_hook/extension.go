// Package audithook bridges RentLedger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// specific audit system. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/allocation"
	"github.com/xraph/rentledger/charge"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnChargeCreated   = (*Extension)(nil)
	_ plugin.OnPaymentRecorded = (*Extension)(nil)
	_ plugin.OnAllocated       = (*Extension)(nil)
	_ plugin.OnRentCharged     = (*Extension)(nil)
	_ plugin.OnRentPosted      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so that this package does not depend on a concrete audit
// system; callers inject their own implementation at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges RentLedger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnChargeCreated implements plugin.OnChargeCreated.
func (e *Extension) OnChargeCreated(ctx context.Context, chg interface{}) error {
	var resourceID string
	meta := []any{"event", "charge_created"}
	if c, ok := chg.(*charge.Charge); ok {
		resourceID = c.ID.String()
		meta = append(meta,
			"lease_id", c.LeaseID.String(),
			"kind", string(c.Kind),
			"amount", c.Amount.Amount,
			"currency", c.Amount.Currency,
			"due_date", c.DueDate.String(),
		)
	}
	return e.record(ctx, ActionChargeCreated, SeverityInfo, OutcomeSuccess,
		ResourceCharge, resourceID, CategoryBilling, nil, meta...)
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, pmt interface{}) error {
	var resourceID string
	meta := []any{"event", "payment_recorded"}
	if p, ok := pmt.(*payment.Payment); ok {
		resourceID = p.ID.String()
		meta = append(meta,
			"lease_id", p.LeaseID.String(),
			"method", string(p.Method),
			"amount", p.Amount.Amount,
			"currency", p.Amount.Currency,
			"paid_at", p.PaidAt.Format(time.RFC3339),
		)
	}
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, resourceID, CategoryPayment, nil, meta...)
}

// OnAllocated implements plugin.OnAllocated.
func (e *Extension) OnAllocated(ctx context.Context, result interface{}) error {
	var resourceID string
	meta := []any{"event", "payment_allocated"}
	if r, ok := result.(*allocation.Result); ok {
		resourceID = r.PaymentID.String()
		meta = append(meta,
			"allocations", len(r.Allocations),
			"applied", r.Applied.Amount,
			"remaining", r.Remaining.Amount,
		)
	}
	return e.record(ctx, ActionPaymentAllocated, SeverityInfo, OutcomeSuccess,
		ResourceAllocation, resourceID, CategoryPayment, nil, meta...)
}

// OnRentCharged implements plugin.OnRentCharged.
func (e *Extension) OnRentCharged(ctx context.Context, chg interface{}) error {
	var resourceID string
	meta := []any{"event", "rent_charge_generated"}
	if c, ok := chg.(*charge.Charge); ok {
		resourceID = c.ID.String()
		meta = append(meta,
			"lease_id", c.LeaseID.String(),
			"due_date", c.DueDate.String(),
			"amount", c.Amount.Amount,
		)
	}
	return e.record(ctx, ActionRentChargeGenerated, SeverityInfo, OutcomeSuccess,
		ResourceCharge, resourceID, CategoryBilling, nil, meta...)
}

// OnRentPosted implements plugin.OnRentPosted.
func (e *Extension) OnRentPosted(ctx context.Context, result interface{}, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	meta := []any{"event", "rent_posting_completed", "elapsed_ms", elapsed.Milliseconds()}
	if r, ok := result.(*rentledger.PostingRunResult); ok {
		meta = append(meta,
			"processed", r.Processed,
			"created", r.Created,
			"skipped", r.Skipped,
			"failed", len(r.Errors),
		)
		if len(r.Errors) > 0 {
			outcome = OutcomePartial
			severity = SeverityWarning
		}
	}
	return e.record(ctx, ActionRentPostingCompleted, severity, outcome,
		ResourcePosting, "", CategoryBilling, nil, meta...)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
