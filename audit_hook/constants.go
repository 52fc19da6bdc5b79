package audithook

// Action constants for audit events.
const (
	// Charge actions
	ActionChargeCreated = "charge.created"

	// Payment actions
	ActionPaymentRecorded  = "payment.recorded"
	ActionPaymentAllocated = "payment.allocated"

	// Rent posting actions
	ActionRentChargeGenerated  = "rent_charge.generated"
	ActionRentPostingCompleted = "rent_posting.completed"
)

// Resource constants for audit events.
const (
	ResourceCharge     = "charge"
	ResourcePayment    = "payment"
	ResourceAllocation = "allocation"
	ResourcePosting    = "posting"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
