package audithook

// Action constants for audit events.
const (
	// Dish actions
	ActionDishCreated = "dish.created"
	ActionDishesPaid  = "dish.paid"

	// Split actions
	ActionSplitStarted = "split.started"
	ActionSplitUpdated = "split.updated"

	// Payment actions
	ActionPaymentRecorded     = "payment.recorded"
	ActionTransactionRecorded = "transaction.recorded"
	ActionTransactionFailed   = "transaction.failed"

	// Gateway actions
	ActionIntentCreated = "intent.created"
	ActionIntentExpired = "intent.expired"
	ActionGatewayFailed = "gateway.failed"
)

// Resource constants for audit events.
const (
	ResourceDish        = "dish"
	ResourceSplit       = "split"
	ResourcePayment     = "payment"
	ResourceTransaction = "transaction"
	ResourceIntent      = "intent"
)

// Category constants for audit events.
const (
	CategoryOrdering = "ordering"
	CategoryBilling  = "billing"
	CategoryPayment  = "payment"
	CategoryGateway  = "gateway"
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
)
