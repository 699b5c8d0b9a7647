package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldBudgetID    = "budget_id"
	FieldMonth       = "month"
	FieldCategoryID  = "category_id"
	FieldRuleID      = "rule_id"
	FieldAmountCents = "amount_cents"
	FieldVersion     = "version"
	FieldAttempt     = "attempt"
	FieldSkipped     = "skipped"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentWorker       = "worker"
	ComponentRecalc       = "recalc"
	ComponentScheduler    = "recalc_scheduler"
	ComponentMaterializer = "materializer"
	ComponentStateStore   = "state_store"
	ComponentExport       = "export"
	ComponentCache        = "cache"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpRead        = "read"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpList        = "list"
	OpRecalculate = "recalculate"
	OpAllocate    = "allocate"
	OpMaterialize = "materialize"
	OpExport      = "export"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)
