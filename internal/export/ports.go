// Package export defines the outbound port for publishing monthly budget
// summaries to external destinations.
package export

import (
	"context"

	"zbudget/internal/core"
)

// MonthSummary is the flattened snapshot of a monthly document, one row per
// (budget, month, version).
type MonthSummary struct {
	BudgetID   string
	BudgetName string
	Month      core.Month
	Calculated core.Calculated
	Version    int64
}

// SummaryWriter appends a summary snapshot to a destination and returns an
// opaque reference to the written row.
type SummaryWriter interface {
	Append(ctx context.Context, s MonthSummary) (rowRef string, err error)
}
