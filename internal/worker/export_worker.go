// Package worker hosts the background jobs: exporting monthly summaries to the
// configured destination and keeping the local document view fed from the
// change stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zbudget/internal/amqp"
	"zbudget/internal/core"
	"zbudget/internal/export"
	"zbudget/internal/statestore"
	"zbudget/internal/storage"
)

// ExportStore is the storage surface the export worker reads from.
type ExportStore interface {
	ListBudgets(ctx context.Context) ([]core.Budget, error)
	GetBudget(ctx context.Context, id string) (core.Budget, error)
	GetMonthlyData(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error)
}

// ExportWorker mirrors document changes to the summary destination and the
// in-memory view. Messages carry only identifiers; the worker always reads the
// current document from storage, so replays and out-of-order deliveries write
// the latest state, never the version the message was born with.
type ExportWorker struct {
	storage ExportStore
	writer  export.SummaryWriter
	view    *statestore.Store // nil when this process keeps no local view
}

func NewExportWorker(storage ExportStore, writer export.SummaryWriter, view *statestore.Store) *ExportWorker {
	return &ExportWorker{
		storage: storage,
		writer:  writer,
		view:    view,
	}
}

// HandleChangeMessage processes a single monthly-data change from the feed.
func (w *ExportWorker) HandleChangeMessage(ctx context.Context, msg *amqp.MonthlyDataChangedMessage) error {
	slog.InfoContext(ctx, "Processing monthly data change",
		"budget_id", msg.BudgetID,
		"month", msg.Month,
		"version", msg.Version)

	month, err := core.ParseMonth(msg.Month)
	if err != nil {
		return fmt.Errorf("parse month: %w", err)
	}

	budget, err := w.storage.GetBudget(ctx, msg.BudgetID)
	if err != nil {
		return fmt.Errorf("get budget from storage: %w", err)
	}

	md, err := w.storage.GetMonthlyData(ctx, msg.BudgetID, month)
	if err != nil {
		return fmt.Errorf("get monthly data from storage: %w", err)
	}

	if w.view != nil {
		w.view.MergeAuthoritative(md)
	}

	if md.Version < msg.Version {
		// Storage lagging behind the feed should not happen; requeue and let
		// the next delivery see the committed version.
		return fmt.Errorf("storage at version %d behind message version %d", md.Version, msg.Version)
	}

	ref, err := w.writer.Append(ctx, export.MonthSummary{
		BudgetID:   budget.ID,
		BudgetName: budget.Name,
		Month:      month,
		Calculated: md.Calculated,
		Version:    md.Version,
	})
	if err != nil {
		return fmt.Errorf("append summary: %w", err)
	}

	slog.InfoContext(ctx, "Exported monthly summary",
		"budget_id", budget.ID,
		"month", month.String(),
		"version", md.Version,
		"row_ref", ref)

	return nil
}

// ExportCurrentMonth snapshots the current month of every budget. A scheduled
// safety net for changes whose feed message was lost; budgets without a
// document for the month are skipped.
func (w *ExportWorker) ExportCurrentMonth(ctx context.Context, now time.Time) (int, error) {
	budgets, err := w.storage.ListBudgets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list budgets: %w", err)
	}

	month := core.MonthOf(now)
	exported := 0
	for _, budget := range budgets {
		md, err := w.storage.GetMonthlyData(ctx, budget.ID, month)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return exported, fmt.Errorf("get monthly data for %s: %w", budget.ID, err)
		}

		if _, err := w.writer.Append(ctx, export.MonthSummary{
			BudgetID:   budget.ID,
			BudgetName: budget.Name,
			Month:      month,
			Calculated: md.Calculated,
			Version:    md.Version,
		}); err != nil {
			return exported, fmt.Errorf("append summary for %s: %w", budget.ID, err)
		}
		exported++
	}

	slog.InfoContext(ctx, "Scheduled summary export complete",
		"month", month.String(),
		"budgets", len(budgets),
		"exported", exported)

	return exported, nil
}
