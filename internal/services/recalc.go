// Package services orchestrates the budget engine: authoritative
// recalculation, allocation writes, the debounce/single-flight scheduler and
// recurring-rule materialization.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zbudget/internal/core"
	"zbudget/internal/storage"
)

// RecalcStore is the storage surface the recalculator needs.
type RecalcStore interface {
	GetBudget(ctx context.Context, id string) (core.Budget, error)
	ListTransactionsForMonth(ctx context.Context, budgetID string, month core.Month) ([]core.Transaction, error)
	EnsureMonthlyData(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error)
	GetMonthlyData(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error)
	SaveCalculated(ctx context.Context, budgetID string, month core.Month, calc core.Calculated, expectedVersion int64) (core.MonthlyData, error)
}

// ChangePublisher announces new document versions to the change feed.
type ChangePublisher interface {
	PublishMonthlyDataChanged(ctx context.Context, budgetID, month string, version int64) error
}

// Recalculator recomputes the derived monthly figures from the authoritative
// transaction set. Calling it twice with no intervening allocation change
// yields the same result.
type Recalculator struct {
	store     RecalcStore
	publisher ChangePublisher // nil disables the change feed
}

func NewRecalculator(store RecalcStore, publisher ChangePublisher) *Recalculator {
	return &Recalculator{store: store, publisher: publisher}
}

// Recalculate derives and persists the figures for one (budget, month).
// The rollover chain is resolved first: month M needs M-1's savings, computed
// on demand back to the budget's creation month.
func (r *Recalculator) Recalculate(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	budget, err := r.store.GetBudget(ctx, budgetID)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("load budget: %w", err)
	}
	return r.recalculate(ctx, budget, month)
}

func (r *Recalculator) recalculate(ctx context.Context, budget core.Budget, month core.Month) (core.MonthlyData, error) {
	rollover, err := r.rolloverFor(ctx, budget, month)
	if err != nil {
		return core.MonthlyData{}, err
	}

	md, err := r.store.EnsureMonthlyData(ctx, budget.ID, month)
	if err != nil {
		return core.MonthlyData{}, err
	}

	txns, err := r.store.ListTransactionsForMonth(ctx, budget.ID, month)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("load transactions: %w", err)
	}

	if _, skipped := core.ActivityByCategory(txns); skipped > 0 {
		slog.WarnContext(ctx, "Transactions without category excluded from aggregation",
			"budget_id", budget.ID,
			"month", month.String(),
			"skipped", skipped)
	}

	calc := core.Compute(core.InputsFromTransactions(txns, rollover, md.Allocations))

	saved, err := r.store.SaveCalculated(ctx, budget.ID, month, calc, md.Version)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("persist recalculation: %w", err)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishMonthlyDataChanged(ctx, budget.ID, month.String(), saved.Version); err != nil {
			// The recompute itself succeeded; feed consumers catch up on the
			// next change.
			slog.ErrorContext(ctx, "Failed to publish change notification",
				"budget_id", budget.ID,
				"month", month.String(),
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Recalculation complete",
		"budget_id", budget.ID,
		"month", month.String(),
		"version", saved.Version,
		"available_cents", saved.Calculated.AvailableToAllocate.Cents,
		"remaining_cents", saved.Calculated.RemainingToAllocate.Cents)

	return saved, nil
}

// rolloverFor returns the previous month's savings. Months before the budget
// existed contribute nothing; a missing previous document is computed on
// demand, which recurses month by month back to the budget's creation.
func (r *Recalculator) rolloverFor(ctx context.Context, budget core.Budget, month core.Month) (core.Money, error) {
	prev := month.Prev()
	if prev.Before(core.MonthOf(budget.CreatedAt)) {
		return core.Money{}, nil
	}

	md, err := r.store.GetMonthlyData(ctx, budget.ID, prev)
	if err == nil {
		return md.Calculated.MonthlySavings, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return core.Money{}, fmt.Errorf("load previous month: %w", err)
	}

	computed, err := r.recalculate(ctx, budget, prev)
	if err != nil {
		return core.Money{}, fmt.Errorf("compute rollover for %s: %w", prev, err)
	}
	return computed.Calculated.MonthlySavings, nil
}
