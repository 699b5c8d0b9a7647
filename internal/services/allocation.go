package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zbudget/internal/core"
)

var ErrCategoryNotInBudget = errors.New("category does not belong to budget")

// AllocationStore is the storage surface allocation writes need.
type AllocationStore interface {
	GetCategory(ctx context.Context, id string) (core.Category, error)
	SetAllocation(ctx context.Context, budgetID string, month core.Month, categoryID string, amount core.Money) (core.MonthlyData, error)
}

// EditNotifier is told about every successful allocation write so the next
// recompute can be scheduled.
type EditNotifier interface {
	AllocationWritten(budgetID string, month core.Month)
}

// LocalView receives the optimistic post-write document for immediate display.
type LocalView interface {
	ApplyAllocation(md core.MonthlyData)
}

// AllocationService validates and persists allocation edits, then fans the
// write out to the scheduler, the state store and the change feed. Publisher,
// notifier and view may each be nil; the write itself never depends on them.
type AllocationService struct {
	store     AllocationStore
	publisher ChangePublisher
	notifier  EditNotifier
	view      LocalView
}

func NewAllocationService(store AllocationStore, publisher ChangePublisher, notifier EditNotifier, view LocalView) *AllocationService {
	return &AllocationService{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		view:      view,
	}
}

// SetAllocation assigns amount to a category for a month. Negative amounts
// and unknown categories are rejected before anything is written.
func (s *AllocationService) SetAllocation(ctx context.Context, budgetID string, month core.Month, categoryID string, amount core.Money) (core.MonthlyData, error) {
	if amount.IsNegative() {
		return core.MonthlyData{}, core.ErrNegativeAmount
	}

	category, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("resolve category: %w", err)
	}
	if category.BudgetID != budgetID {
		return core.MonthlyData{}, fmt.Errorf("category %s: %w", categoryID, ErrCategoryNotInBudget)
	}

	md, err := s.store.SetAllocation(ctx, budgetID, month, categoryID, amount)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("write allocation: %w", err)
	}

	if s.view != nil {
		s.view.ApplyAllocation(md)
	}
	if s.notifier != nil {
		s.notifier.AllocationWritten(budgetID, month)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishMonthlyDataChanged(ctx, budgetID, month.String(), md.Version); err != nil {
			// Allocation is saved; the feed catches up on the next change.
			slog.ErrorContext(ctx, "Failed to publish allocation change",
				"budget_id", budgetID,
				"month", month.String(),
				"error", err)
		}
	}

	return md, nil
}
