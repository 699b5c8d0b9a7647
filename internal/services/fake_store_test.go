package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zbudget/internal/core"
	"zbudget/internal/storage"
)

// fakeStore is an in-memory stand-in for the SQLite repository, implementing
// the storage surfaces the services need.
type fakeStore struct {
	mu          sync.Mutex
	budgets     map[string]core.Budget
	categories  map[string]core.Category
	rules       []core.RecurringRule
	txns        []core.Transaction
	monthly     map[string]*core.MonthlyData
	instanceKey map[string]bool

	// failSaves makes the next n SaveCalculated calls fail transiently.
	failSaves int
	saveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		budgets:     map[string]core.Budget{},
		categories:  map[string]core.Category{},
		monthly:     map[string]*core.MonthlyData{},
		instanceKey: map[string]bool{},
	}
}

func mdKey(budgetID string, month core.Month) string {
	return budgetID + "/" + month.String()
}

func (f *fakeStore) GetBudget(_ context.Context, id string) (core.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (f *fakeStore) GetCategory(_ context.Context, id string) (core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (f *fakeStore) ListTransactionsForMonth(_ context.Context, budgetID string, month core.Month) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Transaction
	for _, t := range f.txns {
		if t.BudgetID == budgetID && !t.Date.Before(month.Start()) && t.Date.Before(month.End()) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveRules(_ context.Context) ([]core.RecurringRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.RecurringRule
	for _, r := range f.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRecurringInstance(_ context.Context, t core.Transaction) (bool, error) {
	if !t.IsRecurringInstance || t.RecurringRuleID == "" {
		return false, core.ErrMissingRuleID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := t.RecurringRuleID + "@" + t.Date.Format("2006-01-02")
	if f.instanceKey[key] {
		return false, nil
	}
	f.instanceKey[key] = true
	f.txns = append(f.txns, t)
	return true, nil
}

func (f *fakeStore) EnsureMonthlyData(_ context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.ensureLocked(budgetID, month), nil
}

func (f *fakeStore) ensureLocked(budgetID string, month core.Month) *core.MonthlyData {
	key := mdKey(budgetID, month)
	md, ok := f.monthly[key]
	if !ok {
		md = &core.MonthlyData{
			BudgetID:    budgetID,
			Month:       month,
			Allocations: map[string]core.Money{},
			Version:     1,
			UpdatedAt:   time.Now().UTC(),
		}
		f.monthly[key] = md
	}
	return md
}

func (f *fakeStore) GetMonthlyData(_ context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md, ok := f.monthly[mdKey(budgetID, month)]
	if !ok {
		return core.MonthlyData{}, fmt.Errorf("monthly data %s/%s: %w", budgetID, month, storage.ErrNotFound)
	}
	return copyMD(md), nil
}

func (f *fakeStore) SetAllocation(_ context.Context, budgetID string, month core.Month, categoryID string, amount core.Money) (core.MonthlyData, error) {
	if amount.IsNegative() {
		return core.MonthlyData{}, core.ErrNegativeAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	md := f.ensureLocked(budgetID, month)
	md.Allocations[categoryID] = amount
	var total core.Money
	for _, a := range md.Allocations {
		total = total.Add(a)
	}
	md.Calculated.TotalAllocated = total
	md.Calculated.RemainingToAllocate = md.Calculated.AvailableToAllocate.Sub(total)
	md.Version++
	return copyMD(md), nil
}

func (f *fakeStore) SaveCalculated(_ context.Context, budgetID string, month core.Month, calc core.Calculated, expectedVersion int64) (core.MonthlyData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.failSaves > 0 {
		f.failSaves--
		return core.MonthlyData{}, fmt.Errorf("simulated storage outage")
	}
	md, ok := f.monthly[mdKey(budgetID, month)]
	if !ok {
		return core.MonthlyData{}, fmt.Errorf("monthly data %s/%s: %w", budgetID, month, storage.ErrNotFound)
	}
	if md.Version != expectedVersion {
		return core.MonthlyData{}, fmt.Errorf("monthly data %s/%s at version %d: %w",
			budgetID, month, expectedVersion, storage.ErrStaleVersion)
	}
	md.Calculated = calc
	md.Version++
	md.UpdatedAt = time.Now().UTC()
	return copyMD(md), nil
}

func copyMD(md *core.MonthlyData) core.MonthlyData {
	out := *md
	out.Allocations = make(map[string]core.Money, len(md.Allocations))
	for k, v := range md.Allocations {
		out.Allocations[k] = v
	}
	return out
}
