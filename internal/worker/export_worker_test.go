package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"zbudget/internal/amqp"
	"zbudget/internal/core"
	"zbudget/internal/export/memory"
	"zbudget/internal/statestore"
	"zbudget/internal/storage"
)

type stubStore struct {
	budgets map[string]core.Budget
	docs    map[string]core.MonthlyData
}

func (s *stubStore) ListBudgets(_ context.Context) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range s.budgets {
		out = append(out, b)
	}
	return out, nil
}

func (s *stubStore) GetBudget(_ context.Context, id string) (core.Budget, error) {
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (s *stubStore) GetMonthlyData(_ context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	md, ok := s.docs[budgetID+"/"+month.String()]
	if !ok {
		return core.MonthlyData{}, fmt.Errorf("monthly data: %w", storage.ErrNotFound)
	}
	return md, nil
}

func TestHandleChangeMessageExportsCurrentState(t *testing.T) {
	march := core.Month{Year: 2025, M: time.March}
	store := &stubStore{
		budgets: map[string]core.Budget{"b1": {ID: "b1", Name: "Main"}},
		docs: map[string]core.MonthlyData{
			"b1/2025-03": {
				BudgetID: "b1",
				Month:    march,
				Calculated: core.Calculated{
					Revenue:        core.Money{Cents: 50000},
					MonthlySavings: core.Money{Cents: 35000},
				},
				Version: 7,
			},
		},
	}
	sink := memory.New()
	view := statestore.New()
	w := NewExportWorker(store, sink, view)

	// The message was published at version 5; storage has since moved to 7.
	// The export reflects storage, not the message.
	err := w.HandleChangeMessage(context.Background(), &amqp.MonthlyDataChangedMessage{
		BudgetID: "b1", Month: "2025-03", Version: 5,
	})
	if err != nil {
		t.Fatalf("HandleChangeMessage() error = %v", err)
	}

	items := sink.Items()
	if len(items) != 1 {
		t.Fatalf("exported %d summaries, want 1", len(items))
	}
	if items[0].Version != 7 || items[0].BudgetName != "Main" {
		t.Errorf("summary = %+v, want version 7 for Main", items[0])
	}
	if items[0].Calculated.MonthlySavings.Cents != 35000 {
		t.Errorf("savings = %d, want 35000", items[0].Calculated.MonthlySavings.Cents)
	}

	if md, ok := view.Get("b1", march); !ok || md.Version != 7 {
		t.Errorf("view not updated: ok=%v version=%d", ok, md.Version)
	}
}

func TestHandleChangeMessageStorageBehindRequeues(t *testing.T) {
	store := &stubStore{
		budgets: map[string]core.Budget{"b1": {ID: "b1", Name: "Main"}},
		docs: map[string]core.MonthlyData{
			"b1/2025-03": {BudgetID: "b1", Month: core.Month{Year: 2025, M: time.March}, Version: 3},
		},
	}
	w := NewExportWorker(store, memory.New(), nil)

	err := w.HandleChangeMessage(context.Background(), &amqp.MonthlyDataChangedMessage{
		BudgetID: "b1", Month: "2025-03", Version: 9,
	})
	if err == nil {
		t.Fatal("expected error when storage lags the feed")
	}
}

func TestExportCurrentMonthSweep(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	store := &stubStore{
		budgets: map[string]core.Budget{
			"b1": {ID: "b1", Name: "Main"},
			"b2": {ID: "b2", Name: "Side"}, // no March document
		},
		docs: map[string]core.MonthlyData{
			"b1/2025-03": {BudgetID: "b1", Month: core.Month{Year: 2025, M: time.March}, Version: 4},
		},
	}
	sink := memory.New()
	w := NewExportWorker(store, sink, nil)

	exported, err := w.ExportCurrentMonth(context.Background(), now)
	if err != nil {
		t.Fatalf("ExportCurrentMonth() error = %v", err)
	}
	if exported != 1 {
		t.Errorf("exported = %d, want 1 (budgets without a document are skipped)", exported)
	}
	if items := sink.Items(); len(items) != 1 || items[0].BudgetID != "b1" {
		t.Errorf("items = %+v, want one b1 summary", sink.Items())
	}
}

func TestHandleChangeMessageBadMonth(t *testing.T) {
	w := NewExportWorker(&stubStore{}, memory.New(), nil)
	err := w.HandleChangeMessage(context.Background(), &amqp.MonthlyDataChangedMessage{
		BudgetID: "b1", Month: "March 2025", Version: 1,
	})
	if !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("error = %v, want ErrInvalidMonth", err)
	}
}
