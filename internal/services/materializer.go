package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zbudget/internal/core"
)

// MaterializerStore is the storage surface rule materialization needs.
type MaterializerStore interface {
	ListActiveRules(ctx context.Context) ([]core.RecurringRule, error)
	UpsertRecurringInstance(ctx context.Context, t core.Transaction) (bool, error)
}

// Materializer turns active recurring rules into persisted transactions over
// a rolling window. Instances are keyed by (rule, date), so overlapping runs
// are harmless.
type Materializer struct {
	store   MaterializerStore
	workers int
}

func NewMaterializer(store MaterializerStore, workers int) *Materializer {
	if workers < 1 {
		workers = 1
	}
	return &Materializer{store: store, workers: workers}
}

// MaterializeWindow expands every active rule over [from, to] and upserts the
// resulting transactions. Rules are processed in a bounded worker pool; the
// first failure cancels the remaining work. Returns the number of newly
// created instances.
func (m *Materializer) MaterializeWindow(ctx context.Context, from, to time.Time) (int, error) {
	rules, err := m.store.ListActiveRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active rules: %w", err)
	}

	slog.InfoContext(ctx, "Materializing recurring rules",
		"total_active", len(rules),
		"window_start", from.Format("2006-01-02"),
		"window_end", to.Format("2006-01-02"))

	var created atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, rule := range rules {
		rule := rule
		g.Go(func() error {
			n, err := m.materializeRule(gctx, rule, from, to)
			if err != nil {
				return fmt.Errorf("rule %s: %w", rule.ID, err)
			}
			created.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}

	slog.InfoContext(ctx, "Materialization complete",
		"rules_checked", len(rules),
		"instances_created", created.Load())

	return int(created.Load()), nil
}

func (m *Materializer) materializeRule(ctx context.Context, rule core.RecurringRule, from, to time.Time) (int, error) {
	dates, err := core.Occurrences(rule, from, to)
	if err != nil {
		return 0, fmt.Errorf("expand occurrences: %w", err)
	}

	created := 0
	for _, d := range dates {
		inserted, err := m.store.UpsertRecurringInstance(ctx, core.Transaction{
			ID:                  uuid.NewString(),
			BudgetID:            rule.BudgetID,
			CategoryID:          rule.CategoryID,
			Type:                rule.Type,
			Amount:              rule.Amount,
			Date:                d,
			IsRecurringInstance: true,
			RecurringRuleID:     rule.ID,
		})
		if err != nil {
			return created, fmt.Errorf("upsert instance for %s: %w", d.Format("2006-01-02"), err)
		}
		if inserted {
			created++
			slog.DebugContext(ctx, "Created transaction from recurring rule",
				"rule_id", rule.ID,
				"budget_id", rule.BudgetID,
				"date", d.Format("2006-01-02"),
				"amount_cents", rule.Amount.Cents)
		}
	}
	return created, nil
}
