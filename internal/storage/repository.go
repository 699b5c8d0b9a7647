// Package storage persists budgets, categories, rules, transactions and the
// per-month documents in SQLite. Monthly documents carry a monotonically
// increasing version; recompute writes are compare-and-swap on the version
// they were dispatched against.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"zbudget/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound     = errors.New("not found")
	ErrStaleVersion = errors.New("stale version")
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// SetClock overrides the time source used for created_at/updated_at stamps.
// Production code never calls this; tests use it for deterministic writes.
func (r *SQLiteRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- budgets ---

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, name, created_at) VALUES (?, ?, ?)`,
		b.ID, b.Name, b.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var b core.Budget
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM budgets WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return core.Budget{}, fmt.Errorf("parse budget created_at: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM budgets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse budget created_at: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, budget_id, name, type, color, position)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.BudgetID, c.Name, string(c.Type), c.Color, c.Position)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	var ct string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, budget_id, name, type, color, position FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.BudgetID, &c.Name, &ct, &c.Color, &c.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.CategoryType(ct)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, budgetID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, budget_id, name, type, color, position
		 FROM categories WHERE budget_id = ? ORDER BY position, name`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var ct string
		if err := rows.Scan(&c.ID, &c.BudgetID, &c.Name, &ct, &c.Color, &c.Position); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(ct)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCategory changes display attributes only; identity and type are fixed.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id, name, color string, position int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, position = ? WHERE id = ?`,
		name, color, position, id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- recurring rules ---

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) error {
	var endDate any
	if !rule.EndDate.IsZero() {
		endDate = rule.EndDate.UTC().Format(dateLayout)
	}
	active := 0
	if rule.Active {
		active = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_rules
		 (id, budget_id, category_id, type, amount_cents, frequency, interval, day_of_month, start_date, end_date, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.BudgetID, rule.CategoryID, string(rule.Type), rule.Amount.Cents,
		string(rule.Frequency), rule.Interval, rule.DayOfMonth,
		rule.StartDate.UTC().Format(dateLayout), endDate, active)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (core.RecurringRule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, budget_id, category_id, type, amount_cents, frequency, interval, day_of_month, start_date, end_date, active
		 FROM recurring_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return rule, err
}

func (r *SQLiteRepository) ListRules(ctx context.Context, budgetID string) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, budget_id, category_id, type, amount_cents, frequency, interval, day_of_month, start_date, end_date, active
		 FROM recurring_rules WHERE budget_id = ? ORDER BY start_date, id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListActiveRules returns active rules across all budgets for materialization.
func (r *SQLiteRepository) ListActiveRules(ctx context.Context) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, budget_id, category_id, type, amount_cents, frequency, interval, day_of_month, start_date, end_date, active
		 FROM recurring_rules WHERE active = 1 ORDER BY budget_id, id`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (r *SQLiteRepository) SetRuleActive(ctx context.Context, id string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_rules SET active = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

// RuleHasInstances reports whether any transaction was materialized from the
// rule. Rules with instances are deactivated instead of deleted to preserve
// historical linkage.
func (r *SQLiteRepository) RuleHasInstances(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions WHERE recurring_rule_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count rule instances: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.RecurringRule, error) {
	var rule core.RecurringRule
	var typ, freq, startDate string
	var endDate sql.NullString
	var active int
	err := row.Scan(&rule.ID, &rule.BudgetID, &rule.CategoryID, &typ, &rule.Amount.Cents,
		&freq, &rule.Interval, &rule.DayOfMonth, &startDate, &endDate, &active)
	if err != nil {
		return core.RecurringRule{}, err
	}
	rule.Type = core.CategoryType(typ)
	rule.Frequency = core.Frequency(freq)
	rule.Active = active != 0
	if rule.StartDate, err = time.Parse(dateLayout, startDate); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse rule start_date: %w", err)
	}
	if endDate.Valid {
		if rule.EndDate, err = time.Parse(dateLayout, endDate.String); err != nil {
			return core.RecurringRule{}, fmt.Errorf("parse rule end_date: %w", err)
		}
	}
	return rule, nil
}

func collectRules(rows *sql.Rows) ([]core.RecurringRule, error) {
	var out []core.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// --- transactions ---

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	var ruleID any
	if t.RecurringRuleID != "" {
		ruleID = t.RecurringRuleID
	}
	recurring := 0
	if t.IsRecurringInstance {
		recurring = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, budget_id, category_id, type, amount_cents, occurred_on, is_recurring_instance, recurring_rule_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BudgetID, t.CategoryID, string(t.Type), t.Amount.Cents,
		t.Date.UTC().Format(dateLayout), recurring, ruleID)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// UpsertRecurringInstance inserts a materialized rule instance keyed by
// (recurring_rule_id, occurred_on). Re-running materialization over an
// overlapping window leaves existing instances untouched and reports false.
func (r *SQLiteRepository) UpsertRecurringInstance(ctx context.Context, t core.Transaction) (bool, error) {
	if !t.IsRecurringInstance || t.RecurringRuleID == "" {
		return false, core.ErrMissingRuleID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, budget_id, category_id, type, amount_cents, occurred_on, is_recurring_instance, recurring_rule_id)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT (recurring_rule_id, occurred_on) DO NOTHING`,
		t.ID, t.BudgetID, t.CategoryID, string(t.Type), t.Amount.Cents,
		t.Date.UTC().Format(dateLayout), t.RecurringRuleID)
	if err != nil {
		return false, fmt.Errorf("upsert recurring instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert recurring instance: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListTransactionsForMonth(ctx context.Context, budgetID string, month core.Month) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, budget_id, category_id, type, amount_cents, occurred_on, is_recurring_instance, recurring_rule_id
		 FROM transactions
		 WHERE budget_id = ? AND occurred_on >= ? AND occurred_on < ?
		 ORDER BY occurred_on, id`,
		budgetID, month.Start().Format(dateLayout), month.End().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var typ, occurredOn string
		var recurring int
		var ruleID sql.NullString
		if err := rows.Scan(&t.ID, &t.BudgetID, &t.CategoryID, &typ, &t.Amount.Cents,
			&occurredOn, &recurring, &ruleID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.CategoryType(typ)
		t.IsRecurringInstance = recurring != 0
		t.RecurringRuleID = ruleID.String
		if t.Date, err = time.Parse(dateLayout, occurredOn); err != nil {
			return nil, fmt.Errorf("parse transaction date: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- monthly data ---

// EnsureMonthlyData lazily creates the (budget, month) document, seeded with
// empty allocations and zeroed figures, and returns the current row.
func (r *SQLiteRepository) EnsureMonthlyData(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO monthly_data (budget_id, month, allocations, version, updated_at)
		 VALUES (?, ?, '{}', 1, ?)
		 ON CONFLICT (budget_id, month) DO NOTHING`,
		budgetID, month.String(), r.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("ensure monthly data: %w", err)
	}
	return r.GetMonthlyData(ctx, budgetID, month)
}

func (r *SQLiteRepository) GetMonthlyData(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT budget_id, month, allocations,
		        revenue_cents, recurring_expenses_cents, rollover_cents, available_cents,
		        total_allocated_cents, remaining_cents, total_spent_cents, monthly_savings_cents,
		        version, updated_at
		 FROM monthly_data WHERE budget_id = ? AND month = ?`,
		budgetID, month.String())
	md, err := scanMonthlyData(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyData{}, fmt.Errorf("monthly data %s/%s: %w", budgetID, month, ErrNotFound)
	}
	return md, err
}

// SetAllocation writes one category's allocation, keeps the allocation totals
// consistent with the new map and bumps the version. The derived figures
// other than the totals are left for the next recompute.
func (r *SQLiteRepository) SetAllocation(ctx context.Context, budgetID string, month core.Month, categoryID string, amount core.Money) (core.MonthlyData, error) {
	if amount.IsNegative() {
		return core.MonthlyData{}, core.ErrNegativeAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("begin allocation write: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO monthly_data (budget_id, month, allocations, version, updated_at)
		 VALUES (?, ?, '{}', 1, ?)
		 ON CONFLICT (budget_id, month) DO NOTHING`,
		budgetID, month.String(), r.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("ensure monthly data: %w", err)
	}

	var raw string
	var available int64
	if err := tx.QueryRowContext(ctx,
		`SELECT allocations, available_cents FROM monthly_data WHERE budget_id = ? AND month = ?`,
		budgetID, month.String()).Scan(&raw, &available); err != nil {
		return core.MonthlyData{}, fmt.Errorf("read allocations: %w", err)
	}

	allocations := map[string]core.Money{}
	if err := json.Unmarshal([]byte(raw), &allocations); err != nil {
		return core.MonthlyData{}, fmt.Errorf("decode allocations: %w", err)
	}
	allocations[categoryID] = amount

	var total core.Money
	for _, a := range allocations {
		total = total.Add(a)
	}
	encoded, err := json.Marshal(allocations)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("encode allocations: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE monthly_data
		 SET allocations = ?, total_allocated_cents = ?, remaining_cents = ? - ?,
		     version = version + 1, updated_at = ?
		 WHERE budget_id = ? AND month = ?`,
		string(encoded), total.Cents, available, total.Cents,
		r.now().UTC().Format(time.RFC3339Nano), budgetID, month.String())
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("write allocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.MonthlyData{}, fmt.Errorf("commit allocation write: %w", err)
	}

	md, err := r.GetMonthlyData(ctx, budgetID, month)
	if err != nil {
		return core.MonthlyData{}, err
	}
	slog.InfoContext(ctx, "Allocation saved",
		"budget_id", budgetID,
		"month", month.String(),
		"category_id", categoryID,
		"amount_cents", amount.Cents,
		"version", md.Version)
	return md, nil
}

// SaveCalculated persists a recompute result. expectedVersion is the version
// the recompute read its inputs at; if the document moved on since then the
// write is refused with ErrStaleVersion and the caller reschedules.
func (r *SQLiteRepository) SaveCalculated(ctx context.Context, budgetID string, month core.Month, calc core.Calculated, expectedVersion int64) (core.MonthlyData, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE monthly_data
		 SET revenue_cents = ?, recurring_expenses_cents = ?, rollover_cents = ?, available_cents = ?,
		     total_allocated_cents = ?, remaining_cents = ?, total_spent_cents = ?, monthly_savings_cents = ?,
		     version = version + 1, updated_at = ?
		 WHERE budget_id = ? AND month = ? AND version = ?`,
		calc.Revenue.Cents, calc.RecurringExpenses.Cents, calc.RolloverFromPrevious.Cents,
		calc.AvailableToAllocate.Cents, calc.TotalAllocated.Cents, calc.RemainingToAllocate.Cents,
		calc.TotalSpent.Cents, calc.MonthlySavings.Cents,
		r.now().UTC().Format(time.RFC3339Nano),
		budgetID, month.String(), expectedVersion)
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("save calculated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.MonthlyData{}, fmt.Errorf("save calculated: %w", err)
	}
	if n == 0 {
		return core.MonthlyData{}, fmt.Errorf("monthly data %s/%s at version %d: %w",
			budgetID, month, expectedVersion, ErrStaleVersion)
	}
	return r.GetMonthlyData(ctx, budgetID, month)
}

func scanMonthlyData(row rowScanner) (core.MonthlyData, error) {
	var md core.MonthlyData
	var monthStr, raw, updatedAt string
	err := row.Scan(&md.BudgetID, &monthStr, &raw,
		&md.Calculated.Revenue.Cents, &md.Calculated.RecurringExpenses.Cents,
		&md.Calculated.RolloverFromPrevious.Cents, &md.Calculated.AvailableToAllocate.Cents,
		&md.Calculated.TotalAllocated.Cents, &md.Calculated.RemainingToAllocate.Cents,
		&md.Calculated.TotalSpent.Cents, &md.Calculated.MonthlySavings.Cents,
		&md.Version, &updatedAt)
	if err != nil {
		return core.MonthlyData{}, err
	}
	if md.Month, err = core.ParseMonth(monthStr); err != nil {
		return core.MonthlyData{}, err
	}
	md.Allocations = map[string]core.Money{}
	if err := json.Unmarshal([]byte(raw), &md.Allocations); err != nil {
		return core.MonthlyData{}, fmt.Errorf("decode allocations: %w", err)
	}
	if md.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return core.MonthlyData{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return md, nil
}
