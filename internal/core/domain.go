package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	Expense CategoryType = "expense"
	Income  CategoryType = "income"
)

type (
	Frequency    string
	CategoryType string

	// Month identifies a budget period (YYYY-MM). The zero value is invalid.
	Month struct {
		Year int
		M    time.Month
	}

	// Budget owns categories, rules, transactions and monthly documents. Its
	// creation time bounds how far back the rollover chain is computed.
	Budget struct {
		ID        string
		Name      string
		CreatedAt time.Time
	}

	Category struct {
		ID       string
		BudgetID string
		Name     string
		Type     CategoryType
		Color    string
		Position int
	}

	// RecurringRule is a generator of transactions, not a transaction itself.
	// Amount is signed: negative for expenses, positive for income.
	RecurringRule struct {
		ID         string
		BudgetID   string
		CategoryID string
		Type       CategoryType
		Amount     Money
		Frequency  Frequency
		Interval   int
		DayOfMonth int // 0 means "use StartDate's day"
		StartDate  time.Time
		EndDate    time.Time // zero means open-ended
		Active     bool
	}

	Transaction struct {
		ID                  string
		BudgetID            string
		CategoryID          string
		Type                CategoryType
		Amount              Money
		Date                time.Time
		IsRecurringInstance bool
		RecurringRuleID     string
	}

	// Calculated holds the derived monthly figures. Every field is derivable
	// from allocations, the month's transactions and the prior month's
	// savings; it is a cache, never a source of truth.
	Calculated struct {
		Revenue              Money `json:"revenue"`
		RecurringExpenses    Money `json:"recurringExpenses"`
		RolloverFromPrevious Money `json:"rolloverFromPrevious"`
		AvailableToAllocate  Money `json:"availableToAllocate"`
		TotalAllocated       Money `json:"totalAllocated"`
		RemainingToAllocate  Money `json:"remainingToAllocate"`
		TotalSpent           Money `json:"totalSpent"`
		MonthlySavings       Money `json:"monthlySavings"`
	}

	// MonthlyData is the per-(budget, month) document. Version increases
	// monotonically on every successful allocation write or recompute.
	MonthlyData struct {
		BudgetID    string
		Month       Month
		Allocations map[string]Money
		Calculated  Calculated
		Version     int64
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrInvalidInterval  = errors.New("interval must be at least 1")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidType      = errors.New("invalid category type")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrSignMismatch     = errors.New("amount sign does not match type")
	ErrMissingRuleID    = errors.New("recurring instance without rule id")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEndBeforeStart   = errors.New("end date must not be before start date")
)

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: t.Year(), M: t.Month()}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), M: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.M))
}

func (m Month) IsZero() bool { return m.Year == 0 }

// Prev returns the preceding month.
func (m Month) Prev() Month {
	t := time.Date(m.Year, m.M, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Month{Year: t.Year(), M: t.Month()}
}

// Next returns the following month.
func (m Month) Next() Month {
	t := time.Date(m.Year, m.M, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Month{Year: t.Year(), M: t.Month()}
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.M, 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the first day of the following month.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return m.End().AddDate(0, 0, -1).Day()
}

// Before reports whether m is earlier than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.M < other.M
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if len(b.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	switch c.Type {
	case Expense, Income:
	default:
		return ErrInvalidType
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrEmptyCategory
	}
	switch r.Type {
	case Expense, Income:
	default:
		return ErrInvalidType
	}
	if err := checkSign(r.Type, r.Amount); err != nil {
		return err
	}
	switch r.Frequency {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
	default:
		return ErrInvalidFrequency
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return errors.New("day of month out of range")
	}
	if r.StartDate.IsZero() {
		return ErrZeroDate
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	switch t.Type {
	case Expense, Income:
	default:
		return ErrInvalidType
	}
	if err := checkSign(t.Type, t.Amount); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if t.IsRecurringInstance && t.RecurringRuleID == "" {
		return ErrMissingRuleID
	}
	return nil
}

func checkSign(ct CategoryType, amount Money) error {
	if ct == Expense && amount.Cents > 0 {
		return ErrSignMismatch
	}
	if ct == Income && amount.Cents < 0 {
		return ErrSignMismatch
	}
	return nil
}
