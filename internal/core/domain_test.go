package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Year != 2025 || m.M != time.February {
		t.Fatalf("unexpected month: %+v", m)
	}
	if m.String() != "2025-02" {
		t.Fatalf("round trip: got %q", m.String())
	}

	for _, bad := range []string{"", "2025", "2025-13", "02-2025", "2025-2"} {
		if _, err := ParseMonth(bad); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("%q: expected ErrInvalidMonth, got %v", bad, err)
		}
	}
}

func TestMonthNavigation(t *testing.T) {
	m := Month{Year: 2025, M: time.January}
	if prev := m.Prev(); prev.Year != 2024 || prev.M != time.December {
		t.Fatalf("prev: got %+v", prev)
	}
	if next := m.Next(); next.Year != 2025 || next.M != time.February {
		t.Fatalf("next: got %+v", next)
	}
	if days := (Month{Year: 2024, M: time.February}).Days(); days != 29 {
		t.Fatalf("leap feb: expected 29 days, got %d", days)
	}
	if !m.Before(Month{Year: 2025, M: time.March}) {
		t.Fatal("expected 2025-01 before 2025-03")
	}
}

func TestRecurringRuleValidate(t *testing.T) {
	valid := RecurringRule{
		CategoryID: "c1",
		Type:       Expense,
		Amount:     Money{Cents: -5000},
		Frequency:  Monthly,
		Interval:   1,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*RecurringRule)
		want   error
	}{
		{"interval zero", func(r *RecurringRule) { r.Interval = 0 }, ErrInvalidInterval},
		{"bad frequency", func(r *RecurringRule) { r.Frequency = "fortnightly-ish" }, ErrInvalidFrequency},
		{"sign mismatch", func(r *RecurringRule) { r.Amount = Money{Cents: 100} }, ErrSignMismatch},
		{"no category", func(r *RecurringRule) { r.CategoryID = "" }, ErrEmptyCategory},
		{"zero start", func(r *RecurringRule) { r.StartDate = time.Time{} }, ErrZeroDate},
		{"end before start", func(r *RecurringRule) { r.EndDate = r.StartDate.AddDate(0, 0, -1) }, ErrEndBeforeStart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mutate(&r)
			if err := r.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		CategoryID: "c1",
		Type:       Expense,
		Amount:     Money{Cents: -100},
		Date:       time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	t.Run("recurring instance needs rule id", func(t *testing.T) {
		tx := valid
		tx.IsRecurringInstance = true
		if err := tx.Validate(); !errors.Is(err, ErrMissingRuleID) {
			t.Fatalf("expected ErrMissingRuleID, got %v", err)
		}
		tx.RecurringRuleID = "r1"
		if err := tx.Validate(); err != nil {
			t.Fatalf("expected valid, got %v", err)
		}
	})

	t.Run("income must not be negative", func(t *testing.T) {
		tx := valid
		tx.Type = Income
		if err := tx.Validate(); !errors.Is(err, ErrSignMismatch) {
			t.Fatalf("expected ErrSignMismatch, got %v", err)
		}
	})

	t.Run("zero amount is valid for both types", func(t *testing.T) {
		tx := valid
		tx.Amount = Money{}
		if err := tx.Validate(); err != nil {
			t.Fatalf("zero expense rejected: %v", err)
		}
		tx.Type = Income
		if err := tx.Validate(); err != nil {
			t.Fatalf("zero income rejected: %v", err)
		}
	})
}
