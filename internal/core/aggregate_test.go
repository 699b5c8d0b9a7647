package core

import "testing"

func TestActivityByCategorySumsSignedAmounts(t *testing.T) {
	txns := []Transaction{
		{CategoryID: "food", Type: Expense, Amount: cents(-1200)},
		{CategoryID: "food", Type: Expense, Amount: cents(-800)},
		{CategoryID: "salary", Type: Income, Amount: cents(250000)},
	}

	totals, skipped := ActivityByCategory(txns)

	if skipped != 0 {
		t.Fatalf("expected no skipped transactions, got %d", skipped)
	}
	if totals["food"] != cents(-2000) {
		t.Fatalf("food: expected -2000, got %d", totals["food"].Cents)
	}
	if totals["salary"] != cents(250000) {
		t.Fatalf("salary: expected 250000, got %d", totals["salary"].Cents)
	}
}

func TestActivityByCategorySkipsMissingCategory(t *testing.T) {
	txns := []Transaction{
		{CategoryID: "", Type: Expense, Amount: cents(-500)},
		{CategoryID: "food", Type: Expense, Amount: cents(-100)},
	}

	totals, skipped := ActivityByCategory(txns)

	if skipped != 1 {
		t.Fatalf("expected 1 skipped transaction, got %d", skipped)
	}
	if len(totals) != 1 || totals["food"] != cents(-100) {
		t.Fatalf("unexpected totals: %v", totals)
	}
}

func TestActivityByCategoryOrderIndependent(t *testing.T) {
	forward := []Transaction{
		{CategoryID: "a", Amount: cents(100)},
		{CategoryID: "b", Amount: cents(-40)},
		{CategoryID: "a", Amount: cents(-60)},
	}
	reversed := []Transaction{forward[2], forward[1], forward[0]}

	f, _ := ActivityByCategory(forward)
	r, _ := ActivityByCategory(reversed)

	if len(f) != len(r) {
		t.Fatalf("size mismatch: %d vs %d", len(f), len(r))
	}
	for k, v := range f {
		if r[k] != v {
			t.Fatalf("category %s: %d vs %d", k, v.Cents, r[k].Cents)
		}
	}
}

func TestActivityByCategoryEmptyInput(t *testing.T) {
	totals, skipped := ActivityByCategory(nil)
	if len(totals) != 0 || skipped != 0 {
		t.Fatalf("expected empty result, got %v (skipped %d)", totals, skipped)
	}
}
