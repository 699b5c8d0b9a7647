package core

// CalculatorInputs are the independent quantities the monthly figures derive
// from. RecurringExpenses is an absolute (positive) total.
type CalculatorInputs struct {
	Revenue              Money
	RecurringExpenses    Money
	RolloverFromPrevious Money
	TotalSpent           Money
	Allocations          map[string]Money
}

// Compute derives the full set of monthly figures.
//
//	availableToAllocate = revenue - recurringExpenses + rollover
//	totalAllocated      = sum of allocations
//	remainingToAllocate = availableToAllocate - totalAllocated
//	monthlySavings      = revenue - totalSpent
//
// remainingToAllocate may be negative: over-allocation is a valid state that
// the UI surfaces, so it is never clamped. With no transactions and no
// allocations every figure is zero except the rollover.
func Compute(in CalculatorInputs) Calculated {
	totalAllocated := Money{}
	for _, a := range in.Allocations {
		totalAllocated = totalAllocated.Add(a)
	}
	available := in.Revenue.Sub(in.RecurringExpenses).Add(in.RolloverFromPrevious)
	return Calculated{
		Revenue:              in.Revenue,
		RecurringExpenses:    in.RecurringExpenses,
		RolloverFromPrevious: in.RolloverFromPrevious,
		AvailableToAllocate:  available,
		TotalAllocated:       totalAllocated,
		RemainingToAllocate:  available.Sub(totalAllocated),
		TotalSpent:           in.TotalSpent,
		MonthlySavings:       in.Revenue.Sub(in.TotalSpent),
	}
}

// InputsFromTransactions folds a month's transactions into calculator inputs.
// Revenue sums income amounts, RecurringExpenses sums the magnitudes of
// expense transactions generated from recurring rules, TotalSpent sums the
// magnitudes of all expenses.
func InputsFromTransactions(txns []Transaction, rollover Money, allocations map[string]Money) CalculatorInputs {
	in := CalculatorInputs{
		RolloverFromPrevious: rollover,
		Allocations:          allocations,
	}
	for _, t := range txns {
		switch t.Type {
		case Income:
			in.Revenue = in.Revenue.Add(t.Amount)
		case Expense:
			in.TotalSpent = in.TotalSpent.Add(t.Amount.Abs())
			if t.IsRecurringInstance {
				in.RecurringExpenses = in.RecurringExpenses.Add(t.Amount.Abs())
			}
		}
	}
	return in
}
