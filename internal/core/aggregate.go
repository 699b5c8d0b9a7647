package core

// ActivityByCategory reduces a month's transactions into a signed per-category
// total. The sum is commutative, so the result does not depend on input order.
// Transactions without a category are excluded and counted in skipped; the
// caller decides whether to log them. Empty input yields an empty map.
func ActivityByCategory(txns []Transaction) (totals map[string]Money, skipped int) {
	totals = make(map[string]Money, len(txns))
	for _, t := range txns {
		if t.CategoryID == "" {
			skipped++
			continue
		}
		totals[t.CategoryID] = totals[t.CategoryID].Add(t.Amount)
	}
	return totals, skipped
}
