package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"zbudget/internal/services"
	"zbudget/internal/statestore"
	"zbudget/internal/storage"
)

// newTestServer builds a server over a throwaway SQLite database. The
// scheduler uses a long debounce so background recomputes never race the
// assertions; recomputes in tests go through the synchronous endpoint.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "zbudget.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	recalc := services.NewRecalculator(repo, nil)
	scheduler := services.NewRecalcScheduler(recalc.Recalculate, services.SchedulerConfig{
		Debounce:    time.Minute,
		Timeout:     5 * time.Second,
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
	})
	t.Cleanup(scheduler.Stop)

	view := statestore.New()
	allocations := services.NewAllocationService(repo, nil, scheduler, view)

	return NewServer(":0", repo, allocations, scheduler, view)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createBudget(t *testing.T, h http.Handler, name string) budgetResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/budgets", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create budget: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[budgetResponse](t, rec)
}

func createCategory(t *testing.T, h http.Handler, budgetID, name, typ string) categoryResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/budgets/"+budgetID+"/categories",
		map[string]any{"name": name, "type": typ})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[categoryResponse](t, rec)
}

func createTransaction(t *testing.T, h http.Handler, budgetID, categoryID, typ, amount, date string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/budgets/"+budgetID+"/transactions",
		map[string]any{"categoryId": categoryID, "type": typ, "amount": amount, "date": date})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestBudgetLifecycle(t *testing.T) {
	h := newTestServer(t).Router()

	b := createBudget(t, h, "Household")
	if b.ID == "" || b.Name != "Household" {
		t.Fatalf("unexpected budget: %+v", b)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/budgets/"+b.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get budget: status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/budgets", nil)
	if got := decodeBody[[]budgetResponse](t, rec); len(got) != 1 {
		t.Fatalf("list budgets = %d entries, want 1", len(got))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/budgets/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown budget: status %d, want 404", rec.Code)
	}
}

func TestCreateBudgetValidation(t *testing.T) {
	h := newTestServer(t).Router()

	rec := doJSON(t, h, http.MethodPost, "/api/budgets", map[string]string{"name": "   "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank name: status %d, want 422", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/budgets", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d, want 400", rec2.Code)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	h := newTestServer(t).Router()
	b := createBudget(t, h, "Main")

	c := createCategory(t, h, b.ID, "Groceries", "expense")
	if c.Type != "expense" || c.BudgetID != b.ID {
		t.Fatalf("unexpected category: %+v", c)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/budgets/"+b.ID+"/categories",
		map[string]any{"name": "Weird", "type": "sideways"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid type: status %d, want 422", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/categories/"+c.ID,
		map[string]any{"name": "Food", "color": "#00ff00", "position": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("update category: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[categoryResponse](t, rec); got.Name != "Food" || got.Position != 2 {
		t.Errorf("updated category = %+v", got)
	}
}

func TestRuleEndpoints(t *testing.T) {
	h := newTestServer(t).Router()
	b := createBudget(t, h, "Main")
	c := createCategory(t, h, b.ID, "Rent", "expense")

	rec := doJSON(t, h, http.MethodPost, "/api/budgets/"+b.ID+"/rules", map[string]any{
		"categoryId": c.ID,
		"type":       "expense",
		"amount":     "-1200.00",
		"frequency":  "monthly",
		"dayOfMonth": 1,
		"startDate":  "2025-01-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: status %d, body %s", rec.Code, rec.Body.String())
	}
	rule := decodeBody[ruleResponse](t, rec)
	if rule.Amount.Cents != -120000 || rule.Interval != 1 || !rule.Active {
		t.Fatalf("unexpected rule: %+v", rule)
	}

	// Positive amount on an expense rule is a sign mismatch.
	rec = doJSON(t, h, http.MethodPost, "/api/budgets/"+b.ID+"/rules", map[string]any{
		"categoryId": c.ID,
		"type":       "expense",
		"amount":     "1200.00",
		"frequency":  "monthly",
		"startDate":  "2025-01-01",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("sign mismatch: status %d, want 422", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/rules/"+rule.ID+"/active", map[string]bool{"active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate rule: status %d", rec.Code)
	}
	if got := decodeBody[ruleResponse](t, rec); got.Active {
		t.Error("rule still active after deactivation")
	}

	// No generated instances yet, so delete removes the rule entirely.
	rec = doJSON(t, h, http.MethodDelete, "/api/rules/"+rule.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete rule: status %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec); got["status"] != "deleted" {
		t.Errorf("delete status = %q, want deleted", got["status"])
	}
}

func TestTransactionEndpoints(t *testing.T) {
	h := newTestServer(t).Router()
	b := createBudget(t, h, "Main")
	salary := createCategory(t, h, b.ID, "Salary", "income")
	food := createCategory(t, h, b.ID, "Food", "expense")

	createTransaction(t, h, b.ID, salary.ID, "income", "500.00", "2025-03-01")
	createTransaction(t, h, b.ID, food.ID, "expense", "-42.50", "2025-03-10")
	createTransaction(t, h, b.ID, food.ID, "expense", "-10.00", "2025-04-02")

	rec := doJSON(t, h, http.MethodGet, "/api/budgets/"+b.ID+"/transactions?month=2025-03", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list transactions: status %d", rec.Code)
	}
	txns := decodeBody[[]transactionResponse](t, rec)
	if len(txns) != 2 {
		t.Fatalf("March transactions = %d, want 2", len(txns))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/budgets/"+b.ID+"/transactions?month=March", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad month: status %d, want 400", rec.Code)
	}
}

func TestAllocationAndRecalculateFlow(t *testing.T) {
	h := newTestServer(t).Router()
	b := createBudget(t, h, "Main")
	salary := createCategory(t, h, b.ID, "Salary", "income")
	food := createCategory(t, h, b.ID, "Food", "expense")

	createTransaction(t, h, b.ID, salary.ID, "income", "500.00", "2025-03-01")
	createTransaction(t, h, b.ID, food.ID, "expense", "-100.00", "2025-03-10")

	rec := doJSON(t, h, http.MethodPut,
		fmt.Sprintf("/api/budgets/%s/months/2025-03/allocations/%s", b.ID, food.ID),
		map[string]string{"amount": "150.00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set allocation: status %d, body %s", rec.Code, rec.Body.String())
	}
	md := decodeBody[monthlyDataResponse](t, rec)
	if md.Allocations[food.ID].Cents != 15000 {
		t.Errorf("allocation = %d cents, want 15000", md.Allocations[food.ID].Cents)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/budgets/"+b.ID+"/months/2025-03/recalculate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("recalculate: status %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Calculated struct {
			Revenue             int64 `json:"revenue"`
			AvailableToAllocate int64 `json:"availableToAllocate"`
			RemainingToAllocate int64 `json:"remainingToAllocate"`
			TotalSpent          int64 `json:"totalSpent"`
			MonthlySavings      int64 `json:"monthlySavings"`
		} `json:"calculated"`
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode recalculate response: %v", err)
	}
	if result.Calculated.Revenue != 50000 {
		t.Errorf("revenue = %d, want 50000", result.Calculated.Revenue)
	}
	if result.Calculated.AvailableToAllocate != 50000 {
		t.Errorf("available = %d, want 50000", result.Calculated.AvailableToAllocate)
	}
	if result.Calculated.RemainingToAllocate != 35000 {
		t.Errorf("remaining = %d, want 35000", result.Calculated.RemainingToAllocate)
	}
	if result.Calculated.MonthlySavings != 40000 {
		t.Errorf("savings = %d, want 40000", result.Calculated.MonthlySavings)
	}

	// The GET now reflects the recompute, including per-category activity.
	rec = doJSON(t, h, http.MethodGet, "/api/budgets/"+b.ID+"/months/2025-03", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get monthly data: status %d", rec.Code)
	}
	md = decodeBody[monthlyDataResponse](t, rec)
	if md.Calculated.Revenue.Cents != 50000 {
		t.Errorf("cached revenue = %d, want 50000", md.Calculated.Revenue.Cents)
	}
	if md.Activity[food.ID].Cents != -10000 {
		t.Errorf("food activity = %d, want -10000", md.Activity[food.ID].Cents)
	}
	if md.Activity[salary.ID].Cents != 50000 {
		t.Errorf("salary activity = %d, want 50000", md.Activity[salary.ID].Cents)
	}
}

func TestSetAllocationRejectsNegativeAmount(t *testing.T) {
	h := newTestServer(t).Router()
	b := createBudget(t, h, "Main")
	food := createCategory(t, h, b.ID, "Food", "expense")

	rec := doJSON(t, h, http.MethodPut,
		fmt.Sprintf("/api/budgets/%s/months/2025-03/allocations/%s", b.ID, food.ID),
		map[string]string{"amount": "-5.00"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative allocation: status %d, want 422", rec.Code)
	}
}

func TestSetAllocationForeignCategory(t *testing.T) {
	h := newTestServer(t).Router()
	b1 := createBudget(t, h, "Mine")
	b2 := createBudget(t, h, "Theirs")
	theirFood := createCategory(t, h, b2.ID, "Food", "expense")

	rec := doJSON(t, h, http.MethodPut,
		fmt.Sprintf("/api/budgets/%s/months/2025-03/allocations/%s", b1.ID, theirFood.ID),
		map[string]string{"amount": "10.00"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("foreign category: status %d, want 422", rec.Code)
	}
}

func TestGetMonthlyDataCreatesLazily(t *testing.T) {
	h := newTestServer(t).Router()
	b := createBudget(t, h, "Main")

	rec := doJSON(t, h, http.MethodGet, "/api/budgets/"+b.ID+"/months/2025-07", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get monthly data: status %d, body %s", rec.Code, rec.Body.String())
	}
	md := decodeBody[monthlyDataResponse](t, rec)
	if md.Version != 1 || len(md.Allocations) != 0 {
		t.Errorf("fresh document = %+v, want version 1 with no allocations", md)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/budgets/"+b.ID+"/months/2025-7", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad month format: status %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t).Router()
	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
}
