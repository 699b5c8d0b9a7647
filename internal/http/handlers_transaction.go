package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zbudget/internal/core"
)

type transactionResponse struct {
	ID                  string     `json:"id"`
	BudgetID            string     `json:"budgetId"`
	CategoryID          string     `json:"categoryId"`
	Type                string     `json:"type"`
	Amount              core.Money `json:"amount"`
	Date                string     `json:"date"`
	IsRecurringInstance bool       `json:"isRecurringInstance"`
	RecurringRuleID     string     `json:"recurringRuleId,omitempty"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                  t.ID,
		BudgetID:            t.BudgetID,
		CategoryID:          t.CategoryID,
		Type:                string(t.Type),
		Amount:              t.Amount,
		Date:                t.Date.Format(dateLayout),
		IsRecurringInstance: t.IsRecurringInstance,
		RecurringRuleID:     t.RecurringRuleID,
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	var req struct {
		CategoryID string `json:"categoryId"`
		Type       string `json:"type"`
		Amount     string `json:"amount"`
		Date       string `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txDate, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := s.storage.GetBudget(r.Context(), budgetID); err != nil {
		writeError(w, r, err)
		return
	}

	tx := core.Transaction{
		ID:         uuid.NewString(),
		BudgetID:   budgetID,
		CategoryID: req.CategoryID,
		Type:       core.CategoryType(req.Type),
		Amount:     amount,
		Date:       txDate,
	}
	if err := tx.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.CreateTransaction(r.Context(), tx); err != nil {
		writeError(w, r, err)
		return
	}

	// Figures derived from this month are now stale.
	s.invalidateMonth(budgetID, core.MonthOf(txDate))
	if s.scheduler != nil {
		s.scheduler.AllocationWritten(budgetID, core.MonthOf(txDate))
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	month, err := core.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	txns, err := s.storage.ListTransactionsForMonth(r.Context(), budgetID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.DeleteTransaction(r.Context(), chi.URLParam(r, "transactionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
