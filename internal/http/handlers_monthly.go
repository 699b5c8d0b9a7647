package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zbudget/internal/core"
)

type monthlyDataResponse struct {
	BudgetID    string                `json:"budgetId"`
	Month       string                `json:"month"`
	Allocations map[string]core.Money `json:"allocations"`
	Activity    map[string]core.Money `json:"activity"`
	Calculated  core.Calculated       `json:"calculated"`
	Version     int64                 `json:"version"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func (s *Server) toMonthlyDataResponse(r *http.Request, md core.MonthlyData) (monthlyDataResponse, error) {
	txns, err := s.storage.ListTransactionsForMonth(r.Context(), md.BudgetID, md.Month)
	if err != nil {
		return monthlyDataResponse{}, err
	}
	activity, _ := core.ActivityByCategory(txns)

	return monthlyDataResponse{
		BudgetID:    md.BudgetID,
		Month:       md.Month.String(),
		Allocations: md.Allocations,
		Activity:    activity,
		Calculated:  md.Calculated,
		Version:     md.Version,
		UpdatedAt:   md.UpdatedAt,
	}, nil
}

func monthCacheKey(budgetID string, month core.Month) string {
	return budgetID + "/" + month.String()
}

func (s *Server) invalidateMonth(budgetID string, month core.Month) {
	if s.monthCache != nil {
		s.monthCache.Delete(monthCacheKey(budgetID, month))
	}
}

func (s *Server) handleGetMonthlyData(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if s.monthCache != nil {
		if resp, ok := s.monthCache.Get(monthCacheKey(budgetID, month)); ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	if _, err := s.storage.GetBudget(r.Context(), budgetID); err != nil {
		writeError(w, r, err)
		return
	}

	md, err := s.storage.EnsureMonthlyData(r.Context(), budgetID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.toMonthlyDataResponse(r, md)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if s.monthCache != nil {
		s.monthCache.Set(monthCacheKey(budgetID, month), resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetAllocation(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	categoryID := chi.URLParam(r, "categoryID")
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Amount string `json:"amount"`
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

	md, err := s.allocations.SetAllocation(r.Context(), budgetID, month, categoryID, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateMonth(budgetID, month)

	resp, err := s.toMonthlyDataResponse(r, md)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRecalculate forces a synchronous recompute, bypassing the debounce.
// Safe to call any number of times: with no intervening edits the figures do
// not change.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	md, err := s.scheduler.RecalculateNow(r.Context(), budgetID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if s.view != nil {
		s.view.MergeAuthoritative(md)
	}
	s.invalidateMonth(budgetID, month)

	writeJSON(w, http.StatusOK, map[string]any{
		"calculated": md.Calculated,
		"version":    md.Version,
	})
}
