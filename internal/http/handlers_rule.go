package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zbudget/internal/core"
)

type ruleResponse struct {
	ID         string     `json:"id"`
	BudgetID   string     `json:"budgetId"`
	CategoryID string     `json:"categoryId"`
	Type       string     `json:"type"`
	Amount     core.Money `json:"amount"`
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	DayOfMonth int        `json:"dayOfMonth,omitempty"`
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate,omitempty"`
	Active     bool       `json:"active"`
}

func toRuleResponse(rule core.RecurringRule) ruleResponse {
	resp := ruleResponse{
		ID:         rule.ID,
		BudgetID:   rule.BudgetID,
		CategoryID: rule.CategoryID,
		Type:       string(rule.Type),
		Amount:     rule.Amount,
		Frequency:  string(rule.Frequency),
		Interval:   rule.Interval,
		DayOfMonth: rule.DayOfMonth,
		StartDate:  rule.StartDate.Format(dateLayout),
		Active:     rule.Active,
	}
	if !rule.EndDate.IsZero() {
		resp.EndDate = rule.EndDate.Format(dateLayout)
	}
	return resp
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	var req struct {
		CategoryID string `json:"categoryId"`
		Type       string `json:"type"`
		Amount     string `json:"amount"`
		Frequency  string `json:"frequency"`
		Interval   int    `json:"interval"`
		DayOfMonth int    `json:"dayOfMonth"`
		StartDate  string `json:"startDate"`
		EndDate    string `json:"endDate"`
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
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	endDate, err := parseOptionalDate(req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Interval == 0 {
		req.Interval = 1
	}

	if _, err := s.storage.GetBudget(r.Context(), budgetID); err != nil {
		writeError(w, r, err)
		return
	}

	rule := core.RecurringRule{
		ID:         uuid.NewString(),
		BudgetID:   budgetID,
		CategoryID: req.CategoryID,
		Type:       core.CategoryType(req.Type),
		Amount:     amount,
		Frequency:  core.Frequency(req.Frequency),
		Interval:   req.Interval,
		DayOfMonth: req.DayOfMonth,
		StartDate:  startDate,
		EndDate:    endDate,
		Active:     true,
	}
	if err := rule.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.CreateRule(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.storage.ListRules(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetRuleActive(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.storage.SetRuleActive(r.Context(), ruleID, req.Active); err != nil {
		writeError(w, r, err)
		return
	}

	rule, err := s.storage.GetRule(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

// handleDeleteRule deactivates rules that already generated transactions so
// history keeps its recurring markers; rules with no instances are removed
// outright. Existing transactions are never touched either way.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	hasInstances, err := s.storage.RuleHasInstances(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if hasInstances {
		if err := s.storage.SetRuleActive(r.Context(), ruleID, false); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
		return
	}

	if err := s.storage.DeleteRule(r.Context(), ruleID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
