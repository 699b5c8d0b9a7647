package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zbudget/internal/core"
)

type budgetResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func toBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt}
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	budget := core.Budget{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := budget.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.CreateBudget(r.Context(), budget); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBudgetResponse(budget))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.storage.ListBudgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := s.storage.GetBudget(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(budget))
}

type categoryResponse struct {
	ID       string `json:"id"`
	BudgetID string `json:"budgetId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Color    string `json:"color"`
	Position int    `json:"position"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{
		ID:       c.ID,
		BudgetID: c.BudgetID,
		Name:     c.Name,
		Type:     string(c.Type),
		Color:    c.Color,
		Position: c.Position,
	}
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	var req struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Color    string `json:"color"`
		Position int    `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := s.storage.GetBudget(r.Context(), budgetID); err != nil {
		writeError(w, r, err)
		return
	}

	category := core.Category{
		ID:       uuid.NewString(),
		BudgetID: budgetID,
		Name:     req.Name,
		Type:     core.CategoryType(req.Type),
		Color:    req.Color,
		Position: req.Position,
	}
	if err := category.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.CreateCategory(r.Context(), category); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.storage.ListCategories(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")

	var req struct {
		Name     string `json:"name"`
		Color    string `json:"color"`
		Position int    `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	category, err := s.storage.GetCategory(r.Context(), categoryID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	category.Name = req.Name
	category.Color = req.Color
	category.Position = req.Position
	if err := category.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.UpdateCategory(r.Context(), categoryID, req.Name, req.Color, req.Position); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(category))
}
