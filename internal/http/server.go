// Package http exposes the budget engine over a JSON API.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"zbudget/internal/cache"
	"zbudget/internal/core"
	"zbudget/internal/middleware/trace"
	"zbudget/internal/services"
	"zbudget/internal/statestore"
	"zbudget/internal/storage"
)

// Server wires storage and the engine services behind the router.
type Server struct {
	storage     *storage.SQLiteRepository
	allocations *services.AllocationService
	scheduler   *services.RecalcScheduler
	view        *statestore.Store
	monthCache  *cache.LRUCache[monthlyDataResponse]

	httpServer *http.Server
}

func NewServer(
	addr string,
	repo *storage.SQLiteRepository,
	allocations *services.AllocationService,
	scheduler *services.RecalcScheduler,
	view *statestore.Store,
) *Server {
	s := &Server{
		storage:     repo,
		allocations: allocations,
		scheduler:   scheduler,
		view:        view,
		monthCache:  cache.NewLRUCache[monthlyDataResponse](256, 30*time.Second),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// InvalidateMonth drops the cached view of one monthly document. The
// scheduler's result callback uses this so fresh recomputes are not masked by
// a stale cache entry.
func (s *Server) InvalidateMonth(budgetID string, month core.Month) {
	s.invalidateMonth(budgetID, month)
}

// RegisterCaches hooks the server's caches into the expiry sweep.
func (s *Server) RegisterCaches(m *cache.Manager) {
	m.Register(s.monthCache)
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(trace.Middleware)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/budgets", func(r chi.Router) {
		r.Post("/", s.handleCreateBudget)
		r.Get("/", s.handleListBudgets)

		r.Route("/{budgetID}", func(r chi.Router) {
			r.Get("/", s.handleGetBudget)

			r.Post("/categories", s.handleCreateCategory)
			r.Get("/categories", s.handleListCategories)

			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)

			r.Post("/transactions", s.handleCreateTransaction)
			r.Get("/transactions", s.handleListTransactions)

			r.Route("/months/{month}", func(r chi.Router) {
				r.Get("/", s.handleGetMonthlyData)
				r.Put("/allocations/{categoryID}", s.handleSetAllocation)
				r.Post("/recalculate", s.handleRecalculate)
			})
		})
	})

	r.Put("/api/categories/{categoryID}", s.handleUpdateCategory)
	r.Put("/api/rules/{ruleID}/active", s.handleSetRuleActive)
	r.Delete("/api/rules/{ruleID}", s.handleDeleteRule)
	r.Delete("/api/transactions/{transactionID}", s.handleDeleteTransaction)

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
