// Package memory is an in-process SummaryWriter used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"zbudget/internal/export"
)

type Store struct {
	mu    sync.Mutex
	items []export.MonthSummary
}

func New() *Store {
	return &Store{}
}

// Append stores the summary and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, sum export.MonthSummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, sum)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Items returns a copy of everything appended so far.
func (s *Store) Items() []export.MonthSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.MonthSummary(nil), s.items...)
}
