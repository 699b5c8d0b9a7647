// Package statestore keeps an in-memory view of monthly budget documents so
// reads and push updates never wait on storage. Writes land here optimistically
// and authoritative recalculation results are merged in afterwards.
package statestore

import (
	"sync"

	"zbudget/internal/core"
)

// Store holds the latest known MonthlyData per (budget, month) and fans every
// change out to subscribers. Documents are merged by version: a result
// computed before the latest local edit must not clobber that edit's
// allocations, but its derived figures are still fresher than none.
type Store struct {
	mu   sync.RWMutex
	docs map[string]core.MonthlyData

	subMu  sync.Mutex
	subs   map[int]chan core.MonthlyData
	nextID int
}

func New() *Store {
	return &Store{
		docs: make(map[string]core.MonthlyData),
		subs: make(map[int]chan core.MonthlyData),
	}
}

func docKey(budgetID string, month core.Month) string {
	return budgetID + "/" + month.String()
}

// Get returns the current view of a document, if any.
func (s *Store) Get(budgetID string, month core.Month) (core.MonthlyData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.docs[docKey(budgetID, month)]
	if ok {
		md = cloneDoc(md)
	}
	return md, ok
}

// ApplyAllocation installs the post-write document for immediate display. The
// document comes from a successful storage write, so its version is
// authoritative for the allocations it carries; stale documents are ignored.
func (s *Store) ApplyAllocation(md core.MonthlyData) {
	s.mu.Lock()
	key := docKey(md.BudgetID, md.Month)
	cur, ok := s.docs[key]
	if ok && md.Version <= cur.Version {
		s.mu.Unlock()
		return
	}
	md = cloneDoc(md)
	s.docs[key] = md
	s.mu.Unlock()

	s.broadcast(md)
}

// MergeAuthoritative folds a recalculation result into the view. The derived
// figures are always taken: even a result that lost a race to a newer edit was
// computed from real transactions and beats stale figures. Allocations are
// taken only when the result is at least as new as the local document, so an
// optimistic edit is never rolled back by an older recompute.
func (s *Store) MergeAuthoritative(md core.MonthlyData) {
	s.mu.Lock()
	key := docKey(md.BudgetID, md.Month)
	cur, ok := s.docs[key]
	var merged core.MonthlyData
	switch {
	case !ok, md.Version >= cur.Version:
		merged = cloneDoc(md)
	default:
		merged = cur
		merged.Calculated = md.Calculated
	}
	s.docs[key] = merged
	s.mu.Unlock()

	s.broadcast(merged)
}

// Forget drops a document from the view, forcing the next read through to
// storage. Used when a budget is deleted.
func (s *Store) Forget(budgetID string, month core.Month) {
	s.mu.Lock()
	delete(s.docs, docKey(budgetID, month))
	s.mu.Unlock()
}

// Subscribe returns a channel receiving every document change and a cancel
// function. Slow subscribers drop updates rather than blocking writers; the
// latest state is always available via Get.
func (s *Store) Subscribe() (<-chan core.MonthlyData, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan core.MonthlyData, 16)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Store) broadcast(md core.MonthlyData) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- md:
		default:
		}
	}
}

func cloneDoc(md core.MonthlyData) core.MonthlyData {
	allocs := make(map[string]core.Money, len(md.Allocations))
	for k, v := range md.Allocations {
		allocs[k] = v
	}
	md.Allocations = allocs
	return md
}
