// Package memory provides an in-memory implementation of the C9 store.
//
// Suitable for development, testing, and single-node deployments where
// persistence across process restarts is not required.
package memory

import (
	"context"
	"sync"

	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/workitem"
)

// Store is an in-memory implementation of store.Store. It is safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	specs map[string]*net.Net
	cases map[string]store.CaseRecord
	items map[workitem.ID]*workitem.Item
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		specs: make(map[string]*net.Net),
		cases: make(map[string]store.CaseRecord),
		items: make(map[workitem.ID]*workitem.Item),
	}
}

func (s *Store) SaveSpecification(ctx context.Context, n *net.Net) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[n.ID] = n.Clone()
	return nil
}

func (s *Store) GetSpecification(ctx context.Context, id string) (*net.Net, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.specs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return n.Clone(), nil
}

func (s *Store) ListSpecifications(ctx context.Context) ([]*net.Net, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*net.Net, 0, len(s.specs))
	for _, n := range s.specs {
		out = append(out, n.Clone())
	}
	return out, nil
}

func (s *Store) DeleteSpecification(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.specs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.specs, id)
	return nil
}

func (s *Store) SaveCase(ctx context.Context, rec store.CaseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[rec.ID] = rec
	return nil
}

func (s *Store) GetCase(ctx context.Context, caseID string) (store.CaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.CaseRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cases[caseID]
	if !ok {
		return store.CaseRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListNonTerminalCases(ctx context.Context) ([]store.CaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.CaseRecord, 0, len(s.cases))
	for _, rec := range s.cases {
		if !rec.IsTerminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) DeleteCase(ctx context.Context, caseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[caseID]; !ok {
		return store.ErrNotFound
	}
	delete(s.cases, caseID)
	return nil
}

func (s *Store) SaveWorkItem(ctx context.Context, it *workitem.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *it
	s.items[it.ID] = &cp
	return nil
}

func (s *Store) GetWorkItem(ctx context.Context, id workitem.ID) (*workitem.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *Store) ListWorkItemsByCase(ctx context.Context, caseID string) ([]*workitem.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workitem.Item, 0)
	for _, it := range s.items {
		if it.CaseID == caseID {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) DeleteWorkItem(ctx context.Context, id workitem.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}
