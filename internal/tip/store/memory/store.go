package memory

import (
	"context"
	"sort"
	"sync"

	"civicdesk/internal/tip"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

type Store struct {
	mu   sync.RWMutex
	tips map[id.TipID]*tip.Tip
}

func New() *Store {
	return &Store{tips: make(map[id.TipID]*tip.Tip)}
}

func (s *Store) Create(_ context.Context, t *tip.Tip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tips[t.ID]; ok {
		return sentinel.ErrConflict
	}
	s.tips[t.ID] = t.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, tipID id.TipID) (*tip.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tips[tipID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) List(_ context.Context, filter tip.ListFilter) ([]*tip.Tip, int, error) {
	s.mu.RLock()
	var matched []*tip.Tip
	for _, t := range s.tips {
		if filter.DeclarationID != nil && t.DeclarationID != *filter.DeclarationID {
			continue
		}
		if filter.UnreadOnly && t.IsRead {
			continue
		}
		matched = append(matched, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if filter.Offset >= total {
		return []*tip.Tip{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) Count(_ context.Context, declarationID *id.DeclarationID) (tip.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c tip.Counts
	for _, t := range s.tips {
		if declarationID != nil && t.DeclarationID != *declarationID {
			continue
		}
		c.Total++
		if !t.IsRead {
			c.Unread++
		}
	}
	return c, nil
}

func (s *Store) Update(_ context.Context, t *tip.Tip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tips[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.tips[t.ID] = t.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, tipID id.TipID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tips[tipID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tips, tipID)
	return nil
}
