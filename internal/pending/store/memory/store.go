package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicdesk/internal/pending"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

type Store struct {
	mu    sync.RWMutex
	items map[id.PendingID]*pending.Item
}

func New() *Store {
	return &Store{items: make(map[id.PendingID]*pending.Item)}
}

func (s *Store) Create(_ context.Context, item *pending.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return sentinel.ErrConflict
	}
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, itemID id.PendingID) (*pending.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return item.Clone(), nil
}

func (s *Store) List(_ context.Context, filter pending.ListFilter) ([]*pending.Item, int, error) {
	s.mu.RLock()
	var matched []*pending.Item
	for _, item := range s.items {
		if filter.Processed == nil || item.Processed == *filter.Processed {
			matched = append(matched, item.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	if filter.Offset >= total {
		return []*pending.Item{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*pending.Item, error) {
	items, _, err := s.List(ctx, pending.ListFilter{})
	return items, err
}

func (s *Store) Update(_ context.Context, item *pending.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *Store) Count(_ context.Context) (pending.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c pending.Counts
	for _, item := range s.items {
		if item.Processed {
			c.Processed++
		} else {
			c.Unprocessed++
		}
	}
	return c, nil
}

func (s *Store) DeleteUnprocessedOlderThan(_ context.Context, cutoff time.Time, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for itemID, item := range s.items {
		if item.Processed || !item.CreatedAt.Before(cutoff) {
			continue
		}
		n++
		if !dryRun {
			delete(s.items, itemID)
		}
	}
	return n, nil
}

func sortNewestFirst(items []*pending.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
