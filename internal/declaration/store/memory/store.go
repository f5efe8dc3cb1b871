package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"civicdesk/internal/declaration"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// Store keeps declarations in memory, indexed by id and tracking code.
type Store struct {
	mu     sync.RWMutex
	byID   map[id.DeclarationID]*declaration.Declaration
	byCode map[string]id.DeclarationID
}

func New() *Store {
	return &Store{
		byID:   make(map[id.DeclarationID]*declaration.Declaration),
		byCode: make(map[string]id.DeclarationID),
	}
}

func (s *Store) Create(_ context.Context, d *declaration.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[d.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byCode[d.TrackingCode]; ok {
		return sentinel.ErrConflict
	}
	s.byID[d.ID] = d.Clone()
	s.byCode[d.TrackingCode] = d.ID
	return nil
}

func (s *Store) GetByID(_ context.Context, declarationID id.DeclarationID) (*declaration.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[declarationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

func (s *Store) GetByTrackingCode(_ context.Context, code string) (*declaration.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	declarationID, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[declarationID].Clone(), nil
}

func (s *Store) ExistsTrackingCode(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byCode[code]
	return ok, nil
}

func (s *Store) ExistsID(_ context.Context, declarationID id.DeclarationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[declarationID]
	return ok, nil
}

// List returns matching declarations newest first, plus the total match count.
func (s *Store) List(_ context.Context, filter declaration.ListFilter) ([]*declaration.Declaration, int, error) {
	s.mu.RLock()
	var matched []*declaration.Declaration
	for _, d := range s.byID {
		if matches(filter, d) {
			matched = append(matched, d.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	if filter.Offset >= total {
		return []*declaration.Declaration{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) ListAll(_ context.Context) ([]*declaration.Declaration, error) {
	s.mu.RLock()
	out := make([]*declaration.Declaration, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) Update(_ context.Context, d *declaration.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.byID[d.ID] = d.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, declarationID id.DeclarationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[declarationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byCode, d.TrackingCode)
	delete(s.byID, declarationID)
	return nil
}

func (s *Store) CountByStatus(_ context.Context) (map[declaration.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[declaration.Status]int)
	for _, d := range s.byID {
		counts[d.Status]++
	}
	return counts, nil
}

func matches(f declaration.ListFilter, d *declaration.Declaration) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Type != "" && !strings.EqualFold(d.Type, f.Type) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(d.Category, f.Category) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		for _, field := range []string{d.TrackingCode, d.DeclarantName, d.Description, d.Location} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

func sortNewestFirst(ds []*declaration.Declaration) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].TrackingCode < ds[j].TrackingCode
		}
		return ds[i].CreatedAt.After(ds[j].CreatedAt)
	})
}
