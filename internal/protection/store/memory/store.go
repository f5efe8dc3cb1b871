package memory

import (
	"context"
	"sync"
	"time"

	"civicdesk/internal/protection"
)

// Store keeps the policy in process. The first Get installs the defaults.
type Store struct {
	mu     sync.Mutex
	policy *protection.Policy
	now    func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Get(_ context.Context) (*protection.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy == nil {
		s.policy = protection.DefaultPolicy(s.now().UTC())
	}
	return s.policy.Clone(), nil
}

func (s *Store) Save(_ context.Context, p *protection.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p.Clone()
	return nil
}
