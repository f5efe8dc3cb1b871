// Package memory keeps accounts and challenges in process memory.
package memory

import (
	"context"
	"strings"
	"sync"

	"civicdesk/internal/auth"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]auth.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[id.UserID]auth.User)}
}

func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return sentinel.ErrConflict
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) FindByID(_ context.Context, userID id.UserID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *UserStore) Update(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.users[user.ID] = *user
	return nil
}

type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[id.SessionID]auth.Challenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[id.SessionID]auth.Challenge)}
}

func (s *ChallengeStore) Create(_ context.Context, c *auth.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return sentinel.ErrConflict
	}
	s.challenges[c.ID] = *c
	return nil
}

func (s *ChallengeStore) Get(_ context.Context, challengeID id.SessionID) (*auth.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *ChallengeStore) MarkUsed(_ context.Context, challengeID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.Used {
		return sentinel.ErrAlreadyUsed
	}
	c.Used = true
	s.challenges[challengeID] = c
	return nil
}
