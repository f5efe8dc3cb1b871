package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicdesk/internal/adminsession"
	id "civicdesk/pkg/domain"
)

type key struct {
	user id.UserID
	ip   string
}

type Store struct {
	mu       sync.Mutex
	sessions map[key]*adminsession.Session
}

func New() *Store {
	return &Store{sessions: make(map[key]*adminsession.Session)}
}

func (s *Store) Touch(_ context.Context, beat adminsession.Beat) (*adminsession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{user: beat.UserID, ip: beat.IPAddress}
	sess, ok := s.sessions[k]
	if !ok {
		sess = &adminsession.Session{
			ID:        id.NewSessionID(),
			UserID:    beat.UserID,
			IPAddress: beat.IPAddress,
			CreatedAt: beat.At,
		}
		s.sessions[k] = sess
	}
	sess.Username = beat.Username
	sess.UserAgent = beat.UserAgent
	sess.LastSeen = beat.At
	c := *sess
	return &c, nil
}

func (s *Store) List(_ context.Context, limit, offset int) ([]*adminsession.Session, int, error) {
	s.mu.Lock()
	out := make([]*adminsession.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		c := *sess
		out = append(out, &c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	total := len(out)
	if offset >= total {
		return []*adminsession.Session{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *Store) Count(_ context.Context, seenSince time.Time) (adminsession.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := adminsession.Counts{Total: len(s.sessions)}
	for _, sess := range s.sessions {
		if !sess.LastSeen.Before(seenSince) {
			c.Active++
		}
	}
	return c, nil
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			n++
			if !dryRun {
				delete(s.sessions, k)
			}
		}
	}
	return n, nil
}
