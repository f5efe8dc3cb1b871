package auth

import (
	"context"

	id "civicdesk/pkg/domain"
)

// UserStore persists staff accounts. Lookups return copies.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
}

// ChallengeStore keeps second-factor challenges.
type ChallengeStore interface {
	Create(ctx context.Context, c *Challenge) error
	Get(ctx context.Context, challengeID id.SessionID) (*Challenge, error)
	// MarkUsed consumes the challenge; a second call returns
	// sentinel.ErrAlreadyUsed.
	MarkUsed(ctx context.Context, challengeID id.SessionID) error
}
