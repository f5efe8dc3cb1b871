// Package sentinel holds store-level facts. Stores return these (optionally
// wrapped) and services translate them into coded domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound: no record with the requested id or tracking code.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a unique key (tracking code, username, id) is already taken.
	ErrConflict = errors.New("conflict")
	// ErrExpired: a one-time code or token is past its expiry.
	ErrExpired = errors.New("expired")
	// ErrAlreadyUsed: a pending item or one-time code was already consumed.
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: the record is not in a state that allows the mutation.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a backing service could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
