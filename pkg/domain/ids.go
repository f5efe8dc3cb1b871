// Package domain holds the typed identifiers shared across packages.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "civicdesk/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	SessionID     uuid.UUID
	DeclarationID uuid.UUID
	PendingID     uuid.UUID
	EntryID       uuid.UUID
	TipID         uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id SessionID) String() string     { return uuid.UUID(id).String() }
func (id DeclarationID) String() string { return uuid.UUID(id).String() }
func (id PendingID) String() string     { return uuid.UUID(id).String() }
func (id EntryID) String() string       { return uuid.UUID(id).String() }
func (id TipID) String() string         { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DeclarationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PendingID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func NewDeclarationID() DeclarationID { return DeclarationID(uuid.New()) }
func NewPendingID() PendingID         { return PendingID(uuid.New()) }
func NewEntryID() EntryID             { return EntryID(uuid.New()) }
func NewTipID() TipID                 { return TipID(uuid.New()) }
func NewSessionID() SessionID         { return SessionID(uuid.New()) }
func NewUserID() UserID               { return UserID(uuid.New()) }

// parseUUID rejects empty, malformed and nil identifiers.
func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID("session id", s)
	return SessionID(u), err
}

func ParseDeclarationID(s string) (DeclarationID, error) {
	u, err := parseUUID("declaration id", s)
	return DeclarationID(u), err
}

func ParsePendingID(s string) (PendingID, error) {
	u, err := parseUUID("pending item id", s)
	return PendingID(u), err
}

func ParseTipID(s string) (TipID, error) {
	u, err := parseUUID("tip id", s)
	return TipID(u), err
}

// Text encoding keeps identifiers as UUID strings in JSON.

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id DeclarationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id PendingID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id TipID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SessionID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeclarationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PendingID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntryID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TipID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
