package identity

import (
	"context"
	"errors"
)

var (
	// ErrDone is returned by Iterator.Next after the last identity.
	ErrDone = errors.New("no more identities")
	// ErrProvider is the generic failure surfaced to callers; the remote
	// cause is written to the local log only, never echoed upstream.
	ErrProvider = errors.New("identity provider unavailable")
)

// RemoteIdentity is the normalized view of a record held by the external
// identity provider.
type RemoteIdentity struct {
	UID         string
	Email       string
	DisplayName string
	Disabled    bool
}

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventDisabled EventKind = "disabled"
	EventEnabled  EventKind = "enabled"
	EventDeleted  EventKind = "deleted"
)

// Event is a normalized identity change notification. The core reacts to
// these; how they were observed is the bridge's concern.
type Event struct {
	Kind     EventKind
	Identity RemoteIdentity
}

// Iterator yields remote identities one at a time. It is lazy, finite and
// non-restartable; pagination stays below this interface.
type Iterator interface {
	Next() (*RemoteIdentity, error)
}

// Bridge wraps the external identity provider. Every method performs
// network I/O bounded by the adapter's configured timeout and may fail
// with ErrProvider.
type Bridge interface {
	CreateIdentity(ctx context.Context, email, password, displayName string) (string, error)
	DeleteIdentity(ctx context.Context, uid string) error
	SetDisabled(ctx context.Context, uid string, disabled bool) error
	SetPassword(ctx context.Context, uid, password string) error
	// GetByEmail returns (nil, nil) when no identity has the email.
	GetByEmail(ctx context.Context, email string) (*RemoteIdentity, error)
	List(ctx context.Context) Iterator
}
