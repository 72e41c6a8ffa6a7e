package game

import (
	"context"
	"crypto/rand"
	"fmt"
)

// Store persists the Session aggregate. Update runs fn against the
// current value and commits the mutated copy atomically; an error from
// fn aborts the write and is returned unchanged so sentinel checks
// survive the round trip.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error

	// BindCode reserves code for the session id; reports false when the
	// code is already taken.
	BindCode(ctx context.Context, code, id string) (bool, error)
	// ResolveCode returns the session id a join code points at.
	ResolveCode(ctx context.Context, code string) (string, error)

	Close() error
}

// newJoinCode returns `CM-` + 6 upper alnum.
func newJoinCode() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return fmt.Sprintf("CM-%s", string(b)), nil
}

// allocateCode binds a fresh unique code to the session, retrying on
// collisions.
func allocateCode(ctx context.Context, store Store, sessionID string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return "", err
		}
		ok, err := store.BindCode(ctx, code, sessionID)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}
