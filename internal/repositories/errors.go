package repositories

import (
	"errors"
	"fmt"

	"github.com/Razee4315/panda-chat/internal/docstore"
)

var (
	// ErrNotFound is returned when a room, message, request or user id does
	// not resolve.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record that is already
	// present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyRequested is returned when a pending friend request already
	// connects the pair in either direction.
	ErrAlreadyRequested = errors.New("friend request already pending")

	// ErrInvalidState is returned for operations the current state does not
	// allow, such as answering a request twice.
	ErrInvalidState = errors.New("invalid state")

	// ErrStoreUnavailable marks failures of the document store. Nothing in
	// this package retries them.
	ErrStoreUnavailable = docstore.ErrUnavailable
)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidState)
}

// checkIDs rejects ids that cannot be used as a single store key.
func checkIDs(ids ...string) error {
	for _, id := range ids {
		if !docstore.ValidKey(id) {
			return invalidState("malformed id %q", id)
		}
	}
	return nil
}
