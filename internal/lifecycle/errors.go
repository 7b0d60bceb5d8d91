package lifecycle

import (
	"errors"
	"fmt"

	"room-status-backend/internal/store"
)

var (
	// ErrNotFound is returned when the referenced room does not exist.
	ErrNotFound = errors.New("room not found")
	// ErrInvalidTransition is returned when the transition policy rejects a change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a room name is already taken.
	ErrConflict = errors.New("conflict")
	// ErrStoreFailure wraps any persistence error. The unit of work it
	// happened in has been rolled back.
	ErrStoreFailure = errors.New("store failure")
	// ErrInvalidArgument is returned for input rejected before touching the store.
	ErrInvalidArgument = errors.New("invalid argument")
)

// classify maps an error coming out of the store into the lifecycle taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrStoreFailure):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
	}
}
