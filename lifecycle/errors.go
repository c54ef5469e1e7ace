package lifecycle

import (
	"errors"

	"toolhub/models"
)

var (
	// ErrNotFound means the loan or item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the acting role may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition means the requested status change is not an edge of
	// the loan state machine.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStoreUnavailable wraps network and backend failures. It is the only
	// error the manager retries.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflictingUpdate means another writer changed the loan (or claimed the
	// item) between our read and our conditional write.
	ErrConflictingUpdate = errors.New("conflicting update")

	// ErrInvalidItemRef means a loan request named both a tool and a hardware
	// sample, or neither.
	ErrInvalidItemRef = models.ErrInvalidItemRef

	// ErrItemUnavailable means the item can't go out now: it is off the shelf
	// or its condition rules out lending.
	ErrItemUnavailable = errors.New("item is not available")

	// ErrInvalidFeedback means the rating or text is out of range, or the loan
	// has not been returned yet.
	ErrInvalidFeedback = errors.New("invalid feedback")
)
