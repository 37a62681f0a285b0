package library

import "errors"

// Domain errors. Operations wrap these with the offending id via %w, so
// callers branch with errors.Is and the message still names the entity.
var (
	// ErrNotFound means a referenced book or user id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means an id or unique field collided on create.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrResourceBusy means removal is blocked by outstanding loans.
	ErrResourceBusy = errors.New("resource busy")

	// ErrNotAvailable means no free copies are left to issue.
	ErrNotAvailable = errors.New("no copies available")

	// ErrAlreadyBorrowed means the (user, book) pair already has an active loan.
	ErrAlreadyBorrowed = errors.New("already borrowed")

	// ErrLimitExceeded means the user's active-borrow count is at the cap.
	ErrLimitExceeded = errors.New("borrow limit exceeded")

	// ErrNotBorrowed means a return was attempted with no matching active loan.
	ErrNotBorrowed = errors.New("not borrowed")

	// ErrInvalidDateRange means the return date precedes the borrow date.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvariantViolation means a copy-count update would leave
	// availableCopies outside [0, totalCopies].
	ErrInvariantViolation = errors.New("copy count invariant violated")

	// ErrPersistence means the store could not durably commit a change.
	// The in-memory mutation is rolled back before this surfaces.
	ErrPersistence = errors.New("persistence failure")
)
