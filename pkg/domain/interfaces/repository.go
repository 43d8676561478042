package interfaces

import "errors"

// Sentinel errors returned by every Repository implementation
var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint or
	// would overwrite an existing record
	ErrConflict = errors.New("conflict")
)

// Repository defines the interface for data persistence
type Repository interface {
	User() UserRepository
	Story() StoryRepository

	Close() error
}
