package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// API errors
	ErrAPIRequest = fmt.Errorf("API request failed")

	// Persistence errors
	ErrNotFound       = fmt.Errorf("record not found")
	ErrEventImmutable = fmt.Errorf("processed events are immutable")

	// Scheduling errors
	ErrSyncInProgress    = fmt.Errorf("sync already in progress")
	ErrCleanupInProgress = fmt.Errorf("cleanup already in progress")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
