package common

import "errors"

// Domain errors. Services return these; handlers translate them into
// HTTP status codes via getErrorCode.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")

	// Revision lifecycle
	ErrInvalidParent    = errors.New("parent product missing or not publishable")
	ErrMissingParent    = errors.New("revision has no parent product")
	ErrPastSchedule     = errors.New("scheduled time is in the past")
	ErrScheduleConflict = errors.New("another revision is scheduled for the same product and time")
	ErrNotScheduled     = errors.New("revision is not in scheduled status")
	ErrNotFailed        = errors.New("revision is not in failed status")

	// Apply engine
	ErrLockUnavailable = errors.New("product is locked by another apply")
	ErrIntegrityCheck  = errors.New("post-apply verification failed")
	ErrProcessing      = errors.New("revision processing failed")
)
