package schema

import "errors"

var (
	// ErrTabNotFound indicates an operation on an unknown or closed tab id.
	ErrTabNotFound = errors.New("tab not found")
	// ErrResourceUnavailable indicates the content loader could not
	// allocate a handle.
	ErrResourceUnavailable = errors.New("content resource unavailable")
	// ErrTransitionInProgress indicates a conflicting request against an
	// in-flight hibernate or wake.
	ErrTransitionInProgress = errors.New("transition in progress")
	// ErrTransitionTimeout indicates a hibernate or wake exceeded its
	// bounded duration.
	ErrTransitionTimeout = errors.New("transition timed out")
	// ErrReleaseFailed indicates the loader could not cleanly release a
	// content handle.
	ErrReleaseFailed = errors.New("content release failed")
	// ErrForegroundTab indicates an operation that is not allowed on the
	// foreground tab, such as hibernating it.
	ErrForegroundTab = errors.New("tab is foreground")
	// ErrInvalidURL indicates a malformed or empty url.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidState indicates the tab is not in a state that permits the
	// requested transition.
	ErrInvalidState = errors.New("invalid tab state for operation")
	// ErrServiceClosed indicates the service has been shut down.
	ErrServiceClosed = errors.New("service closed")
	// ErrNothingToReopen indicates the recently-closed list is empty or
	// the requested entry is gone.
	ErrNothingToReopen = errors.New("nothing to reopen")
)
