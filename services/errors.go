package services

import "errors"

// Error categories. Every error returned by the services wraps one of these,
// so callers can branch with errors.Is.
var (
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("conflict")
	ErrTransactionRetryExhausted = errors.New("transaction retry exhausted")
	ErrExternalService           = errors.New("external service failure")
	ErrInvalidInput              = errors.New("invalid input")
)

type categorizedError struct {
	category error
	message  string
}

func (e *categorizedError) Error() string { return e.message }
func (e *categorizedError) Unwrap() error { return e.category }

func newError(category error, message string) error {
	return &categorizedError{category: category, message: message}
}

var (
	ErrRestaurantNotFound   = newError(ErrNotFound, "restaurant not found")
	ErrDemoRequestNotFound  = newError(ErrNotFound, "demo request not found")
	ErrDuplicateDemoRequest = newError(ErrConflict, "a demo request with this email already exists")
	ErrAlreadyProcessed     = newError(ErrConflict, "demo request already processed")
	ErrAccountExists        = newError(ErrConflict, "account already exists")
	ErrRatingOutOfRange     = newError(ErrInvalidInput, "each rating must be an integer between 1 and 5")

	// ErrConcurrentUpdate means the restaurant changed between read and write.
	ErrConcurrentUpdate = errors.New("restaurant was modified concurrently")
)
