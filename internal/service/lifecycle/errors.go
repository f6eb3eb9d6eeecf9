package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed create spec; never retried.
	ErrValidation = errors.New("lifecycle: invalid spec")
	// ErrInvalidState indicates an operation invalid for the resource's
	// current status, e.g. stop() on a resource that is not running.
	ErrInvalidState = errors.New("lifecycle: invalid state for operation")
)

// CreationError names the create sub-step that failed after partial
// acquisitions were rolled back.
type CreationError struct {
	Step string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("lifecycle: create failed at %s: %v", e.Step, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}
