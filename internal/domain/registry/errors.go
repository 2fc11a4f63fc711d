package registry

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/id"
)

var (
	ErrConflict      = errors.New("transition conflict")
	ErrGuardReleased = errors.New("transition guard already released")
	ErrClosed        = errors.New("registry closed")
	ErrStorage       = errors.New("registry storage failure")
)

// ConflictError is returned by BeginTransition when the app is already
// locked by another transition or its state diverged from the expected one.
type ConflictError struct {
	AppID    string
	InFlight id.TransitionID
	Expected State
	Actual   State
}

func (e *ConflictError) Error() string {
	if e.InFlight != "" {
		return fmt.Sprintf("app %s: transition %s already in flight", e.AppID, e.InFlight)
	}
	return fmt.Sprintf("app %s: expected state %s, found %s", e.AppID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
