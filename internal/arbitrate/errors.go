package arbitrate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPartialArbitration is matched by errors from arbitrations where one or
	// both independent passes failed.
	ErrPartialArbitration = errors.New("partial arbitration failure")
	// ErrRefereeFailure is matched by errors from a failed referee pass.
	ErrRefereeFailure = errors.New("referee failure")
	// ErrInvalidRequest is returned for requests the engine will not run.
	ErrInvalidRequest = errors.New("invalid arbitration request")
)

// PassFailure records one failed pass.
type PassFailure struct {
	Role  string
	Model string
	Err   error
}

// PartialArbitrationError reports which of the independent passes failed.
// Failures are listed in role order (first before second).
type PartialArbitrationError struct {
	Failures []PassFailure
}

func (e *PartialArbitrationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s pass (%s): %v", f.Role, f.Model, f.Err))
	}
	return "partial arbitration failure: " + strings.Join(parts, "; ")
}

func (e *PartialArbitrationError) Is(target error) bool {
	return target == ErrPartialArbitration
}

// Unwrap exposes the underlying pass errors to errors.Is and errors.As.
func (e *PartialArbitrationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Roles lists the failed roles.
func (e *PartialArbitrationError) Roles() []string {
	roles := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		roles = append(roles, f.Role)
	}
	return roles
}

// Failed reports whether the pass in role failed.
func (e *PartialArbitrationError) Failed(role string) bool {
	for _, f := range e.Failures {
		if f.Role == role {
			return true
		}
	}
	return false
}

// RefereeError wraps the failure of the adjudicating pass.
type RefereeError struct {
	Model string
	Err   error
}

func (e *RefereeError) Error() string {
	return fmt.Sprintf("referee failure (%s): %v", e.Model, e.Err)
}

func (e *RefereeError) Is(target error) bool {
	return target == ErrRefereeFailure
}

func (e *RefereeError) Unwrap() error {
	return e.Err
}
