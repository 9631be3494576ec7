package calc

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/xizhibei/go-httpcalc"
)

// ErrorKind tags the ways a request can fail validation.
type ErrorKind int

const (
	// MissingParameters means one or both of a and b are absent.
	MissingParameters ErrorKind = iota + 1
	// InvalidNumber means a parameter is present but not a number.
	InvalidNumber
)

func (k ErrorKind) String() string {
	switch k {
	case MissingParameters:
		return "MissingParameters"
	case InvalidNumber:
		return "InvalidNumber"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Status returns the HTTP status for the kind.
func (k ErrorKind) Status() int {
	return httpcalc.StatusClientError
}

// Message returns the fixed client-facing message for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case MissingParameters:
		return "Parameters 'a' and 'b' are required"
	case InvalidNumber:
		return "Parameters must be valid numbers"
	}
	return "Bad request"
}

// AppError is a validation failure. Error returns the client-facing
// message only; Param and the wrapped cause are kept for logs.
type AppError struct {
	Kind  ErrorKind
	Param string
	cause error
}

func newAppError(kind ErrorKind, param string, cause error) *AppError {
	return &AppError{Kind: kind, Param: param, cause: cause}
}

func (e *AppError) Error() string {
	return e.Kind.Message()
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any AppError of the same kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Kind == e.Kind
}

// Detail describes which parameter failed and why.
func (e *AppError) Detail() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Param)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Param, e.cause)
}

var (
	// ErrMissingParameters matches any MissingParameters AppError via errors.Is.
	ErrMissingParameters = &AppError{Kind: MissingParameters}
	// ErrInvalidNumber matches any InvalidNumber AppError via errors.Is.
	ErrInvalidNumber = &AppError{Kind: InvalidNumber}
)

// ToResponse maps an error to the status and message sent to the client.
func ToResponse(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind.Status(), appErr.Kind.Message()
	}
	return httpcalc.StatusServerError, err.Error()
}
