package core

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrorKind classifies a DomainError.
type ErrorKind string

const (
	KindMalformedDocument ErrorKind = "MALFORMED_DOCUMENT"
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
	KindStaging           ErrorKind = "STAGING"
	KindLoad              ErrorKind = "LOAD"
	KindConflict          ErrorKind = "CONFLICT"
	KindInternal          ErrorKind = "INTERNAL"
)

// ErrRunInProgress is returned when a pipeline run is requested while
// another one is still executing.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// DomainError is a classified failure with the stack of the point where it
// was first observed.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// StackTrace returns the captured stack.
func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

// NewError builds a DomainError, reusing the stack of err when it has one.
func NewError(kind ErrorKind, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		var stackErr *goerrors.Error
		if errors.As(err, &stackErr) {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func MalformedDocument(message string, err error) *DomainError {
	return NewError(KindMalformedDocument, message, err)
}

func InvalidInput(message string, err error) *DomainError {
	return NewError(KindInvalidInput, message, err)
}

func StagingError(message string, err error) *DomainError {
	return NewError(KindStaging, message, err)
}

func LoadError(message string, err error) *DomainError {
	return NewError(KindLoad, message, err)
}

func Internal(message string, err error) *DomainError {
	return NewError(KindInternal, message, err)
}

// KindOf returns the kind of the first DomainError in err's chain.
// Returns "" if there is none.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
