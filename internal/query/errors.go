package query

import (
	"errors"
	"fmt"
)

// EngineErrorKind classifies adapter failures that are returned as Go errors. Execution
// failures are not part of this taxonomy: they travel inside Result.Error.
type EngineErrorKind string

const (
	InitFailed   EngineErrorKind = "init_failed"
	LoadFailed   EngineErrorKind = "load_failed"
	NotConnected EngineErrorKind = "not_connected"
)

type EngineError struct {
	Kind    EngineErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func NewEngineError(kind EngineErrorKind, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is an EngineError of the given kind.
func IsKind(err error, kind EngineErrorKind) bool {
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		return false
	}
	return engineErr.Kind == kind
}
