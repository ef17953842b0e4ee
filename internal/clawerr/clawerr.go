// Package clawerr defines the single error type surfaced to the clawbox CLI
// user, following the shape of phenix's util.HumanizedError: wrap a cause,
// carry an identifying id for cross-referencing logs, and expose a one-line
// human message.
package clawerr

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// Kind classifies a UserFacingError per the error taxonomy in SPEC_FULL.md §7.
type Kind string

const (
	Precondition    Kind = "precondition"
	MissingTool     Kind = "missing-tool"
	RuntimeExec     Kind = "runtime-exec"
	LockContention  Kind = "lock-contention"
	MarkerMismatch  Kind = "marker-mismatch"
	LegacyMarker    Kind = "legacy-marker"
	SyncReadiness   Kind = "sync-readiness"
	ParseErr        Kind = "parse"
)

// UserFacingError is a single-line, actionable error surfaced to the user.
// It is never a programmer error: anything else propagates and prints a
// Go stack trace, per spec.
type UserFacingError struct {
	Kind    Kind
	Message string
	Cause   error
	id      string
}

func New(kind Kind, format string, args ...interface{}) *UserFacingError {
	return &UserFacingError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		id:      uuid.Must(uuid.NewV4()).String(),
	}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *UserFacingError {
	return &UserFacingError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
		id:      uuid.Must(uuid.NewV4()).String(),
	}
}

func (e *UserFacingError) Error() string {
	return e.Message
}

func (e *UserFacingError) Unwrap() error {
	return e.Cause
}

// ID returns a stable identifier for this error instance, useful for
// cross-referencing against the sync event log or watcher logs.
func (e *UserFacingError) ID() string {
	return e.id
}
