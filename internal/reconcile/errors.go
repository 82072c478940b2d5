package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// ErrEmailTaken is returned by a platform when a new account's email address
// already belongs to another account.
var ErrEmailTaken = errors.New("email has already been taken")

// ConfigurationError aborts a run before any connection is attempted.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ConnectionError is a directory bind or platform authentication failure.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RecordValidationError marks a single malformed record. It is logged and
// the record is skipped.
type RecordValidationError struct {
	Kind   string
	Record string
	Reason string
}

func (e *RecordValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Record, e.Reason)
}

// DuplicateEntityError marks a record whose key was already claimed. The
// later occurrence is dropped.
type DuplicateEntityError struct {
	Kind string
	Key  string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Kind, e.Key)
}

// ConflictingStateError marks an entity whose platform state forbids the
// intended action.
type ConflictingStateError struct {
	Kind   string
	Name   string
	State  string
	Action string
}

func (e *ConflictingStateError) Error() string {
	return fmt.Sprintf("%s %q is %s, can't %s", e.Kind, e.Name, e.State, e.Action)
}

// MutationError wraps a failed create, update or delete call.
type MutationError struct {
	Operation string
	Target    string
	Err       error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Operation, e.Target, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// logRecordError reports a record-level problem at the level its kind warrants.
func logRecordError(ctx context.Context, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["error"] = err.Error()

	var conflict *ConflictingStateError
	var duplicate *DuplicateEntityError
	switch {
	case errors.As(err, &conflict), errors.As(err, &duplicate):
		logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Record skipped", fields)
	default:
		logging.SubsystemError(ctx, logging.SubsystemReconcile, "Record rejected", fields)
	}
}
