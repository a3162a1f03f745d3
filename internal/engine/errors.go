package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ModelError represents an error raised by the unit of work machinery.
//
// Model errors include:
//   - Usage errors: closed unit of work, wrong unit of work, open children
//   - Constraint violations: null, immutable, type and max occurs checks
//   - Concurrency errors: concurrent modification, commit lock failures
//   - Backend failures: anything the store reported that is not a conflict
//
// ModelError includes structured fields for diagnostics. Use the Is*
// helpers to classify errors; they see through wrapping.
type ModelError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Type names the entity type involved, if any.
	Type string

	// EntityIDs lists the entities involved, if any.
	EntityIDs []string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes model errors.
type ErrorCode string

const (
	// ErrCodeClosed indicates use of a closed unit of work.
	ErrCodeClosed ErrorCode = "UNIT_OF_WORK_CLOSED"

	// ErrCodeUsage indicates an API misuse.
	ErrCodeUsage ErrorCode = "USAGE"

	// ErrCodeConstraintViolation indicates a property constraint failed.
	ErrCodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"

	// ErrCodeDuplicateID indicates an explicit id is already in use.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeInitializerFailed indicates a creation initializer failed.
	ErrCodeInitializerFailed ErrorCode = "INITIALIZER_FAILED"

	// ErrCodeConcurrentModification indicates another writer changed or
	// removed an entity since it was read.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// ErrCodeConcurrentCommit indicates the fail-fast commit lock was held.
	ErrCodeConcurrentCommit ErrorCode = "CONCURRENT_COMMIT"

	// ErrCodeLockTimeout indicates the serializing commit lock timed out.
	ErrCodeLockTimeout ErrorCode = "LOCK_TIMEOUT"

	// ErrCodeNotPrepared indicates commit after a failed prepare.
	ErrCodeNotPrepared ErrorCode = "NOT_PREPARED"

	// ErrCodeBackendFailure indicates the store failed.
	ErrCodeBackendFailure ErrorCode = "BACKEND_FAILURE"

	// ErrCodeEntityEvicted indicates use of an evicted entity.
	ErrCodeEntityEvicted ErrorCode = "ENTITY_EVICTED"

	// ErrCodeUnsupportedExpression indicates a store cannot compile a query.
	ErrCodeUnsupportedExpression ErrorCode = "UNSUPPORTED_EXPRESSION"
)

// Error implements the error interface.
func (e *ModelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	switch {
	case e.Type != "" && len(e.EntityIDs) > 0:
		fmt.Fprintf(&b, " (type=%s, ids=%s)", e.Type, strings.Join(e.EntityIDs, ","))
	case e.Type != "":
		fmt.Fprintf(&b, " (type=%s)", e.Type)
	case len(e.EntityIDs) > 0:
		fmt.Fprintf(&b, " (ids=%s)", strings.Join(e.EntityIDs, ","))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is or wraps a ModelError with code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsClosed returns true if the error reports a closed unit of work.
func IsClosed(err error) bool { return HasCode(err, ErrCodeClosed) }

// IsUsage returns true if the error reports API misuse.
func IsUsage(err error) bool { return HasCode(err, ErrCodeUsage) }

// IsConstraintViolation returns true if a property constraint failed.
func IsConstraintViolation(err error) bool { return HasCode(err, ErrCodeConstraintViolation) }

// IsDuplicateID returns true if an explicit id was already taken.
func IsDuplicateID(err error) bool { return HasCode(err, ErrCodeDuplicateID) }

// IsInitializerFailed returns true if a creation initializer failed.
func IsInitializerFailed(err error) bool { return HasCode(err, ErrCodeInitializerFailed) }

// IsConcurrentModification returns true if a conflicting change was detected.
func IsConcurrentModification(err error) bool {
	return HasCode(err, ErrCodeConcurrentModification)
}

// IsConcurrentCommit returns true if the fail-fast commit lock was held.
func IsConcurrentCommit(err error) bool { return HasCode(err, ErrCodeConcurrentCommit) }

// IsLockTimeout returns true if acquiring the commit lock timed out.
func IsLockTimeout(err error) bool { return HasCode(err, ErrCodeLockTimeout) }

// IsNotPrepared returns true if commit was refused after a failed prepare.
func IsNotPrepared(err error) bool { return HasCode(err, ErrCodeNotPrepared) }

// IsBackendFailure returns true if the store failed.
func IsBackendFailure(err error) bool { return HasCode(err, ErrCodeBackendFailure) }

// IsEvicted returns true if an evicted entity was used.
func IsEvicted(err error) bool { return HasCode(err, ErrCodeEntityEvicted) }

// IsUnsupportedExpression returns true if a store could not compile a query.
func IsUnsupportedExpression(err error) bool { return HasCode(err, ErrCodeUnsupportedExpression) }

// NewConcurrentModificationError creates the error stores return when a
// staged write conflicts with the stored data.
func NewConcurrentModificationError(typeName string, ids []string, cause error) *ModelError {
	return &ModelError{
		Code:      ErrCodeConcurrentModification,
		Message:   "entity changed since it was read",
		Type:      typeName,
		EntityIDs: ids,
		Err:       cause,
	}
}

// NewUnsupportedExpressionError creates the error stores return for
// expressions they cannot compile.
func NewUnsupportedExpressionError(expr fmt.Stringer, reason string) *ModelError {
	return &ModelError{
		Code:    ErrCodeUnsupportedExpression,
		Message: fmt.Sprintf("%s: %s", reason, expr),
	}
}

func newError(code ErrorCode, format string, args ...any) *ModelError {
	return &ModelError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errClosed() *ModelError {
	return newError(ErrCodeClosed, "unit of work is closed")
}

func errConstraint(typeName, prop, format string, args ...any) *ModelError {
	e := newError(ErrCodeConstraintViolation, "%s: "+format, append([]any{prop}, args...)...)
	e.Type = typeName
	return e
}

// backendFailure wraps a store error. Model errors returned by the store
// pass through unchanged.
func backendFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}
	return &ModelError{Code: ErrCodeBackendFailure, Message: op, Err: err}
}
