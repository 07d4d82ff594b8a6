package room

import (
	"errors"
	"fmt"
)

// PipelineError represents a rejection detected while finalizing a command.
//
// Rejections include:
//   - Malformed operation: unknown kind, missing payload, bad identity
//   - Unknown target: references an entity the room has never seen
//   - Quota exceeded: session has too many unsettled operations in flight
//
// A redelivered operation whose effect is already reflected is not a
// rejection; it finalizes as a no-op Result. A denied lock request is
// answered with a lock-denied event, not an error.
//
// PipelineError includes structured fields for diagnostics and client
// recovery.
type PipelineError struct {
	// Code identifies the rejection category.
	Code PipelineErrorCode

	// Message is a human-readable description.
	Message string

	// Session identifies the submitting session.
	Session string

	// OperationID identifies the rejected operation, when one exists.
	OperationID string

	// Details contains additional context.
	Details map[string]string
}

// PipelineErrorCode categorizes pipeline rejections.
type PipelineErrorCode string

const (
	// ErrCodeMalformed indicates the operation failed structural validation.
	ErrCodeMalformed PipelineErrorCode = "MALFORMED_OPERATION"

	// ErrCodeUnknownTarget indicates the operation references an entity the
	// room has never seen. The client must resynchronize.
	ErrCodeUnknownTarget PipelineErrorCode = "UNKNOWN_TARGET"

	// ErrCodeQuotaExceeded indicates the session exceeded its in-flight
	// operation allowance.
	ErrCodeQuotaExceeded PipelineErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Session != "" && e.OperationID != "" {
		return fmt.Sprintf("%s: %s (session=%s, op=%s)", e.Code, e.Message, e.Session, e.OperationID)
	}
	if e.Session != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.Session)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the pipeline error code from a (possibly wrapped) error.
func CodeOf(err error) (PipelineErrorCode, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// IsUnknownTarget reports whether the error is an unknown-target rejection.
func IsUnknownTarget(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeUnknownTarget
}

func malformedError(session, opID, msg string) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeMalformed,
		Message:     msg,
		Session:     session,
		OperationID: opID,
	}
}

func unknownTargetError(session, opID, missing string) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeUnknownTarget,
		Message:     fmt.Sprintf("unknown entity %s", missing),
		Session:     session,
		OperationID: opID,
		Details:     map[string]string{"missing": missing},
	}
}

func quotaError(session string, pending, limit int) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("session exceeded in-flight operation quota (%d >= %d)", pending, limit),
		Session: session,
		Details: map[string]string{
			"pending": fmt.Sprintf("%d", pending),
			"limit":   fmt.Sprintf("%d", limit),
		},
	}
}
