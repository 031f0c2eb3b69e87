package services

import (
	"errors"
	"fmt"
)

// ErrKind is a stable machine-readable error code. Validation-kind failures
// are returned as values so callers can branch without unwrapping; only
// transaction-internal failures (constraint violations, connectivity) surface
// as plain errors and roll the enclosing transaction back.
type ErrKind string

const (
	ErrInvalidFormat           ErrKind = "INVALID_FORMAT"
	ErrNotFound                ErrKind = "NOT_FOUND"
	ErrExpired                 ErrKind = "EXPIRED"
	ErrInactive                ErrKind = "INACTIVE"
	ErrUsageLimitExceeded      ErrKind = "USAGE_LIMIT_EXCEEDED"
	ErrSelfInviteAttempt       ErrKind = "SELF_INVITE_ATTEMPT"
	ErrAlreadyRegistered       ErrKind = "ALREADY_REGISTERED"
	ErrCodeGenerationExhausted ErrKind = "CODE_GENERATION_EXHAUSTED"
	ErrInsufficientCredits     ErrKind = "INSUFFICIENT_CREDITS"
	ErrApprovalNotFound        ErrKind = "APPROVAL_NOT_FOUND"
)

// DomainError pairs an ErrKind with a message fit for direct display.
type DomainError struct {
	Kind    ErrKind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match two DomainErrors by kind alone.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return de.Kind == e.Kind
	}
	return false
}

func domainErr(kind ErrKind, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrKind from err, or "" for non-domain errors.
func KindOf(err error) ErrKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
