package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrStateConflict    = errors.New("state conflict")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrForbidden        = errors.New("forbidden")
	ErrLocked           = errors.New("locked")
)

var kinds = []error{
	ErrValidation,
	ErrStateConflict,
	ErrNotFound,
	ErrAlreadyExists,
	ErrCapacityExceeded,
	ErrForbidden,
	ErrLocked,
}

// Error carries an error kind plus the operation and context that produced it.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the kind as well as the exact error value, so both
// errors.Is(err, ErrLocked) and errors.Is(err, ErrRequirementsLocked) hold.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Op == t.Op && e.Kind == t.Kind && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewError builds a kinded error.
func NewError(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError attaches kind and context to an underlying error.
func WrapError(kind error, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validationf is a shorthand for a formatted validation error.
func Validationf(op, format string, args ...any) *Error {
	return NewError(ErrValidation, op, fmt.Sprintf(format, args...))
}

// KindOf returns the kind sentinel of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Challenge errors
var (
	ErrChallengeNotFound  = NewError(ErrNotFound, "challenge", "challenge not found")
	ErrInvalidDateRange   = NewError(ErrValidation, "challenge", "end date must be after start date and start date must not be in the past")
	ErrEarlyActivation    = NewError(ErrStateConflict, "challenge.activate", "challenge cannot be activated before its start date")
	ErrChallengeLocked    = NewError(ErrLocked, "challenge.update", "completed challenges cannot be modified")
	ErrRequirementsLocked = NewError(ErrLocked, "challenge.update", "requirements cannot change once participants exist")
	ErrParticipantsExist  = NewError(ErrLocked, "challenge.delete", "challenge has participants; archive it instead")
	ErrChallengeClosed    = NewError(ErrStateConflict, "challenge", "challenge is not active")
)

// Participation errors
var (
	ErrParticipantNotFound = NewError(ErrNotFound, "participant", "participant not found")
	ErrAlreadyRegistered   = NewError(ErrAlreadyExists, "participant.join", "user already registered for this challenge")
	ErrMaxParticipants     = NewError(ErrCapacityExceeded, "participant.join", "maximum participants reached")
	ErrAttemptsExhausted   = NewError(ErrStateConflict, "participant.start", "maximum attempts reached")
	ErrAlreadyCompleted    = NewError(ErrStateConflict, "participant", "challenge already completed")
	ErrNoActiveAttempt     = NewError(ErrStateConflict, "participant", "no attempt in progress")
)

// Certificate errors
var (
	ErrCertificateNotFound     = NewError(ErrNotFound, "certificate", "certificate not found")
	ErrCertificateExists       = NewError(ErrAlreadyExists, "certificate.issue", "certificate already issued for this challenge")
	ErrCertificatesDisabled    = NewError(ErrStateConflict, "certificate.issue", "certificates are not enabled for this challenge")
	ErrNotCompleted            = NewError(ErrStateConflict, "certificate.issue", "challenge not completed")
	ErrCertificateInvalid      = NewError(ErrStateConflict, "certificate.verify", "certificate is not valid")
	ErrCertificateNotRevocable = NewError(ErrStateConflict, "certificate.revoke", "only issued or generated certificates can be revoked")
	ErrNotCertificateOwner     = NewError(ErrForbidden, "certificate", "certificate belongs to another user")
	ErrNotParticipantOwner     = NewError(ErrForbidden, "certificate.issue", "participant belongs to another user")
	ErrDuplicateCertificateID  = NewError(ErrAlreadyExists, "certificate.store", "certificate id or verification code collision")
)
