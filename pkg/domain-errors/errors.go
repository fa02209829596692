// Package domainerrors provides coded errors for expected domain outcomes.
// Services translate store sentinels and rule violations into these; transport
// maps codes onto wire responses. Callers branch on Code, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a domain outcome. The set is closed: handlers switch over it
// exhaustively, so adding a code means revisiting every switch.
type Code string

const (
	// Credential outcomes.
	CodeNotFound                   Code = "not_found"
	CodeWrongCredentialKind        Code = "wrong_credential_kind"
	CodeDeactivated                Code = "deactivated"
	CodeExpired                    Code = "expired"
	CodeVoterNotFound              Code = "voter_not_found"
	CodeNotAuthorizedForCredential Code = "not_authorized_for_credential"
	CodeVoterSuspended             Code = "voter_suspended"
	CodeAlreadyVoted               Code = "already_voted"
	CodeCategoryNotFound           Code = "category_not_found"
	CodeCandidateNotFound          Code = "candidate_not_found"
	CodeCandidateInactive          Code = "candidate_inactive"
	CodeMalformedCredential        Code = "malformed_credential"

	// Infrastructure and edge outcomes.
	CodeStoreUnavailable Code = "store_unavailable"
	CodeBadRequest       Code = "bad_request"
	CodeUnauthorized     Code = "unauthorized"
	CodeInternal         Code = "internal"
)

// Error carries a code plus a human-readable message. The wrapped cause, if
// any, is reachable through errors.Unwrap for logging; it never crosses the
// transport boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the code from err, walking the wrap chain. Uncoded errors
// report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// Is is a readability alias for HasCode at handler call sites.
func Is(err error, code Code) bool { return HasCode(err, code) }
