package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the closed set of outcomes callers branch on.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a typed application error. Code is a stable machine-readable name.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that wrapped copies (WithMessage) still compare equal
// to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying a different human message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Err: e.Err}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation = newError(KindValidation, "ValidationError", "validation failed")

	ErrUserNotFound        = newError(KindNotFound, "UserNotFound", "user not found")
	ErrChannelNotFound     = newError(KindNotFound, "ChannelNotFound", "channel not found")
	ErrContactNotFound     = newError(KindNotFound, "ContactNotFound", "contact not found")
	ErrSecretNotFound      = newError(KindNotFound, "SecretNotFound", "secret not found or already used")
	ErrInviteDoesNotExists = newError(KindNotFound, "InviteDoesNotExists", "invite does not exist")
	ErrInviteWasCancelled  = newError(KindNotFound, "InviteWasCancelled", "invite was cancelled by the inviter")

	ErrEmailDoesNotExist     = newError(KindConflict, "EmailDoesNotExist", "no user with this email")
	ErrEmailAllreadyExists   = newError(KindConflict, "EmailAllreadyExists", "email already exists")
	ErrContactAllreadyExist  = newError(KindConflict, "ContactAllreadyExist", "user is already in your contacts")
	ErrInviteAllreadyExists  = newError(KindConflict, "InviteAllreadyExists", "invite already exists")
	ErrUserAllreadyInChannel = newError(KindConflict, "UserAllreadyInChannel", "user is already a channel member")
	ErrCantAddSelfToContacts = newError(KindConflict, "CantAddSelfToContacts", "cannot add yourself to contacts")
	ErrNotChannelMember      = newError(KindConflict, "NotChannelMember", "user is not a channel member")
	ErrOwnerCannotLeave      = newError(KindConflict, "OwnerCannotLeave", "channel owner cannot leave the channel")

	ErrUnauthorized    = newError(KindUnauthorized, "Unauthorized", "authorization failed")
	ErrUnauthenticated = newError(KindUnauthorized, "Unauthenticated", "invalid userId")
	ErrInvalidPassword = newError(KindUnauthorized, "InvalidPassword", "invalid password")
)

// Validation returns a ValidationError carrying msg.
func Validation(msg string) *Error {
	return ErrValidation.WithMessage(msg)
}

// Internal wraps an infrastructure failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "Internal", Message: "internal error", Err: err}
}

// KindOf reports the Kind of err; errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the Code of err, or "Internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}

// HTTPStatus maps err to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
