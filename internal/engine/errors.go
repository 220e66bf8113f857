package engine

import (
	"errors"
	"fmt"
)

// Kind groups engine errors by how a transport should surface them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStateConflict: the request does not fit the user's current state.
	KindStateConflict
	// KindPolicy: the request is refused by a rule the user can resolve.
	KindPolicy
	// KindProtocol: the client acted on stale state.
	KindProtocol
)

// Error is a sentinel engine error. Code doubles as the localization key.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrAlreadySearching = &Error{KindStateConflict, "already_searching", "user is already searching"}
	ErrAlreadyInSession = &Error{KindStateConflict, "already_in_session", "user is already in a chat"}
	ErrNotSearching     = &Error{KindStateConflict, "not_searching", "user is not searching"}
	ErrNotInChat        = &Error{KindStateConflict, "not_in_chat", "user is not in a chat"}
	ErrUnknownUser      = &Error{KindStateConflict, "unknown_user", "user is not known"}
	ErrNotBanned        = &Error{KindStateConflict, "not_banned", "user is not banned"}
	ErrAlreadyReferred  = &Error{KindStateConflict, "already_referred", "user already has a referrer"}

	ErrBanned              = &Error{KindPolicy, "banned", "user is banned"}
	ErrInsufficientBalance = &Error{KindPolicy, "insufficient_balance", "insufficient balance"}
	ErrInvalidAmount       = &Error{KindPolicy, "invalid_amount", "amount must be positive"}
	ErrSelfReferral        = &Error{KindPolicy, "self_referral", "users cannot refer themselves"}

	ErrNoActiveRequest = &Error{KindProtocol, "no_active_request", "no pending reveal request"}
	ErrAlreadyDecided  = &Error{KindProtocol, "already_decided", "reveal decision already recorded"}
)

// BalanceError is returned when a debit would make the balance negative.
// It matches ErrInsufficientBalance with errors.Is.
type BalanceError struct {
	Required int64
	Balance  int64
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %d, have %d", e.Required, e.Balance)
}

func (e *BalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// KindOf classifies err. Storage and other unexpected errors are KindUnknown.
func KindOf(err error) Kind {
	var be *BalanceError
	if errors.As(err, &be) {
		return KindPolicy
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// CodeOf returns the localization code of err, or "internal".
func CodeOf(err error) string {
	var be *BalanceError
	if errors.As(err, &be) {
		return ErrInsufficientBalance.Code
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return "internal"
}
