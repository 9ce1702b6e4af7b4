package types

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrorKind is the machine-checkable classification of a failure. User-facing
// notifications are derived from the kind, never from raw remote messages.
type ErrorKind string

const (
	ErrUnknownNetwork      ErrorKind = "UNKNOWN_NETWORK"
	ErrNoAccounts          ErrorKind = "NO_ACCOUNTS"
	ErrWrongNetwork        ErrorKind = "WRONG_NETWORK"
	ErrContractUnresolved  ErrorKind = "CONTRACT_UNRESOLVED"
	ErrNoContractAtAddress ErrorKind = "NO_CONTRACT_AT_ADDRESS"
	ErrInvalidDays         ErrorKind = "INVALID_DAYS"
	ErrInsufficientFunds   ErrorKind = "INSUFFICIENT_FUNDS"
	ErrUserRejected        ErrorKind = "USER_REJECTED"
	ErrInsufficientGas     ErrorKind = "INSUFFICIENT_GAS_FUNDS"
	ErrNotReady            ErrorKind = "NOT_READY"
	ErrCheckoutInFlight    ErrorKind = "CHECKOUT_IN_FLIGHT"
	ErrRemoteCallFailed    ErrorKind = "REMOTE_CALL_FAILED"
)

// Error carries a classification kind, an optional human message and the
// wrapped cause. No failure is fatal: every Error returns the caller to an
// idle, retryable state.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`

	// Required and Available are set only for INSUFFICIENT_FUNDS so the
	// presentation layer can show both amounts.
	Required  *big.Int `json:"required,omitempty"`
	Available *big.Int `json:"available,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error with a human message.
func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapErr classifies an underlying failure.
func WrapErr(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InsufficientFundsError reports a balance shortfall with both amounts.
// Copies are taken so later arithmetic on the originals cannot mutate it.
func InsufficientFundsError(required, available *big.Int) *Error {
	return &Error{
		Kind:      ErrInsufficientFunds,
		Message:   fmt.Sprintf("need %s but only %s available", required, available),
		Required:  new(big.Int).Set(required),
		Available: new(big.Int).Set(available),
	}
}

// KindOf extracts the classification of err, or REMOTE_CALL_FAILED when err
// carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrRemoteCallFailed
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
