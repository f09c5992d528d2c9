package gate

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonNotFound            Reason = "not_found"
	ReasonExpired             Reason = "expired"
	ReasonConflict            Reason = "conflict"
	ReasonInvalidTransaction  Reason = "invalid_transaction"
	ReasonWalletMismatch      Reason = "wallet_mismatch"
	ReasonProofMismatch       Reason = "proof_mismatch"
	ReasonUpstreamUnavailable Reason = "upstream_unavailable"
)

// Sentinels for errors.Is; a *GateError matches the sentinel of its reason.
var (
	ErrNotFound            = &GateError{Reason: ReasonNotFound}
	ErrExpired             = &GateError{Reason: ReasonExpired}
	ErrConflict            = &GateError{Reason: ReasonConflict}
	ErrInvalidTransaction  = &GateError{Reason: ReasonInvalidTransaction}
	ErrWalletMismatch      = &GateError{Reason: ReasonWalletMismatch}
	ErrProofMismatch       = &GateError{Reason: ReasonProofMismatch}
	ErrUpstreamUnavailable = &GateError{Reason: ReasonUpstreamUnavailable}
)

type GateError struct {
	Reason Reason
	Err    error
}

func newError(reason Reason, format string, args ...any) *GateError {
	return &GateError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

func (e *GateError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *GateError) Unwrap() error {
	return e.Err
}

func (e *GateError) Is(target error) bool {
	other, ok := target.(*GateError)
	return ok && other.Reason == e.Reason
}

// Retryable is true only for upstream failures; every other reason is a
// final answer for the request.
func (e *GateError) Retryable() bool {
	return e.Reason == ReasonUpstreamUnavailable
}

// ReasonOf returns the reason of a gate error, or "" for other errors.
func ReasonOf(err error) Reason {
	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateErr.Reason
	}
	return ""
}
