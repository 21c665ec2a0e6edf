package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotAdmin          = errors.New("administrator account required")
	ErrTokenExpired      = errors.New("token expired")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrCommandInFlight   = errors.New("command already in flight")
	ErrThrottled         = errors.New("too many operator commands")
	ErrSessionClosed     = errors.New("session closed")
	ErrUnknownOrder      = errors.New("unknown order")
)

// TransientFetchError is a failed snapshot fetch; retried on the next cycle.
type TransientFetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ChannelError is a push transport failure; the transport reconnects on its own.
type ChannelError struct {
	OrderID string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("push channel for order %s: %v", e.OrderID, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// TransitionError is a rejected operator command.
type TransitionError struct {
	OrderID   string
	Direction Direction
	From      Status
	Reason    string
	Err       error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s order %s", e.Direction, e.OrderID)
	if e.From != "" {
		msg += " from " + string(e.From)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrIllegalTransition
}

// AuthError is a login failure. RetryAfter is set for rate limiting.
type AuthError struct {
	Kind       error
	RetryAfter time.Duration
	Detail     string
}

func (e *AuthError) Error() string {
	if errors.Is(e.Kind, ErrRateLimited) && e.RetryAfter > 0 {
		return fmt.Sprintf("%v: retry in %s", e.Kind, e.RetryAfter)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return e.Kind.Error()
}

func (e *AuthError) Unwrap() error { return e.Kind }

// OrderError is a rejected submission; the caller keeps its cart.
type OrderError struct {
	Status int
	Detail string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("order rejected (%d): %s", e.Status, e.Detail)
	}
	return "order rejected: " + e.Detail
}

func (e *OrderError) Unwrap() error { return e.Err }
