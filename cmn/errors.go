// Package cmn provides common low-level types and utilities shared by all
// crawler packages: error wrapping, JSON helpers, time formatting, id
// generation, and config defaults.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. A Problem row's `kind` field is always one of these.
const (
	ErrKindTransientNetwork = "transient-network"
	ErrKindRateLimited      = "rate-limited"
	ErrKindServerError      = "server-error"
	ErrKindClientError      = "client-error"
	ErrKindRobotsBlocked    = "robots-blocked"
	ErrKindParseFailure     = "parse-failure"
	ErrKindStorageFailure   = "storage-failure"
	ErrKindDuplicateAmbig   = "duplicate-ambiguity"
	ErrKindBudgetExceeded   = "budget-exceeded"
)

// KindedError carries a taxonomy kind alongside the wrapped cause so that
// planner telemetry can classify an error without re-parsing its message.
type KindedError struct {
	Kind   string
	Scope  string
	Target string
	cause  error
}

func (e *KindedError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Target)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Target, e.cause)
}

func (e *KindedError) Unwrap() error { return e.cause }

func NewKindedError(kind, scope, target string, cause error) *KindedError {
	return &KindedError{Kind: kind, Scope: scope, Target: target, cause: cause}
}

// Retriable reports whether the error's kind permits a retry: transient
// network faults, rate limiting and server errors do; everything else is
// terminal.
func Retriable(err error) bool {
	var ke *KindedError
	if !errors.As(err, &ke) {
		return false
	}
	switch ke.Kind {
	case ErrKindTransientNetwork, ErrKindRateLimited, ErrKindServerError:
		return true
	default:
		return false
	}
}

// Assert panics with msg when cond is false. Reserved for programmer
// errors (broken invariants), never for data-dependent control flow -
// callers must return a typed error for anything reachable from bad
// input or network conditions.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// AssertNoErr panics if err != nil. Used only where err can exclusively
// originate from a prior Assert-checked invariant (e.g. re-marshaling a
// value this process just unmarshaled).
func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
