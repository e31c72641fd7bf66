package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a store error for the caller's retry decision.
type Kind int

const (
	// KindTransient covers network blips and recoverable service errors.
	// Safe to retry.
	KindTransient Kind = iota

	// KindInvalidArgument marks missing or ill-typed inputs rejected at the
	// API edge. Never retried.
	KindInvalidArgument

	// KindNotFound means the addressed row does not exist (or was already
	// moved past the expected state).
	KindNotFound

	// KindConflict marks a uniqueness or state conflict.
	KindConflict

	// KindPermanent marks protocol-level failures such as bad credentials
	// or schema mismatches. Never retried.
	KindPermanent
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Error is the typed error crossing the store boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err. Unclassified errors report
// KindTransient so that callers err on the side of retrying.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// invalidf builds a KindInvalidArgument error.
func invalidf(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf(format, args...)}
}

// classify wraps a driver error with the appropriate Kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return &Error{Kind: KindConflict, Op: op, Err: err}
		case strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "57"):
			// connection failures, resource exhaustion, operator intervention
			return &Error{Kind: KindTransient, Op: op, Err: err}
		default:
			return &Error{Kind: KindPermanent, Op: op, Err: err}
		}
	}

	// Anything else is treated as a network-level blip.
	return &Error{Kind: KindTransient, Op: op, Err: err}
}
