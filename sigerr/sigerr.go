// Package sigerr defines the error taxonomy the signing core reports to its
// stage dispatcher: every fatal condition is tagged with a Kind so the
// dispatcher can decide how to react (purge state, surface a distinguished
// status, etc.) without string-matching error messages.
package sigerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a stage failed. See spec.md §7.
type Kind int

const (
	// ProtocolOrder marks a wrong-stage or index-overflow request.
	ProtocolOrder Kind = iota
	// Integrity marks an HMAC mismatch or AEAD-open failure.
	Integrity
	// Semantic marks a fee/mask-sum/change/output-count violation.
	Semantic
	// PrefixMismatch marks exp_tx_prefix_hash not matching the computed one.
	PrefixMismatch
	// UserRejection marks a clean confirmation decline.
	UserRejection
	// CryptoPrecondition marks a reconstructed key not matching its claimed value.
	CryptoPrecondition
)

func (k Kind) String() string {
	switch k {
	case ProtocolOrder:
		return "protocol-order"
	case Integrity:
		return "integrity"
	case Semantic:
		return "semantic"
	case PrefixMismatch:
		return "prefix-mismatch"
	case UserRejection:
		return "user-rejection"
	case CryptoPrecondition:
		return "crypto-precondition"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind. The message deliberately
// never distinguishes *which* HMAC or field failed for Integrity errors —
// spec.md §7 requires that integrity failures be indistinguishable by
// return value, so all construction goes through New/Wrap rather than
// ad-hoc fmt.Errorf at call sites.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.Kind == Integrity {
		return fmt.Sprintf("%s: integrity check failed", e.Kind)
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is a *Error with the same Kind, so callers can
// do errors.Is(err, sigerr.New(sigerr.Integrity, "")) to classify failures.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds a Kind-tagged error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap builds a Kind-tagged error around an existing cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, along with whether the extraction succeeded.
func KindOf(err error) (Kind, bool) {
	var o *Error
	if errors.As(err, &o) {
		return o.Kind, true
	}
	return 0, false
}
