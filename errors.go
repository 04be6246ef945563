package tradeloop

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the trading loop. Pipeline stages return
// tagged errors rather than panicking across boundaries; the coordinator
// inspects the kind to decide how a cycle ends.
type Kind int

const (
	// KindInput marks a malformed snapshot or decision payload. State is
	// never mutated on such failures.
	KindInput Kind = iota + 1
	// KindInsufficientFunds is a business-rule rejection of a BUY, not a
	// system fault.
	KindInsufficientFunds
	// KindNoShares is a business-rule rejection of a SELL, not a system
	// fault.
	KindNoShares
	// KindPersistence marks a backend read or write failure. A failed write
	// must not leave partial state behind.
	KindPersistence
	// KindOracleUnavailable marks a prediction oracle that cannot serve; the
	// loop degrades to a fallback forecast instead of failing the cycle.
	KindOracleUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNoShares:
		return "no_shares"
	case KindPersistence:
		return "persistence"
	case KindOracleUnavailable:
		return "oracle_unavailable"
	default:
		return "unknown"
	}
}

// Error is a tagged failure. It wraps an underlying cause when one exists.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf creates a tagged error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr tags an underlying error.
func WrapErr(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, or 0 when the error carries
// no tag.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ErrOracleUnavailable is the sentinel an oracle returns when it has no
// model to serve predictions with. Callers substitute the fallback forecast.
var ErrOracleUnavailable = &Error{Kind: KindOracleUnavailable, Msg: "prediction oracle unavailable"}
