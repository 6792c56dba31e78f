// Package pipeerr carries the pipeline's error taxonomy: every fallible
// operation in internal/ returns an *Error instead of a bare error so
// callers can classify without string matching.
package pipeerr

import "fmt"

// Kind is one of the seven error categories the pipeline distinguishes.
type Kind int

const (
	Unknown Kind = iota
	Network
	TransientHTTP
	Ban
	Auth
	Parse
	LogicGuard
	IO
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "NETWORK"
	case TransientHTTP:
		return "TRANSIENT_HTTP"
	case Ban:
		return "BAN"
	case Auth:
		return "AUTH"
	case Parse:
		return "PARSE"
	case LogicGuard:
		return "LOGIC_GUARD"
	case IO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an underlying error with the operation that produced it and
// its taxonomy Kind.
type Error struct {
	Op   string
	K    Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.K)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.K, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Kind() Kind { return e.K }

// New builds an *Error for op/kind wrapping err.
func New(op string, k Kind, err error) *Error {
	return &Error{Op: op, K: k, Err: err}
}

// KindOf returns the Kind carried by err, or Unknown if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return Unknown
	}
	return e.K
}

// Is reports whether err's Kind is k.
func Is(err error, k Kind) bool { return KindOf(err) == k }

// Retryable reports whether the taxonomy says this error kind should be
// retried locally by the HTTP client (Network, TransientHTTP only).
func Retryable(err error) bool {
	k := KindOf(err)
	return k == Network || k == TransientHTTP
}

// Fatal reports whether the taxonomy says this error must bubble all the
// way to the orchestrator as critical (Auth, IO, LogicGuard).
func Fatal(err error) bool {
	k := KindOf(err)
	return k == Auth || k == IO || k == LogicGuard
}
