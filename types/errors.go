package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide how far they propagate.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransientFetch
	KindDataIntegrity
	KindValidation
	KindLivePriceDeviation
	KindTransaction
	KindLoanCallback
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransientFetch:
		return "transient_fetch"
	case KindDataIntegrity:
		return "data_integrity"
	case KindValidation:
		return "validation_failure"
	case KindLivePriceDeviation:
		return "live_price_deviation"
	case KindTransaction:
		return "transaction_failure"
	case KindLoanCallback:
		return "loan_callback_failure"
	default:
		return "unknown"
	}
}

// Error is the engine error type. Venue and Pair are optional context.
type Error struct {
	Kind  ErrorKind
	Op    string
	Venue string
	Pair  string
	Err   error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrTransientFetch     = &Error{Kind: KindTransientFetch}
	ErrDataIntegrity      = &Error{Kind: KindDataIntegrity}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrLivePriceDeviation = &Error{Kind: KindLivePriceDeviation}
	ErrTransaction        = &Error{Kind: KindTransaction}
	ErrLoanCallback       = &Error{Kind: KindLoanCallback}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Venue != "" {
		msg += " [venue=" + e.Venue + "]"
	}
	if e.Pair != "" {
		msg += " [pair=" + e.Pair + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Err == nil && t.Venue == "" && t.Pair == "" {
		return t.Kind == e.Kind
	}
	return t == e
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithVenue returns a copy annotated with the venue name.
func (e *Error) WithVenue(venue string) *Error {
	c := *e
	c.Venue = venue
	return &c
}

// WithPair returns a copy annotated with the pair key.
func (e *Error) WithPair(pair string) *Error {
	c := *e
	c.Pair = pair
	return &c
}

// KindOf extracts the kind of the outermost engine error in the chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
