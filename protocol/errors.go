package protocol

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/f3rmion/thresh/wire"
)

// ErrorKind classifies why a run failed.
type ErrorKind uint8

const (
	KindInvalidParameters ErrorKind = iota + 1
	KindInvalidShare
	KindSignatureAggregation
	KindInsufficientShares
	KindUnknownProtocolTag
	KindCorruptState
	KindAuthenticationFailed
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindInvalidParameters:    "invalid parameters",
	KindInvalidShare:         "invalid share",
	KindSignatureAggregation: "signature aggregation error",
	KindInsufficientShares:   "insufficient shares",
	KindUnknownProtocolTag:   "unknown protocol tag",
	KindCorruptState:         "corrupt state",
	KindAuthenticationFailed: "authentication failed",
	KindInternal:             "internal error",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the typed failure of a protocol run. Culprit is the participant
// whose contribution failed verification, or zero when none is known.
type Error struct {
	Kind    ErrorKind
	Culprit wire.ParticipantID
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Culprit != 0 {
		msg = fmt.Sprintf("%s from participant %d", msg, e.Culprit)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Fail returns an Error of kind blaming culprit.
func Fail(kind ErrorKind, culprit wire.ParticipantID, err error) *Error {
	return &Error{Kind: kind, Culprit: culprit, Err: err}
}

// Failf is [Fail] with a formatted cause.
func Failf(kind ErrorKind, culprit wire.ParticipantID, format string, args ...any) *Error {
	return &Error{Kind: kind, Culprit: culprit, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// asError converts any error into an *Error, keeping an existing
// classification.
func asError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Fail(KindInternal, 0, err)
}

// CulpritOf returns the culprit of the first *Error in err's chain.
func CulpritOf(err error) wire.ParticipantID {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Culprit
	}
	return 0
}
