package boundary

import (
	"errors"
	"fmt"

	"github.com/f3rmion/thresh/channel"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/session"
)

// Code is the result of a boundary call. Codes 1 through 8 mirror
// [protocol.ErrorKind].
type Code int32

const (
	OK                       Code = 0
	CodeInvalidParameters    Code = Code(protocol.KindInvalidParameters)
	CodeInvalidShare         Code = Code(protocol.KindInvalidShare)
	CodeSignatureAggregation Code = Code(protocol.KindSignatureAggregation)
	CodeInsufficientShares   Code = Code(protocol.KindInsufficientShares)
	CodeUnknownProtocolTag   Code = Code(protocol.KindUnknownProtocolTag)
	CodeCorruptState         Code = Code(protocol.KindCorruptState)
	CodeAuthenticationFailed Code = Code(protocol.KindAuthenticationFailed)
	CodeInternal             Code = Code(protocol.KindInternal)

	// CodeInvalidHandle means the handle is zero, unknown or destroyed.
	CodeInvalidHandle Code = 16
	// CodeInvalidBuffer means an input buffer is missing, oversized or
	// malformed.
	CodeInvalidBuffer Code = 17
	// CodeNotDone means an artifact was requested before completion.
	CodeNotDone Code = 18
)

var codeNames = map[Code]string{
	OK:                       "ok",
	CodeInvalidParameters:    "invalid parameters",
	CodeInvalidShare:         "invalid share",
	CodeSignatureAggregation: "signature aggregation error",
	CodeInsufficientShares:   "insufficient shares",
	CodeUnknownProtocolTag:   "unknown protocol tag",
	CodeCorruptState:         "corrupt state",
	CodeAuthenticationFailed: "authentication failed",
	CodeInternal:             "internal error",
	CodeInvalidHandle:        "invalid handle",
	CodeInvalidBuffer:        "invalid buffer",
	CodeNotDone:              "not done",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// Error is a boundary failure that has no protocol kind.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "boundary: " + e.Code.String()
	}
	return "boundary: " + e.Code.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func fail(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf maps any error returned by this package to its code. A nil error
// is OK.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return Code(pe.Kind)
	}
	switch {
	case errors.Is(err, channel.ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, channel.ErrKeySize):
		return CodeInvalidBuffer
	case errors.Is(err, session.ErrDestroyed):
		return CodeInvalidHandle
	}
	return CodeInternal
}
