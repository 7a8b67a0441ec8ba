package configkey

import (
	"errors"
	"fmt"
)

// RetCode is the POSIX style status code carried by every reply. Negative values are
// failures, zero and positive values are successes.
type RetCode int32

const (
	RetCSuccess     RetCode = 0
	RetCNotFound    RetCode = -2  // -ENOENT
	RetCIO          RetCode = -5  // -EIO, engine unavailable
	RetCAgain       RetCode = -11 // -EAGAIN, no leader reachable
	RetCExists      RetCode = -17 // -EEXIST, conflicting dm-crypt secret
	RetCInvalid     RetCode = -22 // -EINVAL
	RetCTooLarge    RetCode = -27 // -EFBIG
	RetCExistsMatch RetCode = 17  // +EEXIST, identical dm-crypt secret already bound
)

// OK reports whether the code counts as success.
func (c RetCode) OK() bool {
	return c >= 0
}

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "success"
	case RetCNotFound:
		return "no such key"
	case RetCIO:
		return "input/output error"
	case RetCAgain:
		return "resource temporarily unavailable"
	case RetCExists, RetCExistsMatch:
		return "already exists"
	case RetCInvalid:
		return "invalid argument"
	case RetCTooLarge:
		return "entry too large"
	default:
		return fmt.Sprintf("code %d", int32(c))
	}
}

// Error is a failure of a store or dispatch operation carrying its reply code.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, int32(e.Code), e.Msg)
}

// NewError creates a new *Error.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf extracts the reply code of err: RetCSuccess for nil, RetCIO for errors that
// carry no code.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCIO
}

// IsNotFound reports whether err is a missing key.
func IsNotFound(err error) bool {
	return CodeOf(err) == RetCNotFound
}
