package types

import (
	"errors"
	"fmt"
)

// Fault codes carried by remote faults.
const (
	CodeNotFound        = "not_found"
	CodeAlreadyExists   = "already_exists"
	CodeInvalidArgument = "invalid_argument"
	CodeUnknownWord     = "unknown_word"
	CodeInvalidRegion   = "invalid_region"
	CodeUnauthorized    = "unauthorized"
	CodeRateLimited     = "rate_limited"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Fault is the error a remote operation fails with. It unwraps to the
// sentinel error matching its code, so errors.Is works on both sides of
// the wire.
type Fault struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewFault builds a fault for err, keeping err's message.
func NewFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Code: CodeOf(err), Message: err.Error()}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("remote fault %s: %s", f.Code, f.Message)
}

// Unwrap returns the sentinel error for the fault code, or nil.
func (f *Fault) Unwrap() error {
	switch f.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeAlreadyExists:
		return ErrAlreadyExists
	case CodeInvalidArgument:
		return ErrInvalidArgument
	case CodeUnknownWord:
		return ErrUnknownWord
	case CodeInvalidRegion:
		return ErrInvalidRegion
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeRateLimited:
		return ErrRateLimited
	case CodeUnavailable:
		return ErrRegistryDetached
	}
	return nil
}

// ErrInvalidArgument groups the validation errors a caller can fix by
// changing its request.
var ErrInvalidArgument = errors.New("invalid argument")

// CodeOf maps an error to a fault code.
func CodeOf(err error) string {
	var f *Fault
	switch {
	case err == nil:
		return ""
	case errors.As(err, &f):
		return f.Code
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrUnknownWord):
		return CodeUnknownWord
	case errors.Is(err, ErrInvalidRegion):
		return CodeInvalidRegion
	case errors.Is(err, ErrInvalidMetadata),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidAudio),
		errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrRegistryDetached):
		return CodeUnavailable
	}
	return CodeInternal
}
