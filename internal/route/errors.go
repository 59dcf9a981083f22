package route

import (
	"errors"
	"fmt"
)

// DecodeKind separates broken input from routes that are deliberately not
// published.
type DecodeKind int

const (
	// Malformed input: truncated structures, attribute overruns, wrong
	// address widths.
	Malformed DecodeKind = iota
	// Filtered routes: unsupported types, cloned IPv6 cache entries,
	// link-local destinations, reserved or sub-interface next hops.
	Filtered
)

func (k DecodeKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case Filtered:
		return "filtered"
	default:
		return "unknown"
	}
}

// DecodeError explains why a message produced no record.
type DecodeError struct {
	Kind   DecodeKind
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("route %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("route %s: %s", e.Kind, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(err error, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: Malformed, Reason: fmt.Sprintf(format, args...), Err: err}
}

func filtered(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: Filtered, Reason: fmt.Sprintf(format, args...)}
}

// IsFiltered reports whether err is a policy drop rather than a failure.
func IsFiltered(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == Filtered
}

// MissingFieldError reports a mandatory field absent from an encode
// request.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "route request is missing " + e.Field
}

// Is matches any MissingFieldError for the same field.
func (e *MissingFieldError) Is(target error) bool {
	t, ok := target.(*MissingFieldError)
	return ok && t.Field == e.Field
}

var (
	ErrMissingDestination = &MissingFieldError{Field: "destination"}
	ErrMissingPrefixLen   = &MissingFieldError{Field: "prefix length"}
	ErrMissingFamily      = &MissingFieldError{Field: "family"}
	ErrMissingHopCount    = &MissingFieldError{Field: "hop count"}
)

// ErrAddrLen is returned for an address whose width does not match its
// family.
var ErrAddrLen = errors.New("address length does not match family")
