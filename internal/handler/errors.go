package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/wesleywu/routesync/internal/netlink"
)

// Result is the outcome code returned to the client of a request.
type Result int

const (
	// ResultOK means the kernel acknowledged the request
	ResultOK Result = iota
	// ResultError covers failures not attributable to the request itself
	ResultError
	// ResultInvalidArgument means the request could not be encoded
	ResultInvalidArgument
	// ResultKernelRejected means the kernel answered with an error
	ResultKernelRejected
	// ResultTimeout means no acknowledgement arrived in time
	ResultTimeout
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultError:
		return "Error"
	case ResultInvalidArgument:
		return "InvalidArgument"
	case ResultKernelRejected:
		return "KernelRejected"
	case ResultTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// ErrInvalidArgument marks requests rejected before reaching the kernel.
var ErrInvalidArgument = errors.New("invalid argument")

// RequestError is a failed request together with its result code.
type RequestError struct {
	Result Result
	Key    string
	Cause  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request for %s failed [%s]: %v", e.Key, e.Result, e.Cause)
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether repeating the request might succeed.
func (e *RequestError) IsRetryable() bool {
	return e.Result == ResultTimeout || e.Result == ResultError
}

// ResultOf maps an error to its result code.
func ResultOf(err error) Result {
	var re *RequestError
	var ke *netlink.KernelError
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &re):
		return re.Result
	case errors.Is(err, ErrInvalidArgument):
		return ResultInvalidArgument
	case errors.Is(err, netlink.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ResultTimeout
	case errors.As(err, &ke):
		return ResultKernelRejected
	default:
		return ResultError
	}
}

func fail(key string, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{Result: ResultOf(err), Key: key, Cause: err}
}
