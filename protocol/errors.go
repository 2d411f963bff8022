package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is the root of every wire format error.
	ErrParse = errors.New("malformed MRCP message")

	ErrStartLinePartCount  = fmt.Errorf("%w: incorrect start-line part count", ErrParse)
	ErrMalformedStartLine  = fmt.Errorf("%w: incorrect start-line format", ErrParse)
	ErrMalformedHeader     = fmt.Errorf("%w: incorrect message-header format", ErrParse)
	ErrContentTooLarge     = fmt.Errorf("%w: content length exceeds limit", ErrParse)
	ErrUnknownRequestState = fmt.Errorf("%w: unknown request-state", ErrParse)

	ErrInvalidChannelIdentifier = errors.New("invalid channel identifier")

	// ErrIllegalValue is matched by every IllegalValueError.
	ErrIllegalValue = errors.New("illegal header value")
)

// IllegalValueError is returned when a header value does not fit the grammar
// of its header.
type IllegalValueError struct {
	Header HeaderName
	Value  string
	Err    error
}

func (e *IllegalValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("illegal value '%s' for header %s: %v", e.Value, e.Header, e.Err)
	}

	return fmt.Sprintf("illegal value '%s' for header %s", e.Value, e.Header)
}

func (e *IllegalValueError) Unwrap() error {
	return e.Err
}

func (e *IllegalValueError) Is(target error) bool {
	return target == ErrIllegalValue
}
