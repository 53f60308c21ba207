package wire

import "errors"

// ErrInvalidValue marks a value that cannot be encoded: an unknown type tag,
// a container nested in a container, a container mixing element types or a
// set/map not in canonical order.
var ErrInvalidValue = errors.New("wire: invalid value")

// EncodeError reports a value rejected before serialization.
type EncodeError struct {
	Message string
	Err     error
}

func (e *EncodeError) Error() string {
	return e.Message
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError reports truncated or malformed input. It is distinct from
// EncodeError: the bytes themselves are unusable.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	return e.Message
}

func decodeErr(msg string) *DecodeError {
	return &DecodeError{Message: "wire: " + msg}
}

func encodeErr(err error) *EncodeError {
	return &EncodeError{Message: err.Error(), Err: err}
}
