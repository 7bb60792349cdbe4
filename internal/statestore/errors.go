package statestore

import "errors"

var (
	// ErrEncode is returned when a value cannot be encoded as JSON.
	ErrEncode = errors.New("statestore: encode failed")

	// ErrDecode is returned when a stored value does not decode into dst.
	ErrDecode = errors.New("statestore: decode failed")

	// ErrEmptyKey is returned for operations on the empty key.
	ErrEmptyKey = errors.New("statestore: empty key")

	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("statestore: unknown backend")
)
