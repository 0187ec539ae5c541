package memo

import "errors"

// Sentinel errors for memoization operations.
var (
	// ErrMissingParent indicates the parent directory of a cache location
	// does not exist. This is a configuration error and is always returned
	// to the caller, unlike the soft unusable-location outcome.
	ErrMissingParent = errors.New("memo: parent directory of cache location does not exist")

	// ErrSignatureMismatch indicates call arguments do not match the wrapped
	// function's declared signature.
	ErrSignatureMismatch = errors.New("memo: arguments do not match function signature")

	// ErrInvalidSignature indicates a signature with no name or duplicate
	// parameter names.
	ErrInvalidSignature = errors.New("memo: invalid signature")

	// ErrNilFunc indicates a nil function was wrapped.
	ErrNilFunc = errors.New("memo: function is nil")
)
