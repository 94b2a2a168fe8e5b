package types

import "errors"

/*
The cache reports failures through four sentinel errors. Every error returned by a
backend wraps exactly one of them, so callers branch with errors.Is:

	if errors.Is(err, types.ErrBackend) {
		// store unreachable, NOT a cache miss
	}
*/
var (
	// ErrValidation is returned for malformed arguments: negative TTL, nil key,
	// non-comparable key, missing cast type.
	ErrValidation = errors.New("cache: validation error")

	// ErrSerialization is returned when a key or value cannot be encoded, or a stored
	// value cannot be decoded into the requested type.
	ErrSerialization = errors.New("cache: serialization error")

	// ErrConfiguration is returned when a backend or a memoized function is built
	// without a required dependency, or with an unusable one.
	ErrConfiguration = errors.New("cache: configuration error")

	// ErrBackend is returned when the underlying store fails (connection refused,
	// timeout, protocol error). It is never retried and never turned into a miss.
	ErrBackend = errors.New("cache: backend error")
)
