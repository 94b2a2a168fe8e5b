package cache

import "github.com/krisalay/memo-cache/types"

// Error sentinels, re-exported so callers only need this package.
var (
	ErrValidation    = types.ErrValidation
	ErrSerialization = types.ErrSerialization
	ErrConfiguration = types.ErrConfiguration
	ErrBackend       = types.ErrBackend
)
