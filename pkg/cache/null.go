package cache

import (
	"context"
	"time"
)

// NullCache is the mirror used when no remote backend is configured.
// Every lookup misses, so renders always fall through to the local image
// directory and the external tool.
type NullCache struct{}

// NewNullCache creates a null cache.
func NewNullCache() Cache {
	return NullCache{}
}

// IsNull reports whether c is a NullCache, letting callers skip mirror
// bookkeeping entirely.
func IsNull(c Cache) bool {
	switch c.(type) {
	case nil, NullCache, *NullCache:
		return true
	}
	return false
}

func (NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullCache) Delete(context.Context, string) error                     { return nil }
func (NullCache) Close() error                                             { return nil }

// Ensure NullCache implements Cache.
var _ Cache = NullCache{}
