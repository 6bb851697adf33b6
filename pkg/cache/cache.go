// Package cache provides the content-addressed storage used by the ditaa renderer.
//
// Two layers are involved:
//
//   - The local image directory ([ImageStore]): rendered PNG files named by
//     [ImageName] from an [ImageKey] digest. A file present at the expected
//     path is a valid entry; there is no expiry and no content verification.
//   - An optional remote mirror implementing [Cache] ([FileCache], [RedisCache],
//     [MongoCache]) so several builders can share rendered images. [NullCache]
//     disables mirroring.
//
// Remote keys are produced by a [Keyer]; [NewScopedKeyer] namespaces them so
// unrelated projects can share one backend.
package cache

import (
	"context"
	"time"
)

// TTLImage is the time-to-live for mirrored images. Zero means entries never
// expire: an image name is a content hash, so it can never go stale.
const TTLImage time.Duration = 0

// Cache is a byte-oriented key/value store with optional expiry.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the stored data and true on a hit, or nil and false on a miss.
	// A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
