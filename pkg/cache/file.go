package cache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileCache is a directory-backed remote mirror, typically a network share
// used by several build machines. Entries are stored as raw files so images
// can be inspected directly; an optional sidecar holds the expiry.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-based cache in the given directory.
// The directory will be created if it doesn't exist.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Get retrieves a value from the cache.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	if expired, err := c.expired(path); err != nil {
		return nil, false, err
	} else if expired {
		_ = c.remove(path)
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value in the cache.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	if ttl > 0 {
		exp := strconv.FormatInt(time.Now().Add(ttl).UnixNano(), 10)
		if err := writeAtomic(path+".ttl", []byte(exp)); err != nil {
			return err
		}
	} else if err := os.Remove(path + ".ttl"); err != nil && !os.IsNotExist(err) {
		return err
	}

	return writeAtomic(path, data)
}

// Delete removes a value from the cache.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	return c.remove(c.path(key))
}

// Close does nothing for file cache.
func (c *FileCache) Close() error {
	return nil
}

// expired reports whether the entry at path has a sidecar expiry in the past.
func (c *FileCache) expired(path string) (bool, error) {
	raw, err := os.ReadFile(path + ".ttl")
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	exp, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// Unreadable sidecar - treat the entry as expired
		return true, nil
	}
	return time.Now().UnixNano() > exp, nil
}

func (c *FileCache) remove(path string) error {
	_ = os.Remove(path + ".ttl")
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// path converts a cache key to a file path.
// The first two hash characters form a subdirectory to avoid too many files in one dir.
func (c *FileCache) path(key string) string {
	hash := Hash([]byte(key))
	return filepath.Join(c.dir, hash[:2], hash[2:])
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so concurrent readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
