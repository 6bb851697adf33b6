package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ImageStore is the local directory of rendered images, usually
// "<output>/_images". An entry is valid as soon as its file exists.
type ImageStore struct {
	dir string
}

// ImageEntry describes one stored image.
type ImageEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// NewImageStore returns a store rooted at dir. The directory is created
// lazily by the first write.
func NewImageStore(dir string) *ImageStore {
	return &ImageStore{dir: dir}
}

// Dir returns the store directory.
func (s *ImageStore) Dir() string {
	return s.dir
}

// Path returns the absolute path an image with the given name is stored at.
func (s *ImageStore) Path(name string) string {
	p := filepath.Join(s.dir, name)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Exists reports whether a regular file is present for name.
func (s *ImageStore) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// EnsureDir creates the store directory if needed.
func (s *ImageStore) EnsureDir() error {
	return os.MkdirAll(s.dir, 0755)
}

// Read returns the image stored under name, or ErrNotFound.
func (s *ImageStore) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// Write stores data under name atomically.
func (s *ImageStore) Write(name string, data []byte) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	return writeAtomic(s.Path(name), data)
}

// List returns the images whose names start with prefix, sorted by name.
// A missing directory yields an empty list.
func (s *ImageStore) List(prefix string) ([]ImageEntry, error) {
	dirents, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []ImageEntry
	for _, d := range dirents {
		if d.IsDir() || !s.matches(d.Name(), prefix) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue // removed concurrently
		}
		entries = append(entries, ImageEntry{
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Clear removes every image whose name starts with prefix and returns how
// many files were deleted.
func (s *ImageStore) Clear(prefix string) (int, error) {
	entries, err := s.List(prefix)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if err := os.Remove(s.Path(e.Name)); err != nil && !os.IsNotExist(err) {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *ImageStore) matches(name, prefix string) bool {
	if !strings.HasSuffix(name, ImageExt) {
		return false
	}
	return prefix == "" || strings.HasPrefix(name, prefix+"-")
}
