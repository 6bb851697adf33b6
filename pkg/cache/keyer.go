package cache

// Keyer maps image names to keys in a remote [Cache].
type Keyer interface {
	// ImageKey returns the remote key for a rendered image file name.
	ImageKey(name string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a keyer without a namespace.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ImageKey returns "image:<name>".
func (DefaultKeyer) ImageKey(name string) string {
	return "image:" + name
}

// ScopedKeyer wraps a Keyer with a prefix for project isolation.
// This is useful when several documentation projects share one remote
// backend and must not see each other's entries.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "ditaadoc:handbook:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ImageKey generates a prefixed image key.
func (k *ScopedKeyer) ImageKey(name string) string {
	return k.prefix + k.inner.ImageKey(name)
}
