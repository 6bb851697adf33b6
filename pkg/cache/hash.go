package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ImageExt is the extension of rendered diagram images.
const ImageExt = ".png"

// ImageKey derives the content digest of a diagram render.
//
// The digest is the SHA-256 of the UTF-8 concatenation of code, the serialized
// per-call options, the tool path and the serialized tool arguments, in that
// order. Nothing is normalized: callers must pass options in a stable order or
// identical diagrams will produce different keys.
func ImageKey(code string, options []string, toolPath string, toolArgs []string) string {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write(serialize(options))
	h.Write([]byte(toolPath))
	h.Write(serialize(toolArgs))
	return hex.EncodeToString(h.Sum(nil))
}

// ImageName returns the file name of a rendered image: "<prefix>-<digest>.png".
func ImageName(prefix, digest string) string {
	return fmt.Sprintf("%s-%s%s", prefix, digest, ImageExt)
}

// serialize encodes a string list as JSON. nil and empty lists encode the same.
func serialize(parts []string) []byte {
	if parts == nil {
		parts = []string{}
	}
	data, _ := json.Marshal(parts)
	return data
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
