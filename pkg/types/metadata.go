package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

// Entry is one key/value pair of a metadata collection.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an ordered collection of entries describing a dictionary or
// corpus. Keys are unique within one collection. Two collections are equal
// when they hold the same set of pairs, regardless of order.
type Metadata []Entry

// Metadata validation errors.
var (
	ErrInvalidMetadata = errors.New("invalid metadata")
	ErrEmptyKey        = fmt.Errorf("%w: entry key must not be empty", ErrInvalidMetadata)
	ErrDuplicateKey    = fmt.Errorf("%w: duplicate entry key", ErrInvalidMetadata)
	ErrNoEntries       = fmt.Errorf("%w: at least one entry is required", ErrInvalidMetadata)
)

// Validate checks that every key is non-empty and unique. An empty
// collection is valid here; descriptors decide whether they need entries.
func (m Metadata) Validate() error {
	seen := make(map[string]bool, len(m))
	for _, e := range m {
		if e.Key == "" {
			return ErrEmptyKey
		}
		if seen[e.Key] {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, e.Key)
		}
		seen[e.Key] = true
	}
	return nil
}

// Sorted returns a copy ordered by key, then value.
func (m Metadata) Sorted() Metadata {
	out := make(Metadata, len(m))
	copy(out, m)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Equal reports whether m and other hold the same set of pairs.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	return m.Contains(other) && other.Contains(m)
}

// Contains reports whether every pair of subset is present in m.
func (m Metadata) Contains(subset Metadata) bool {
	have := m.Map()
	for _, e := range subset {
		v, ok := have[e.Key]
		if !ok || v != e.Value {
			return false
		}
	}
	return true
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Map returns the collection as a key to value map.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, len(m))
	for _, e := range m {
		out[e.Key] = e.Value
	}
	return out
}

// Fingerprint returns the hex SHA-256 of the key-sorted collection. Equal
// collections always share a fingerprint.
func (m Metadata) Fingerprint() string {
	h := sha256.New()
	for _, e := range m.Sorted() {
		h.Write([]byte(e.Key))
		h.Write([]byte{0})
		h.Write([]byte(e.Value))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MetadataFromMap builds a key-sorted collection from a map.
func MetadataFromMap(values map[string]string) Metadata {
	out := make(Metadata, 0, len(values))
	for k, v := range values {
		out = append(out, Entry{Key: k, Value: v})
	}
	return out.Sorted()
}
