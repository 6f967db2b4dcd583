package types

import "time"

// DictionaryDescriptor is the metadata payload used to create and look up a
// dictionary.
type DictionaryDescriptor struct {
	Metadata Metadata `json:"metadata"`
}

// Validate checks the metadata and requires at least one entry, since the
// metadata is the dictionary's only identity.
func (d DictionaryDescriptor) Validate() error {
	if len(d.Metadata) == 0 {
		return ErrNoEntries
	}
	return d.Metadata.Validate()
}

// Dictionary is a stored pronunciation/language dictionary.
type Dictionary struct {
	// DictionaryID is a UUID v7, generated on creation.
	DictionaryID string `json:"dictionary_id"`

	// Metadata is kept in creation order.
	Metadata Metadata `json:"metadata"`

	// Fingerprint identifies the metadata content; unique across dictionaries.
	Fingerprint string `json:"fingerprint"`

	CreatedAt time.Time `json:"created_at"`
}

// Descriptor returns the descriptor the dictionary was created from.
func (d Dictionary) Descriptor() DictionaryDescriptor {
	return DictionaryDescriptor{Metadata: d.Metadata}
}
