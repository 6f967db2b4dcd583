package types

import "time"

// CorpusDescriptor describes a speech/text corpus: free-form metadata and
// the date its data was collected.
type CorpusDescriptor struct {
	Metadata    Metadata  `json:"metadata"`
	CollectDate time.Time `json:"collect_date"`
}

// Validate checks the metadata keys. Corpora are not identified by content,
// so an empty collection is accepted.
func (c CorpusDescriptor) Validate() error {
	return c.Metadata.Validate()
}

// Equal compares metadata as a set and the collection dates as instants.
func (c CorpusDescriptor) Equal(other CorpusDescriptor) bool {
	return c.CollectDate.Equal(other.CollectDate) && c.Metadata.Equal(other.Metadata)
}

// Corpus is a stored corpus scoped under a dictionary.
type Corpus struct {
	// CorpusID is a UUID v7, generated on creation.
	CorpusID string `json:"corpus_id"`

	// DictionaryID references the parent dictionary.
	DictionaryID string `json:"dictionary_id"`

	Metadata    Metadata  `json:"metadata"`
	CollectDate time.Time `json:"collect_date"`
	CreatedAt   time.Time `json:"created_at"`
}

// Descriptor returns the descriptor the corpus was created from.
func (c Corpus) Descriptor() CorpusDescriptor {
	return CorpusDescriptor{Metadata: c.Metadata, CollectDate: c.CollectDate}
}
