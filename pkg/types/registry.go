package types

import (
	"context"
	"errors"
)

// Registry is the remote metadata contract. The storage backends and the
// HTTP client proxy both implement it, so callers cannot tell a local
// registry from a remote one.
type Registry interface {
	// Echo returns msg unchanged. It exists to check connectivity.
	Echo(ctx context.Context, msg string) (string, error)

	// CreateDictionary stores a dictionary and returns its id. Returns
	// ErrAlreadyExists if an existing dictionary's metadata contains every
	// pair of desc, which includes an identical metadata set.
	CreateDictionary(ctx context.Context, desc DictionaryDescriptor) (string, error)

	// GetDictionary returns the id of a dictionary whose metadata contains
	// every pair of desc, ignoring entry order. An exact match wins; among
	// several supersets the oldest is returned. Returns ErrNotFound if none
	// matches.
	GetDictionary(ctx context.Context, desc DictionaryDescriptor) (string, error)

	// GetDictionaryMetadata returns the descriptor stored for id.
	GetDictionaryMetadata(ctx context.Context, id string) (DictionaryDescriptor, error)

	// FindDictionaries returns the ids of dictionaries whose metadata
	// contains every pair of query.
	FindDictionaries(ctx context.Context, query Metadata) ([]string, error)

	ListDictionaries(ctx context.Context) ([]Dictionary, error)

	// AddPronunciations merges variants into the word's record, creating it
	// if needed, and returns the record id.
	AddPronunciations(ctx context.Context, dictionaryID, word string, variants []string) (string, error)

	// HasPronunciation reports whether the dictionary knows word.
	HasPronunciation(ctx context.Context, dictionaryID, word string) (bool, error)

	// CreateCorpus stores a corpus under an existing dictionary.
	CreateCorpus(ctx context.Context, dictionaryID string, desc CorpusDescriptor) (string, error)

	GetCorpusDescriptor(ctx context.Context, id string) (CorpusDescriptor, error)

	ListCorpora(ctx context.Context, dictionaryID string) ([]Corpus, error)

	// CreateItem creates an item with an empty audio record and an empty
	// text record, each with one empty region.
	CreateItem(ctx context.Context, corpusID string) (ItemDetail, error)

	// CreateItemWithAudio creates an item with one audio record and a region
	// spanning all of it.
	CreateItemWithAudio(ctx context.Context, corpusID string, audio AudioDescriptor) (ItemDetail, error)

	// CreateItemWithText creates an item with one text record and a region
	// spanning all words. Every word needs a pronunciation in the corpus's
	// dictionary, or ErrUnknownWord is returned.
	CreateItemWithText(ctx context.Context, corpusID string, text TextDescriptor) (ItemDetail, error)

	// CreateItemWithAudioAndText creates both records; the audio region is
	// linked to the text region.
	CreateItemWithAudioAndText(ctx context.Context, corpusID string, audio AudioDescriptor, text TextDescriptor) (ItemDetail, error)

	GetItem(ctx context.Context, itemID string) (ItemDetail, error)

	CreateTextRegion(ctx context.Context, itemID string, span TextSpan) (TextRegion, error)

	CreateAudioRegion(ctx context.Context, itemID string, span AudioSpan) (AudioRegion, error)

	// CreateAudioRegionWithText creates an audio region linked to an
	// existing text region of the same item.
	CreateAudioRegionWithText(ctx context.Context, itemID, textRegionID string, span AudioSpan) (AudioRegion, error)

	// AssociateAudioRegionWithText links an audio region to a text region of
	// the same item.
	AssociateAudioRegionWithText(ctx context.Context, audioRegionID, textRegionID string) error
}

// Catalog owns the backend lifecycle: callers attach to a backend, obtain
// the Registry, and detach when done.
type Catalog interface {
	// Attach connects to the backend described by config. Returns
	// ErrAlreadyAttached if called while attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent.
	Detach() error

	// Registry returns the attached registry, or ErrRegistryDetached.
	Registry() (Registry, error)
}

// Registry errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidID        = errors.New("invalid id")
	ErrUnknownWord      = errors.New("unknown word")
	ErrInvalidRegion    = errors.New("invalid region")
	ErrInvalidAudio     = errors.New("invalid audio")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrRegistryDetached = errors.New("registry is detached")
	ErrAlreadyAttached  = errors.New("registry is already attached")
)
