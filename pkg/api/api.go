// Package api defines the HTTP wire format shared by the Riddler server and
// client: route paths and request and response bodies. Entity bodies reuse
// the types package directly.
package api

import (
	"net/url"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// Fixed routes.
const (
	PathStatus           = "/"
	PathHealth           = "/healthz"
	PathEcho             = "/v1/echo"
	PathDictionaries     = "/v1/dictionaries"
	PathDictionaryLookup = "/v1/dictionaries/lookup"
	PathDictionarySearch = "/v1/dictionaries/search"
)

// DictionaryMetadataPath is GET for GetDictionaryMetadata.
func DictionaryMetadataPath(id string) string {
	return PathDictionaries + "/" + url.PathEscape(id) + "/metadata"
}

// PronunciationsPath is POST for AddPronunciations.
func PronunciationsPath(dictionaryID string) string {
	return PathDictionaries + "/" + url.PathEscape(dictionaryID) + "/pronunciations"
}

// PronunciationPath is GET for HasPronunciation.
func PronunciationPath(dictionaryID, word string) string {
	return PronunciationsPath(dictionaryID) + "/" + url.PathEscape(word)
}

// DictionaryCorporaPath is POST for CreateCorpus and GET for ListCorpora.
func DictionaryCorporaPath(dictionaryID string) string {
	return PathDictionaries + "/" + url.PathEscape(dictionaryID) + "/corpora"
}

// CorpusPath is GET for GetCorpusDescriptor.
func CorpusPath(id string) string {
	return "/v1/corpora/" + url.PathEscape(id)
}

// CorpusItemsPath is POST for the CreateItem family.
func CorpusItemsPath(corpusID string) string {
	return CorpusPath(corpusID) + "/items"
}

// ItemPath is GET for GetItem.
func ItemPath(id string) string {
	return "/v1/items/" + url.PathEscape(id)
}

// TextRegionsPath is POST for CreateTextRegion.
func TextRegionsPath(itemID string) string {
	return ItemPath(itemID) + "/text-regions"
}

// AudioRegionsPath is POST for CreateAudioRegion and CreateAudioRegionWithText.
func AudioRegionsPath(itemID string) string {
	return ItemPath(itemID) + "/audio-regions"
}

// AudioRegionTextPath is PUT for AssociateAudioRegionWithText.
func AudioRegionTextPath(audioRegionID string) string {
	return "/v1/audio-regions/" + url.PathEscape(audioRegionID) + "/text-region"
}

// EchoMessage is both the request and response of Echo.
type EchoMessage struct {
	Message string `json:"message"`
}

// IDResponse carries the identity returned by a create or lookup.
type IDResponse struct {
	ID string `json:"id"`
}

// SearchRequest is the body of FindDictionaries.
type SearchRequest struct {
	Metadata types.Metadata `json:"metadata"`
}

// IDsResponse lists identities.
type IDsResponse struct {
	IDs []string `json:"ids"`
}

// DictionariesResponse is the body of ListDictionaries.
type DictionariesResponse struct {
	Dictionaries []types.Dictionary `json:"dictionaries"`
}

// PronunciationRequest is the body of AddPronunciations.
type PronunciationRequest struct {
	Word     string   `json:"word"`
	Variants []string `json:"variants"`
}

// PronunciationResponse answers HasPronunciation. Pronunciation is set when
// the word is known and the server can return its record.
type PronunciationResponse struct {
	Found         bool                 `json:"found"`
	Pronunciation *types.Pronunciation `json:"pronunciation,omitempty"`
}

// CorporaResponse is the body of ListCorpora.
type CorporaResponse struct {
	Corpora []types.Corpus `json:"corpora"`
}

// CreateItemRequest selects the item shape by which records are present.
// With neither, the item gets empty audio and text records.
type CreateItemRequest struct {
	Audio *types.AudioDescriptor `json:"audio,omitempty"`
	Text  *types.TextDescriptor  `json:"text,omitempty"`
}

// AudioRegionRequest creates an audio region, linked to TextRegionID when
// set.
type AudioRegionRequest struct {
	types.AudioSpan
	TextRegionID string `json:"text_region_id,omitempty"`
}

// AssociateRequest is the body of AssociateAudioRegionWithText.
type AssociateRequest struct {
	TextRegionID string `json:"text_region_id"`
}

// FaultResponse is the body of every non-2xx response.
type FaultResponse struct {
	Fault types.Fault `json:"fault"`
}

// Status describes the service at PathStatus.
type Status struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Backend      string   `json:"backend,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Capabilities advertised in Status.
const (
	CapabilityDictionaries   = "dictionaries"
	CapabilityCorpora        = "corpora"
	CapabilityPronunciations = "pronunciations"
	CapabilityItems          = "items"
	CapabilityAuth           = "auth"
)
