package client

import (
	"context"
	"net/http"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

func (c *Client) Echo(ctx context.Context, msg string) (string, error) {
	var resp api.EchoMessage
	if err := c.do(ctx, http.MethodPost, api.PathEcho, api.EchoMessage{Message: msg}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) CreateDictionary(ctx context.Context, desc types.DictionaryDescriptor) (string, error) {
	return c.postID(ctx, api.PathDictionaries, desc)
}

func (c *Client) GetDictionary(ctx context.Context, desc types.DictionaryDescriptor) (string, error) {
	return c.postID(ctx, api.PathDictionaryLookup, desc)
}

func (c *Client) GetDictionaryMetadata(ctx context.Context, id string) (types.DictionaryDescriptor, error) {
	var desc types.DictionaryDescriptor
	err := c.do(ctx, http.MethodGet, api.DictionaryMetadataPath(id), nil, &desc)
	return desc, err
}

func (c *Client) FindDictionaries(ctx context.Context, query types.Metadata) ([]string, error) {
	var resp api.IDsResponse
	if err := c.do(ctx, http.MethodPost, api.PathDictionarySearch, api.SearchRequest{Metadata: query}, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func (c *Client) ListDictionaries(ctx context.Context) ([]types.Dictionary, error) {
	var resp api.DictionariesResponse
	if err := c.do(ctx, http.MethodGet, api.PathDictionaries, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dictionaries, nil
}

func (c *Client) AddPronunciations(ctx context.Context, dictionaryID, word string, variants []string) (string, error) {
	return c.postID(ctx, api.PronunciationsPath(dictionaryID), api.PronunciationRequest{Word: word, Variants: variants})
}

func (c *Client) HasPronunciation(ctx context.Context, dictionaryID, word string) (bool, error) {
	resp, err := c.lookupPronunciation(ctx, dictionaryID, word)
	return resp.Found, err
}

// Pronunciation returns the stored record for word. Returns ErrNotFound if
// the dictionary does not know it, or if the server does not return
// records.
func (c *Client) Pronunciation(ctx context.Context, dictionaryID, word string) (types.Pronunciation, error) {
	resp, err := c.lookupPronunciation(ctx, dictionaryID, word)
	if err != nil {
		return types.Pronunciation{}, err
	}
	if !resp.Found || resp.Pronunciation == nil {
		return types.Pronunciation{}, &types.Fault{Code: types.CodeNotFound, Message: "no pronunciation for " + word}
	}
	return *resp.Pronunciation, nil
}

func (c *Client) lookupPronunciation(ctx context.Context, dictionaryID, word string) (api.PronunciationResponse, error) {
	var resp api.PronunciationResponse
	err := c.do(ctx, http.MethodGet, api.PronunciationPath(dictionaryID, word), nil, &resp)
	return resp, err
}

func (c *Client) CreateCorpus(ctx context.Context, dictionaryID string, desc types.CorpusDescriptor) (string, error) {
	return c.postID(ctx, api.DictionaryCorporaPath(dictionaryID), desc)
}

func (c *Client) GetCorpusDescriptor(ctx context.Context, id string) (types.CorpusDescriptor, error) {
	var desc types.CorpusDescriptor
	err := c.do(ctx, http.MethodGet, api.CorpusPath(id), nil, &desc)
	return desc, err
}

func (c *Client) ListCorpora(ctx context.Context, dictionaryID string) ([]types.Corpus, error) {
	var resp api.CorporaResponse
	if err := c.do(ctx, http.MethodGet, api.DictionaryCorporaPath(dictionaryID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Corpora, nil
}

func (c *Client) CreateItem(ctx context.Context, corpusID string) (types.ItemDetail, error) {
	return c.createItem(ctx, corpusID, api.CreateItemRequest{})
}

func (c *Client) CreateItemWithAudio(ctx context.Context, corpusID string, audio types.AudioDescriptor) (types.ItemDetail, error) {
	return c.createItem(ctx, corpusID, api.CreateItemRequest{Audio: &audio})
}

func (c *Client) CreateItemWithText(ctx context.Context, corpusID string, text types.TextDescriptor) (types.ItemDetail, error) {
	return c.createItem(ctx, corpusID, api.CreateItemRequest{Text: &text})
}

func (c *Client) CreateItemWithAudioAndText(ctx context.Context, corpusID string, audio types.AudioDescriptor, text types.TextDescriptor) (types.ItemDetail, error) {
	return c.createItem(ctx, corpusID, api.CreateItemRequest{Audio: &audio, Text: &text})
}

func (c *Client) createItem(ctx context.Context, corpusID string, req api.CreateItemRequest) (types.ItemDetail, error) {
	var item types.ItemDetail
	err := c.do(ctx, http.MethodPost, api.CorpusItemsPath(corpusID), req, &item)
	return item, err
}

func (c *Client) GetItem(ctx context.Context, itemID string) (types.ItemDetail, error) {
	var item types.ItemDetail
	err := c.do(ctx, http.MethodGet, api.ItemPath(itemID), nil, &item)
	return item, err
}

func (c *Client) CreateTextRegion(ctx context.Context, itemID string, span types.TextSpan) (types.TextRegion, error) {
	var region types.TextRegion
	err := c.do(ctx, http.MethodPost, api.TextRegionsPath(itemID), span, &region)
	return region, err
}

func (c *Client) CreateAudioRegion(ctx context.Context, itemID string, span types.AudioSpan) (types.AudioRegion, error) {
	var region types.AudioRegion
	err := c.do(ctx, http.MethodPost, api.AudioRegionsPath(itemID), api.AudioRegionRequest{AudioSpan: span}, &region)
	return region, err
}

func (c *Client) CreateAudioRegionWithText(ctx context.Context, itemID, textRegionID string, span types.AudioSpan) (types.AudioRegion, error) {
	var region types.AudioRegion
	req := api.AudioRegionRequest{AudioSpan: span, TextRegionID: textRegionID}
	err := c.do(ctx, http.MethodPost, api.AudioRegionsPath(itemID), req, &region)
	return region, err
}

func (c *Client) AssociateAudioRegionWithText(ctx context.Context, audioRegionID, textRegionID string) error {
	return c.do(ctx, http.MethodPut, api.AudioRegionTextPath(audioRegionID), api.AssociateRequest{TextRegionID: textRegionID}, nil)
}

func (c *Client) postID(ctx context.Context, path string, body any) (string, error) {
	var resp api.IDResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
