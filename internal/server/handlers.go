package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// pronunciationReader is implemented by registries that can return a
// word's full record.
type pronunciationReader interface {
	Pronunciation(ctx context.Context, dictionaryID, word string) (types.Pronunciation, error)
}

type handlers struct {
	reg     types.Registry
	logger  *slog.Logger
	maxBody int64
	status  api.Status
}

// param returns an unescaped URL parameter.
func param(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.reg.Echo(r.Context(), "ping"); err != nil {
		writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) echo(w http.ResponseWriter, r *http.Request) {
	var req api.EchoMessage
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	msg, err := h.reg.Echo(r.Context(), req.Message)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EchoMessage{Message: msg})
}

func (h *handlers) createDictionary(w http.ResponseWriter, r *http.Request) {
	var desc types.DictionaryDescriptor
	if err := decodeJSON(w, r, h.maxBody, &desc); err != nil {
		writeFault(w, r, err)
		return
	}
	id, err := h.reg.CreateDictionary(r.Context(), desc)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	h.logger.Debug("dictionary created", "dictionary_id", id)
	writeJSON(w, http.StatusCreated, api.IDResponse{ID: id})
}

func (h *handlers) getDictionary(w http.ResponseWriter, r *http.Request) {
	var desc types.DictionaryDescriptor
	if err := decodeJSON(w, r, h.maxBody, &desc); err != nil {
		writeFault(w, r, err)
		return
	}
	id, err := h.reg.GetDictionary(r.Context(), desc)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.IDResponse{ID: id})
}

func (h *handlers) getDictionaryMetadata(w http.ResponseWriter, r *http.Request) {
	desc, err := h.reg.GetDictionaryMetadata(r.Context(), param(r, "id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (h *handlers) findDictionaries(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	ids, err := h.reg.FindDictionaries(r.Context(), req.Metadata)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.IDsResponse{IDs: ids})
}

func (h *handlers) listDictionaries(w http.ResponseWriter, r *http.Request) {
	dicts, err := h.reg.ListDictionaries(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.DictionariesResponse{Dictionaries: dicts})
}

func (h *handlers) addPronunciations(w http.ResponseWriter, r *http.Request) {
	var req api.PronunciationRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	id, err := h.reg.AddPronunciations(r.Context(), param(r, "id"), req.Word, req.Variants)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.IDResponse{ID: id})
}

func (h *handlers) hasPronunciation(w http.ResponseWriter, r *http.Request) {
	dictionaryID, word := param(r, "id"), param(r, "word")
	found, err := h.reg.HasPronunciation(r.Context(), dictionaryID, word)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	resp := api.PronunciationResponse{Found: found}
	if pr, ok := h.reg.(pronunciationReader); ok && found {
		p, err := pr.Pronunciation(r.Context(), dictionaryID, word)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			writeFault(w, r, err)
			return
		}
		if err == nil {
			resp.Pronunciation = &p
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createCorpus(w http.ResponseWriter, r *http.Request) {
	var desc types.CorpusDescriptor
	if err := decodeJSON(w, r, h.maxBody, &desc); err != nil {
		writeFault(w, r, err)
		return
	}
	id, err := h.reg.CreateCorpus(r.Context(), param(r, "id"), desc)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	h.logger.Debug("corpus created", "corpus_id", id)
	writeJSON(w, http.StatusCreated, api.IDResponse{ID: id})
}

func (h *handlers) listCorpora(w http.ResponseWriter, r *http.Request) {
	corpora, err := h.reg.ListCorpora(r.Context(), param(r, "id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.CorporaResponse{Corpora: corpora})
}

func (h *handlers) getCorpusDescriptor(w http.ResponseWriter, r *http.Request) {
	desc, err := h.reg.GetCorpusDescriptor(r.Context(), param(r, "id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (h *handlers) createItem(w http.ResponseWriter, r *http.Request) {
	var req api.CreateItemRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	corpusID := param(r, "id")

	var item types.ItemDetail
	var err error
	switch {
	case req.Audio != nil && req.Text != nil:
		item, err = h.reg.CreateItemWithAudioAndText(r.Context(), corpusID, *req.Audio, *req.Text)
	case req.Audio != nil:
		item, err = h.reg.CreateItemWithAudio(r.Context(), corpusID, *req.Audio)
	case req.Text != nil:
		item, err = h.reg.CreateItemWithText(r.Context(), corpusID, *req.Text)
	default:
		item, err = h.reg.CreateItem(r.Context(), corpusID)
	}
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handlers) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.reg.GetItem(r.Context(), param(r, "id"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) createTextRegion(w http.ResponseWriter, r *http.Request) {
	var span types.TextSpan
	if err := decodeJSON(w, r, h.maxBody, &span); err != nil {
		writeFault(w, r, err)
		return
	}
	region, err := h.reg.CreateTextRegion(r.Context(), param(r, "id"), span)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, region)
}

func (h *handlers) createAudioRegion(w http.ResponseWriter, r *http.Request) {
	var req api.AudioRegionRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	itemID := param(r, "id")

	var region types.AudioRegion
	var err error
	if req.TextRegionID != "" {
		region, err = h.reg.CreateAudioRegionWithText(r.Context(), itemID, req.TextRegionID, req.AudioSpan)
	} else {
		region, err = h.reg.CreateAudioRegion(r.Context(), itemID, req.AudioSpan)
	}
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, region)
}

func (h *handlers) associateAudioRegion(w http.ResponseWriter, r *http.Request) {
	var req api.AssociateRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	if err := h.reg.AssociateAudioRegionWithText(r.Context(), param(r, "id"), req.TextRegionID); err != nil {
		writeFault(w, r, fmt.Errorf("associating audio region: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
