package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mesh-intelligence/riddler/pkg/api"
)

func (s *Server) routes() http.Handler {
	h := &handlers{reg: s.cfg.Registry, logger: s.logger, maxBody: s.cfg.MaxBodyBytes, status: s.status()}

	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		requestLogger(s.logger),
		recoverer(s.logger),
	)
	if s.cfg.RateLimit > 0 {
		r.Use(rateLimit(s.cfg.RateLimit, s.cfg.RateBurst))
	}

	r.Get(api.PathStatus, h.getStatus)
	r.Get(api.PathHealth, h.health)

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.Auth != nil {
			r.Use(s.cfg.Auth.Middleware(writeFault), recordSubject)
		}

		r.Post("/echo", h.echo)

		r.Route("/dictionaries", func(r chi.Router) {
			r.Post("/", h.createDictionary)
			r.Get("/", h.listDictionaries)
			r.Post("/lookup", h.getDictionary)
			r.Post("/search", h.findDictionaries)
			r.Get("/{id}/metadata", h.getDictionaryMetadata)
			r.Post("/{id}/pronunciations", h.addPronunciations)
			r.Get("/{id}/pronunciations/{word}", h.hasPronunciation)
			r.Post("/{id}/corpora", h.createCorpus)
			r.Get("/{id}/corpora", h.listCorpora)
		})

		r.Get("/corpora/{id}", h.getCorpusDescriptor)
		r.Post("/corpora/{id}/items", h.createItem)

		r.Get("/items/{id}", h.getItem)
		r.Post("/items/{id}/text-regions", h.createTextRegion)
		r.Post("/items/{id}/audio-regions", h.createAudioRegion)

		r.Put("/audio-regions/{id}/text-region", h.associateAudioRegion)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFault(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFault(w, r, errMethodNotAllowed)
	})
	return r
}

// status describes this server for the status resource.
func (s *Server) status() api.Status {
	caps := []string{
		api.CapabilityDictionaries,
		api.CapabilityCorpora,
		api.CapabilityPronunciations,
		api.CapabilityItems,
	}
	if s.cfg.Auth != nil {
		caps = append(caps, api.CapabilityAuth)
	}
	return api.Status{
		Name:         "riddler",
		Version:      s.cfg.Version,
		Backend:      s.cfg.Backend,
		Capabilities: caps,
	}
}
