package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	querycache "github.com/always-cache/querycache"
	cachekey "github.com/always-cache/querycache/pkg/cache-key"
	"github.com/always-cache/querycache/pkg/metrics"
	fetcher "github.com/always-cache/querycache/pkg/resource-fetcher"
	"github.com/always-cache/querycache/pkg/resources"
	tee "github.com/always-cache/querycache/pkg/response-writer-tee"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type server struct {
	client  *querycache.Client
	fetcher *fetcher.Fetcher
	metrics *metrics.Prometheus
	log     zerolog.Logger
}

type queryResponse struct {
	Status     querycache.Status `json:"status"`
	Refreshing bool              `json:"refreshing"`
	Data       any               `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Kind       fetcher.Kind      `json:"kind,omitempty"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(tee.RequestLogger(s.log))

	r.Get("/posts", s.getPosts)
	r.Get("/albums", s.getAlbums)
	r.Post("/invalidate/{resource}", s.invalidate)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// getPosts answers with the current query state.
// With ?wait=1 it waits for data first.
func (s *server) getPosts(w http.ResponseWriter, r *http.Request) {
	if wait(r) {
		if _, err := resources.QueryPosts(r.Context(), s.client, s.fetcher, querycache.Options{}); err != nil {
			s.logQueryError(r, err)
		}
		if r.Context().Err() != nil {
			return
		}
	}
	respond(s, w, resources.UsePosts(s.client, s.fetcher, querycache.Options{Disabled: wait(r)}))
}

// getAlbums is like getPosts, for albums whose title contains ?q=.
func (s *server) getAlbums(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if wait(r) {
		if _, err := resources.QueryAlbums(r.Context(), s.client, s.fetcher, q, querycache.Options{}); err != nil {
			s.logQueryError(r, err)
		}
		if r.Context().Err() != nil {
			return
		}
	}
	respond(s, w, resources.UseAlbums(s.client, s.fetcher, q, querycache.Options{Disabled: wait(r)}))
}

func (s *server) logQueryError(r *http.Request, err error) {
	s.log.Warn().Err(err).
		Str("url", r.URL.String()).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("kind", string(fetcher.KindOf(err))).
		Msg("Query failed")
}

// invalidate marks all cached queries of a resource as stale.
func (s *server) invalidate(w http.ResponseWriter, r *http.Request) {
	prefix, err := cachekey.New(chi.URLParam(r, "resource"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refetched := s.client.Invalidate(prefix)
	keys := make([][]any, 0, len(refetched))
	for _, key := range refetched {
		keys = append(keys, key.Parts())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"refetched": keys})
}

func wait(r *http.Request) bool {
	v := r.URL.Query().Get("wait")
	return v == "1" || v == "true"
}

func respond[T any](s *server, w http.ResponseWriter, res querycache.Result[T]) {
	body := queryResponse{
		Status:     res.Status,
		Refreshing: res.Refreshing,
	}
	if res.HasData {
		body.Data = res.Data
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
		body.Kind = fetcher.KindOf(res.Err)
	}

	status := http.StatusOK
	switch {
	case res.Status == querycache.StatusLoading || res.Status == querycache.StatusIdle:
		status = http.StatusAccepted
	case res.Status == querycache.StatusError && !res.HasData:
		status = http.StatusBadGateway
		if errors.Is(res.Err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	w.Header().Set("Query-Status", res.CacheStatus())
	s.writeJSON(w, status, body)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Could not write response body to client")
	}
}
