// Package origin is a small stand-in for the JSONPlaceholder API,
// serving posts and albums from SQLite.
package origin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	tee "github.com/always-cache/querycache/pkg/response-writer-tee"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Config struct {
	Store *Store
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Delay added to every response.
	Latency time.Duration
}

type Server struct {
	store   *Store
	log     zerolog.Logger
	latency time.Duration
}

func NewServer(config Config) *Server {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	return &Server{
		store:   config.Store,
		log:     logger.With().Str("component", "origin").Logger(),
		latency: config.Latency,
	}
}

// Router returns the HTTP handler of the origin.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(tee.RequestLogger(s.log))
	if s.latency > 0 {
		r.Use(s.delay)
	}

	r.Get("/posts", s.getPosts)
	r.Put("/posts/{id}", s.putPost)
	r.Get("/albums", s.getAlbums)
	r.Put("/albums/{id}", s.putAlbum)
	return r
}

func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.Posts(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, posts)
}

func (s *Server) getAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.store.Albums(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, albums)
}

func (s *Server) putPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var p Post
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid post", http.StatusBadRequest)
		return
	}
	p.ID = id
	if err := s.store.PutPost(r.Context(), p); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) putAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var a Album
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "Invalid album", http.StatusBadRequest)
		return
	}
	a.ID = id
	if err := s.store.PutAlbum(r.Context(), a); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Store operation failed")
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Could not write response body to client")
	}
}
