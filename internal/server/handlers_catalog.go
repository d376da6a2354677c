package server

import (
	"net/http"

	"github.com/hyperjump/reelrank/internal/models"
)

// listQuery reads pagination and filters shared by the catalog listings.
func listQuery(r *http.Request) (models.MovieListQuery, error) {
	var q models.MovieListQuery
	var err error
	if q.Page, err = queryInt(r, "page", 1); err != nil {
		return q, err
	}
	if q.PageSize, err = queryInt(r, "page_size", models.DefaultPageSize); err != nil {
		return q, err
	}
	genre, err := queryInt(r, "genre_id", 0)
	if err != nil {
		return q, err
	}
	q.GenreID = int64(genre)
	q.Search = r.URL.Query().Get("search")
	return q, q.Validate()
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.storage.ListMovies(r.Context(), q)
	if err != nil {
		s.respondFailure(w, r, "listing movies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Movies retrieved successfully", resp)
}

func (s *Server) handleListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.storage.ListGenres(r.Context())
	if err != nil {
		s.respondFailure(w, r, "listing genres", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Genres retrieved successfully", genres)
}

func (s *Server) handleMoviesByActor(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := listQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.ActorID = actorID
	resp, err := s.storage.ListMovies(r.Context(), q)
	if err != nil {
		s.respondFailure(w, r, "listing movies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Movies retrieved successfully", resp)
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	movie, err := s.storage.GetMovie(r.Context(), id)
	if err != nil {
		s.respondFailure(w, r, "fetching movie", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Movie retrieved successfully", movie)
}
