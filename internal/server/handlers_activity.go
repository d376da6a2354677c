package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/auth"
	"github.com/hyperjump/reelrank/internal/keyword"
	"github.com/hyperjump/reelrank/internal/models"
)

const defaultHistoryLimit = 50

type keywordSearchResponse struct {
	Query      string          `json:"query"`
	Movies     []*models.Movie `json:"movies"`
	Suggestion string          `json:"suggestion,omitempty"`
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit, err := queryInt(r, "limit", models.DefaultPageSize)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit <= 0 || limit > models.MaxPageSize {
		limit = models.MaxPageSize
	}
	opts := &keyword.SearchOptions{Fuzzy: r.URL.Query().Get("fuzzy") == "true"}

	hits, err := s.keyword.Search(r.Context(), query, limit, opts)
	if err != nil {
		s.respondFailure(w, r, "searching movies", err)
		return
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.MovieID
	}
	byID, err := s.storage.GetMoviesByIDs(r.Context(), ids)
	if err != nil {
		s.respondFailure(w, r, "searching movies", err)
		return
	}
	resp := keywordSearchResponse{Query: query, Movies: make([]*models.Movie, 0, len(ids))}
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			resp.Movies = append(resp.Movies, m)
		}
	}
	if len(resp.Movies) == 0 {
		if suggestion, changed, err := s.keyword.Suggest(query); err == nil && changed {
			resp.Suggestion = suggestion
		}
	}

	if _, err := s.storage.AddSearchHistory(r.Context(), user.ID, query); err != nil {
		s.logger.Warn("failed to record search history", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, "Search completed successfully", resp)
}

func (s *Server) handleListSearchHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.storage.ListSearchHistory(r.Context(), user.ID, limit)
	if err != nil {
		s.respondFailure(w, r, "fetching search history", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Search history retrieved successfully", entries)
}

func (s *Server) handleDeleteSearchHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.storage.DeleteSearchHistory(r.Context(), id, user.ID); err != nil {
		s.respondFailure(w, r, "deleting search history", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Search history deleted successfully", nil)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	q, err := listQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.storage.ListFavorites(r.Context(), user.ID, q.Page, q.PageSize)
	if err != nil {
		s.respondFailure(w, r, "fetching favorites", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Favorites retrieved successfully", resp)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	movieID, ok := s.pathID(w, r, "movie_id")
	if !ok {
		return
	}
	fav, err := s.storage.AddFavorite(r.Context(), user.ID, movieID)
	if err != nil {
		s.respondFailure(w, r, "adding favorite", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, "Movie added to favorites", fav)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	movieID, ok := s.pathID(w, r, "movie_id")
	if !ok {
		return
	}
	if err := s.storage.RemoveFavorite(r.Context(), user.ID, movieID); err != nil {
		s.respondFailure(w, r, "removing favorite", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Movie removed from favorites", nil)
}
