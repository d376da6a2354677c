package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/embedding"
	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/internal/storage"
	"github.com/hyperjump/reelrank/internal/vector"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: status < 400, Message: message, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, message, nil)
}

// respondFailure maps err to a status code and logs server-side failures.
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	var conflict *storage.ConflictError
	switch {
	case errors.As(err, &conflict):
		s.respondError(w, http.StatusBadRequest, conflictMessage(conflict.Field))
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vector.ErrDimensionMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrUnavailable):
		s.logger.Error(action+" failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "embedding model unavailable")
	default:
		s.logger.Error(action+" failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "error "+action+": "+err.Error())
	}
}

func conflictMessage(field string) string {
	switch field {
	case "email":
		return "Email already exists"
	case "username":
		return "Username already exists"
	case "favorite":
		return "Movie already in favorites"
	default:
		return field + " already exists"
	}
}

// decodeJSON reads the request body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := models.ValidateStruct(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter; absent means def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}
