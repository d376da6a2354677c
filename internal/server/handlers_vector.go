package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/auth"
	"github.com/hyperjump/reelrank/internal/extract"
	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/internal/recommend"
	"github.com/hyperjump/reelrank/internal/storage"
)

type removeResponse struct {
	Removed   int  `json:"removed"`
	Persisted bool `json:"persisted"`
}

type statusResponse struct {
	Engine       recommend.Stats `json:"engine"`
	CatalogCount int64           `json:"catalog_movies"`
	KeywordDocs  uint64          `json:"keyword_documents"`
	DiskUsage    *diskUsage      `json:"disk_usage,omitempty"`
}

type diskUsage struct {
	Database  int64 `json:"database_bytes"`
	Snapshots int64 `json:"snapshot_bytes"`
	Total     int64 `json:"total_bytes"`
}

// searchRequest reads query and k from the JSON body on POST and from the
// query string otherwise. An absent k leaves req.K nil.
func (s *Server) searchRequest(w http.ResponseWriter, r *http.Request) (models.SearchRequest, bool) {
	var req models.SearchRequest
	if r.Method == http.MethodPost && r.URL.Query().Get("query") == "" {
		return req, s.decodeJSON(w, r, &req)
	}
	req.Query = strings.TrimSpace(r.URL.Query().Get("query"))
	if r.URL.Query().Get("k") != "" {
		k, err := queryK(r)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return req, false
		}
		req.K = &k
	}
	if err := models.ValidateStruct(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// requestK is the k a search request asked for, or UseDefaultK.
func requestK(req models.SearchRequest) int {
	if req.K == nil {
		return recommend.UseDefaultK
	}
	return *req.K
}

// queryK reads an optional non-negative k from the query string.
func queryK(r *http.Request) (int, error) {
	k, err := queryInt(r, "k", recommend.UseDefaultK)
	if err != nil {
		return 0, err
	}
	if k < 0 && r.URL.Query().Get("k") != "" {
		return 0, errors.New("invalid k")
	}
	return k, nil
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.searchRequest(w, r)
	if !ok {
		return
	}
	res, err := s.service.ForQuery(r.Context(), req.Query, requestK(req))
	if err != nil {
		s.respondFailure(w, r, "searching movies", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Search completed successfully", res)
}

func (s *Server) handleRecommendQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.searchRequest(w, r)
	if !ok {
		return
	}
	res, err := s.service.ForQuery(r.Context(), req.Query, requestK(req))
	if err != nil {
		s.respondFailure(w, r, "generating recommendations", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Recommendations generated successfully", res)
}

func (s *Server) handleRecommendProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	k, err := queryK(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.ForProfile(r.Context(), user, k)
	if err != nil {
		s.respondFailure(w, r, "generating recommendations", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Recommendations generated successfully", res)
}

func (s *Server) handleRecommendHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	k, err := queryK(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.ForHistory(r.Context(), user.ID, k)
	if err != nil {
		s.respondFailure(w, r, "generating recommendations", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Recommendations generated successfully", res)
}

func (s *Server) handleRecommendFavorites(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	k, err := queryK(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.ForFavorites(r.Context(), user.ID, k)
	if err != nil {
		s.respondFailure(w, r, "generating recommendations", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Recommendations generated successfully", res)
}

// uploadRecords reads movies from a multipart "file" field (any supported
// catalog format) or from a JSON body holding an array or {"movies": [...]}.
func (s *Server) uploadRecords(w http.ResponseWriter, r *http.Request) ([]models.MovieRecord, bool) {
	limit := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var content []byte
	ext := ".json"
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "multipart upload requires a file field")
			return nil, false
		}
		defer file.Close()
		ext = strings.ToLower(filepath.Ext(header.Filename))
		if !extract.Supported(header.Filename) {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
			return nil, false
		}
		if content, err = io.ReadAll(file); err != nil {
			s.respondError(w, http.StatusBadRequest, "failed to read upload")
			return nil, false
		}
	} else {
		var err error
		if content, err = io.ReadAll(r.Body); err != nil {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
	}

	records, err := s.loader.LoadBytes(content, ext)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid movie payload: "+err.Error())
		return nil, false
	}
	if len(records) == 0 {
		s.respondError(w, http.StatusBadRequest, "no movies in request")
		return nil, false
	}
	return records, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	records, ok := s.uploadRecords(w, r)
	if !ok {
		return
	}
	res, err := s.indexer.IngestRecords(r.Context(), records)
	if err != nil && !errors.Is(err, recommend.ErrPersistence) {
		s.respondFailure(w, r, "uploading movies", err)
		return
	}
	msg := fmt.Sprintf("Successfully uploaded %d movies", len(res.MovieIDs))
	if err != nil {
		s.logger.Warn("movies indexed without snapshot", zap.Error(err))
		msg += " (snapshot not persisted)"
	}
	s.respondJSON(w, http.StatusOK, msg, models.IngestResponse{
		Ingested:  len(res.MovieIDs),
		MovieIDs:  res.MovieIDs,
		Persisted: res.Persisted,
	})
}

func (s *Server) handleRemoveMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := s.indexer.RemoveMovies(r.Context(), []int64{id})
	if err != nil && !errors.Is(err, recommend.ErrPersistence) {
		s.respondFailure(w, r, "removing movie", err)
		return
	}
	if n == 0 {
		s.respondFailure(w, r, "removing movie", fmt.Errorf("movie %d: %w", id, storage.ErrNotFound))
		return
	}
	s.respondJSON(w, http.StatusOK, "Movie removed from index", removeResponse{Removed: n, Persisted: err == nil})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Engine: s.service.Engine().Stats()}
	count, err := s.storage.CountMovies(r.Context())
	if err != nil {
		s.respondFailure(w, r, "reading status", err)
		return
	}
	resp.CatalogCount = count
	if s.keyword != nil {
		if docs, err := s.keyword.DocCount(); err == nil {
			resp.KeywordDocs = docs
		}
	}
	fp, err := storage.MeasureFootprint(s.config.Storage.DatabasePath, s.config.Storage.SnapshotPath())
	if err == nil {
		resp.DiskUsage = &diskUsage{Database: fp.Database, Snapshots: fp.Snapshots, Total: fp.Total()}
	} else {
		s.logger.Debug("disk usage unavailable", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, "Status retrieved successfully", resp)
}
