package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/config"
	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/fileid"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

// statusFor maps a search failure kind to an HTTP status.
func statusFor(kind models.FailureKind) int {
	switch kind {
	case models.FailureInvalidQuery:
		return http.StatusBadRequest
	case models.FailureNoCoordinates:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// errorStatus maps a Go error from the vectorizer or engine to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedding.ErrEmbeddingUnavailable), errors.Is(err, vectorizer.ErrNotVectorized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("requester_id", query.RequesterID),
		zap.String("mode", string(query.Mode)),
		zap.String("semantic_query", query.SemanticQuery),
	)
	resp := s.engine.Search(r.Context(), &query)
	if !resp.Success && resp.Error != nil {
		s.respondJSON(w, statusFor(resp.Error.Kind), resp)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type embeddingView struct {
	UserID      string    `json:"user_id"`
	ProfileText string    `json:"profile_text"`
	Dimensions  int       `json:"dimensions"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewOf(e *models.ProfileEmbedding) embeddingView {
	return embeddingView{UserID: e.UserID, ProfileText: e.ProfileText, Dimensions: len(e.Vector), UpdatedAt: e.UpdatedAt}
}

func (s *Server) handleVectorize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("vectorize request", zap.String("user_id", id))
	e, err := s.vectorizer.Vectorize(r.Context(), id)
	if err != nil {
		s.logger.Error("vectorization failed", zap.String("user_id", id), zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleVectorizeAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	ids := req.UserIDs
	if len(ids) == 0 {
		all, err := s.profiles.ListProfileIDs(r.Context())
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ids = all
	}
	res, err := s.vectorizer.VectorizeAll(r.Context(), ids)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	a, b := chi.URLParam(r, "id"), chi.URLParam(r, "other")
	sim, err := s.engine.UserSimilarity(r.Context(), a, b)
	if err != nil {
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sim)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, errorStatus(err), "profile not found")
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var p models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if p.UserID != "" && p.UserID != id {
		s.respondError(w, http.StatusBadRequest, "user_id does not match the path")
		return
	}
	if fileid.IsDerived(id) {
		s.respondError(w, http.StatusBadRequest, "profiles with derived ids are managed by their import file")
		return
	}
	p.UserID = id
	if c := p.Location.Coordinates; c != nil && (c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180) {
		s.respondError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	p.UpdatedAt = time.Now()
	if err := s.profiles.UpsertProfile(r.Context(), &p); err != nil {
		s.logger.Error("profile upsert failed", zap.String("user_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.vectorizer.SyncMetadata(r.Context(), id); err != nil {
		s.logger.Error("embedding metadata refresh failed", zap.String("user_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"user_id": id, "status": "stored"})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete profile request", zap.String("user_id", id))
	if err := s.profiles.DeleteProfile(r.Context(), id); err != nil {
		s.logger.Error("profile deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.vectorizer.Invalidate(id)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Statistics(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatch saves the watched directories to the config file, if one is known.
func (s *Server) persistWatch() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
