package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/auth"
	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/internal/storage"
)

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondFailure(w, r, "creating user", err)
		return
	}
	user := &models.User{
		Email:        strings.TrimSpace(req.Email),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
	}
	if err := s.storage.CreateUser(r.Context(), user); err != nil {
		s.respondFailure(w, r, "creating user", err)
		return
	}
	s.logger.Info("user created", zap.Int64("user_id", user.ID))
	s.respondJSON(w, http.StatusCreated, "User created successfully", user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, err := s.storage.FindUser(r.Context(), strings.TrimSpace(req.Username), strings.TrimSpace(req.Email))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.respondFailure(w, r, "logging in", err)
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.respondError(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	token, expires, err := s.auth.Tokens().GenerateToken(user)
	if err != nil {
		s.respondFailure(w, r, "logging in", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Login successful", tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        user,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	s.respondJSON(w, http.StatusOK, "User retrieved successfully", user)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	var req models.PreferencesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.storage.UpdatePreferences(r.Context(), user.ID, req)
	if err != nil {
		s.respondFailure(w, r, "updating preferences", err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Preferences updated successfully", updated)
}
