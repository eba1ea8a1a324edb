package onvif

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/credential"
)

const adminRealm = `Basic realm="ONVIF Server Admin"`

type addUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authPolicy struct {
	Required bool `json:"required"`
}

// requireAdmin wraps next with HTTP Basic authentication.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", adminRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Admin.Username)) == 1
		passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Admin.Password)) == 1
		if !usernameMatch || !passwordMatch {
			s.logger.Warn("admin authentication failed", zap.String("remote", r.RemoteAddr))
			w.Header().Set("WWW-Authenticate", adminRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerAdmin(mux *http.ServeMux) {
	mux.Handle("GET /admin/users", s.requireAdmin(http.HandlerFunc(s.handleListUsers)))
	mux.Handle("POST /admin/users", s.requireAdmin(http.HandlerFunc(s.handleAddUser)))
	mux.Handle("POST /admin/users/{username}/enable", s.requireAdmin(s.setEnabledHandler(true)))
	mux.Handle("POST /admin/users/{username}/disable", s.requireAdmin(s.setEnabledHandler(false)))
	mux.Handle("GET /admin/auth", s.requireAdmin(http.HandlerFunc(s.handleGetPolicy)))
	mux.Handle("PUT /admin/auth", s.requireAdmin(http.HandlerFunc(s.handleSetPolicy)))
	if s.svc.Hub != nil {
		mux.Handle("GET /admin/events", s.requireAdmin(s.svc.Hub))
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	err := s.svc.Users.Add(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, credential.ErrInvalidUser):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, credential.ErrStoreFull):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("failed to add user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("user added", zap.String("username", req.Username))
	writeJSON(w, http.StatusCreated, credential.Credential{Username: req.Username, Enabled: true})
}

func (s *Server) setEnabledHandler(enabled bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.PathValue("username")
		err := s.svc.Users.SetEnabled(r.Context(), username, enabled)
		if errors.Is(err, credential.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.logger.Error("failed to update user", zap.String("username", username), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.logger.Info("user updated", zap.String("username", username), zap.Bool("enabled", enabled))
		writeJSON(w, http.StatusOK, credential.Credential{Username: username, Enabled: enabled})
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, authPolicy{Required: s.svc.Gate.RequireAuth()})
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var req authPolicy
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	s.svc.Gate.SetRequireAuth(req.Required)
	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
