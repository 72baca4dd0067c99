package server

import (
	"encoding/json"
	"net/http"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/auth"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/settings"
)

// maxBodyBytes caps every request body the API reads
const maxBodyBytes = 1 << 20

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
	if status >= http.StatusInternalServerError {
		s.logger.WithField("error", message).WithField("status", status).Error("API error")
	} else {
		s.logger.WithField("error", message).WithField("status", status).Debug("API error")
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// withSettingsSource records the token subject on settings revisions
func withSettingsSource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := "admin"
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
			source = claims.Subject
		}
		next.ServeHTTP(w, r.WithContext(settings.WithSource(r.Context(), source)))
	})
}
