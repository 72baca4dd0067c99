package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/auth"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/checkout"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/metadata"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// FieldRow is one line of the admin field table
type FieldRow struct {
	Key      string                    `json:"key"`
	Label    string                    `json:"label"`
	Section  checkout.Section          `json:"section"`
	Required bool                      `json:"platform_required"`
	Config   checkout.StructuredConfig `json:"config"`
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Load(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load checkout settings")
		s.writeError(w, http.StatusInternalServerError, "failed to load checkout settings")
		return
	}
	s.writeJSON(w, http.StatusOK, current)
}

// handleUpdateSettings replaces the record with a sanitized JSON submission
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := decodeJSON(w, r, &raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}
	s.updateSettings(w, r, raw, "update")
}

// handleSubmitSettingsForm accepts the settings screen form post with
// awcf_settings[...] field names
func (s *Server) handleSubmitSettingsForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	s.updateSettings(w, r, checkout.DecodeForm(r.PostForm, checkout.OptionName), "form")
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request, raw map[string]interface{}, action string) {
	saved, err := s.settings.Update(r.Context(), raw)
	if err != nil {
		s.logger.WithError(err).Error("Failed to save checkout settings")
		s.writeError(w, http.StatusInternalServerError, "failed to save checkout settings")
		return
	}
	s.metricsManager.RecordSettingsSave(action)
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	saved, err := s.settings.Reset(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to reset checkout settings")
		s.writeError(w, http.StatusInternalServerError, "failed to reset checkout settings")
		return
	}
	s.metricsManager.RecordSettingsSave("reset")
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetSettingsHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	revisions, err := s.settings.History(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read settings history")
		s.writeError(w, http.StatusInternalServerError, "failed to read settings history")
		return
	}
	s.writeJSON(w, http.StatusOK, revisions)
}

// handleGetFieldTable lists every built-in field with the state the
// settings screen shows for it
func (s *Server) handleGetFieldTable(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Load(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load checkout settings")
		s.writeError(w, http.StatusInternalServerError, "failed to load checkout settings")
		return
	}

	defaults := checkout.DefaultFieldSet()
	var rows []FieldRow
	for _, section := range []checkout.Section{checkout.SectionBilling, checkout.SectionShipping} {
		for _, key := range checkout.DefaultFieldKeys(section) {
			f := defaults[section][key]
			rows = append(rows, FieldRow{
				Key:      key,
				Label:    f.Label,
				Section:  section,
				Required: f.Required,
				Config:   checkout.ResolveForDisplay(current, key),
			})
		}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetOrderMeta(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	meta, err := s.orders.List(r.Context(), orderID)
	if errors.Is(err, metadata.ErrInvalidOrderID) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to list order metadata")
		s.writeError(w, http.StatusInternalServerError, "failed to list order metadata")
		return
	}
	s.writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDeleteOrderMeta(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	err := s.orders.Delete(r.Context(), orderID)
	if errors.Is(err, metadata.ErrInvalidOrderID) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to delete order metadata")
		s.writeError(w, http.StatusInternalServerError, "failed to delete order metadata")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID})
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.systemMetrics.Snapshot(r.Context()))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid login request")
		return
	}

	token, err := s.authManager.Login(r.Context(), req.Username, req.Password, s.authManager.ClientIP(r))
	s.metricsManager.RecordAuthAttempt("password", err == nil)

	switch {
	case errors.Is(err, auth.ErrLoginDisabled):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(s.config.Auth.LoginWindow.Seconds())))
		s.writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case auth.IsAuthError(err):
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		s.logger.WithError(err).Error("Failed to issue admin token")
		s.writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int64(s.config.Auth.TokenTTL.Seconds()),
	})
}
