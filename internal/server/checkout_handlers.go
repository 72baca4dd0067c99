package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/checkout"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/metadata"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/metrics"
)

// ValidationResponse lists the notices a rejected checkout shows
type ValidationResponse struct {
	Valid  bool                      `json:"valid"`
	Errors checkout.ValidationErrors `json:"errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !s.kv.IsReady() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// pipeline binds the current settings record to a checkout pipeline
func (s *Server) pipeline(w http.ResponseWriter, r *http.Request) (*checkout.Pipeline, bool) {
	current, err := s.settings.Load(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load checkout settings")
		s.writeError(w, http.StatusInternalServerError, "failed to load checkout settings")
		return nil, false
	}
	return checkout.NewPipeline(current), true
}

func (s *Server) handleGetCheckoutFields(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, p.Prepare(checkout.DefaultFieldSet()))
}

// handlePrepareCheckoutFields assembles a field set supplied by the
// storefront instead of the built-in platform defaults
func (s *Server) handlePrepareCheckoutFields(w http.ResponseWriter, r *http.Request) {
	var fields checkout.FieldSet
	if err := decodeJSON(w, r, &fields); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid field set: "+err.Error())
		return
	}
	if len(fields) == 0 {
		s.writeError(w, http.StatusBadRequest, "field set is empty")
		return
	}

	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, p.Prepare(fields))
}

func (s *Server) handleGetCheckoutParams(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, checkout.Params(p.Settings))
}

func (s *Server) handleValidateCheckout(w http.ResponseWriter, r *http.Request) {
	sub, err := decodeSubmission(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}

	errs := p.Validate(sub)
	s.recordValidation(errs)

	resp := ValidationResponse{Valid: len(errs) == 0, Errors: errs}
	if resp.Errors == nil {
		resp.Errors = checkout.ValidationErrors{}
	}
	if !resp.Valid {
		s.writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	sub, err := decodeSubmission(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}

	err = p.Submit(r.Context(), s.orders.For(orderID), sub)

	var verrs checkout.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		s.recordValidation(verrs)
		s.writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Valid: false, Errors: verrs})
		return
	case errors.Is(err, metadata.ErrInvalidOrderID):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to store order metadata")
		s.writeError(w, http.StatusInternalServerError, "failed to store order metadata")
		return
	}

	s.recordValidation(nil)
	isCompany := sub.Truthy(checkout.FieldIsCompany)
	if p.Settings.VATModeEnabled {
		s.metricsManager.RecordCompanyOrder(isCompany)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"vat_mode":   p.Settings.VATModeEnabled,
		"is_company": isCompany,
	}).Info("Checkout submission stored")

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":   orderID,
		"is_company": p.Settings.VATModeEnabled && isCompany,
	})
}

// handleGetCompanyDetails renders the stored company block as JSON, or as
// the plain-text or HTML e-mail block with ?format=text|html
func (s *Server) handleGetCompanyDetails(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}

	details, err := checkout.LoadCompanyDetails(r.Context(), s.orders.For(orderID), p.Settings)
	if errors.Is(err, metadata.ErrInvalidOrderID) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to read order metadata")
		s.writeError(w, http.StatusInternalServerError, "failed to read order metadata")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		s.writeJSON(w, http.StatusOK, details)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, details.PlainText())
	case "html":
		out, err := details.HTML()
		if err != nil {
			s.logger.WithError(err).Error("Failed to render company details")
			s.writeError(w, http.StatusInternalServerError, "failed to render company details")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, out)
	default:
		s.writeError(w, http.StatusBadRequest, "unsupported format: "+format)
	}
}

func (s *Server) recordValidation(errs checkout.ValidationErrors) {
	if len(errs) == 0 {
		s.metricsManager.RecordCheckoutValidation(metrics.OutcomeAccepted, 0)
		return
	}
	s.metricsManager.RecordCheckoutValidation(metrics.OutcomeRejected, len(errs))
}

// decodeSubmission accepts a form post or a JSON object. JSON booleans and
// numbers are rendered the way a form would send them.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (checkout.Submission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
		sub := make(checkout.Submission, len(r.PostForm))
		for key := range r.PostForm {
			sub[key] = r.PostForm.Get(key)
		}
		return sub, nil
	}

	var raw map[string]interface{}
	if err := decodeJSON(w, r, &raw); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	sub := make(checkout.Submission, len(raw))
	for key, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			sub[key] = val
		case bool:
			if val {
				sub[key] = "1"
			} else {
				sub[key] = ""
			}
		case float64:
			sub[key] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("invalid submission: field %q must be a scalar", key)
		}
	}
	return sub, nil
}
