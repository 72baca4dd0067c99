package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/auth"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/middleware"
)

func (s *Server) setupRoutes() {
	router := mux.NewRouter()

	router.Use(middleware.Tracing)
	router.Use(middleware.CORS(s.config.CORSOrigins))
	router.Use(middleware.Logging(s.logger, "/health", s.config.Metrics.Path))
	router.Use(s.metricsManager.Middleware())

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, s.metricsManager.GetMetricsHandler()).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Storefront
	api.HandleFunc("/checkout/fields", s.handleGetCheckoutFields).Methods("GET")
	api.HandleFunc("/checkout/fields", s.handlePrepareCheckoutFields).Methods("POST")
	api.HandleFunc("/checkout/params", s.handleGetCheckoutParams).Methods("GET")
	api.HandleFunc("/checkout/validate", s.handleValidateCheckout).Methods("POST")
	api.HandleFunc("/orders/{id}/checkout", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/company", s.handleGetCompanyDetails).Methods("GET")

	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")

	// Settings screen
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.authManager.Middleware(auth.CapabilityManageCheckout, s.writeError))
	admin.Use(withSettingsSource)

	admin.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	admin.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
	admin.HandleFunc("/settings", s.handleResetSettings).Methods("DELETE")
	admin.HandleFunc("/settings/form", s.handleSubmitSettingsForm).Methods("POST")
	admin.HandleFunc("/settings/history", s.handleGetSettingsHistory).Methods("GET")
	admin.HandleFunc("/fields", s.handleGetFieldTable).Methods("GET")
	admin.HandleFunc("/orders/{id}/meta", s.handleGetOrderMeta).Methods("GET")
	admin.HandleFunc("/orders/{id}/meta", s.handleDeleteOrderMeta).Methods("DELETE")
	admin.HandleFunc("/system", s.handleGetSystem).Methods("GET")

	// Preflight catch-all. Methods("OPTIONS") would turn unknown paths into 405.
	router.MatcherFunc(isOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router = router
}

func isOptions(r *http.Request, _ *mux.RouteMatch) bool {
	return r.Method == http.MethodOptions
}
