package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/auth"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/checkout"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/config"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/settings"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	*Server
	handler http.Handler
	token   string
}

func testConfig(t *testing.T) *config.Config {
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)

	return &config.Config{
		Listen:          "127.0.0.1:0",
		DataDir:         t.TempDir(),
		LogLevel:        "error",
		LogFormat:       "json",
		ShutdownTimeout: 5 * time.Second,
		Auth: config.AuthConfig{
			Enable:            true,
			JWTSecret:         "test-secret-for-checkout-fields",
			TokenTTL:          time.Hour,
			AdminUser:         "admin",
			AdminPasswordHash: hash,
			LoginMaxAttempts:  2,
			LoginWindow:       time.Minute,
		},
		Metrics: config.MetricsConfig{
			Enable: true,
			Path:   "/metrics",
		},
		OrderStore: config.OrderStoreConfig{
			Engine: "badger",
		},
	}
}

// setupTestServer creates a server over temporary stores
func setupTestServer(t *testing.T, cfg *config.Config) *testServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	token, err := srv.authManager.Issue("tester", time.Hour)
	require.NoError(t, err)

	return &testServer{Server: srv, handler: srv.Handler(), token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func enableVATMode(t *testing.T, ts *testServer) {
	rec := ts.do(t, "PUT", "/api/v1/admin/settings", map[string]interface{}{
		"vat_mode_enabled":   true,
		"company_code_label": "Įmonės kodas",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "GET", "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]interface{}
	env := decodeEnvelope(t, rec, &data)
	assert.True(t, env.Success)
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetCheckoutFields_Defaults(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "GET", "/api/v1/checkout/fields", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var view checkout.View
	decodeEnvelope(t, rec, &view)
	require.Len(t, view.Sections, 2)
	assert.Equal(t, checkout.SectionBilling, view.Sections[0].Section)
	assert.Equal(t, checkout.DefaultBillingTitle, view.Sections[0].Title)
	assert.Len(t, view.Sections[0].Fields, 11)
	assert.Equal(t, "billing_first_name", view.Sections[0].Fields[0].Key)
}

func TestPrepareCheckoutFields_PostedFieldSet(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "PUT", "/api/v1/admin/settings", map[string]interface{}{
		"checkout_order": "shipping_first",
		"fields": map[string]interface{}{
			"billing_phone": map[string]interface{}{"status": "disabled"},
		},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	fields := checkout.FieldSet{
		checkout.SectionBilling: {
			"billing_phone":      {Type: "tel", Label: "Phone", Priority: 100},
			"billing_first_name": {Type: "text", Label: "First name", Required: true, Priority: 10},
		},
		checkout.SectionShipping: {
			"shipping_city": {Type: "text", Label: "Town / City", Priority: 70},
		},
	}

	rec = ts.do(t, "POST", "/api/v1/checkout/fields", fields, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view checkout.View
	decodeEnvelope(t, rec, &view)
	require.Len(t, view.Sections, 2)
	assert.Equal(t, checkout.SectionShipping, view.Sections[0].Section)
	require.Len(t, view.Sections[1].Fields, 1)
	assert.Equal(t, "billing_first_name", view.Sections[1].Fields[0].Key)
}

func TestPrepareCheckoutFields_BadBody(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	req := httptest.NewRequest("POST", "/api/v1/checkout/fields", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/v1/checkout/fields", map[string]interface{}{}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutParams(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	rec := ts.do(t, "GET", "/api/v1/checkout/params", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var params checkout.ClientParams
	decodeEnvelope(t, rec, &params)
	assert.True(t, params.VATModeEnabled)
	assert.False(t, params.ForceShipToDifferent)
	assert.Equal(t, checkout.FieldIsCompany, params.CompanyCheckbox)
	assert.Equal(t, checkout.ClassCompanyField, params.CompanyFieldClass)
}

func TestValidateCheckout(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	t.Run("individual buyer passes", func(t *testing.T) {
		rec := ts.do(t, "POST", "/api/v1/checkout/validate", map[string]interface{}{
			"billing_first_name": "Jonas",
		}, false)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ValidationResponse
		decodeEnvelope(t, rec, &resp)
		assert.True(t, resp.Valid)
		assert.Empty(t, resp.Errors)
	})

	t.Run("company without details is rejected", func(t *testing.T) {
		rec := ts.do(t, "POST", "/api/v1/checkout/validate", map[string]interface{}{
			checkout.FieldIsCompany:   true,
			checkout.FieldCompanyName: "UAB Pavyzdys",
		}, false)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp ValidationResponse
		decodeEnvelope(t, rec, &resp)
		assert.False(t, resp.Valid)
		require.Len(t, resp.Errors, 3)
		assert.Equal(t, "Įmonės kodas is a required field.", resp.Errors[0].Message)
	})

	t.Run("form encoded submission", func(t *testing.T) {
		form := url.Values{checkout.FieldIsCompany: {"1"}}
		req := httptest.NewRequest("POST", "/api/v1/checkout/validate", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp ValidationResponse
		decodeEnvelope(t, rec, &resp)
		assert.Len(t, resp.Errors, 4)
	})

	t.Run("nested values are refused", func(t *testing.T) {
		rec := ts.do(t, "POST", "/api/v1/checkout/validate", map[string]interface{}{
			"billing_first_name": []string{"a"},
		}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func completeCompany() map[string]interface{} {
	return map[string]interface{}{
		checkout.FieldIsCompany:      "1",
		checkout.FieldCompanyName:    " <b>UAB</b>  Pavyzdys",
		checkout.FieldCompanyCode:    "123456789",
		checkout.FieldCompanyVAT:     "LT123456789",
		checkout.FieldCompanyAddress: "Gedimino pr. 1, Vilnius",
	}
}

func TestSubmitOrder_StoresCompanyDetails(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	rec := ts.do(t, "POST", "/api/v1/orders/1001/checkout", completeCompany(), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, "GET", "/api/v1/orders/1001/company", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var details checkout.CompanyDetails
	decodeEnvelope(t, rec, &details)
	assert.True(t, details.IsCompany)
	require.Len(t, details.Lines, 4)
	assert.Equal(t, "Įmonės kodas", details.Lines[1].Label)

	rec = ts.do(t, "GET", "/api/v1/orders/1001/company?format=text", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Company Information\n")
	assert.Contains(t, rec.Body.String(), "Company Name: UAB Pavyzdys\n", "stored values are sanitized")

	rec = ts.do(t, "GET", "/api/v1/orders/1001/company?format=html", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h3>Company Information</h3>")

	rec = ts.do(t, "GET", "/api/v1/orders/1001/company?format=pdf", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/admin/orders/1001/meta", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta map[string]string
	decodeEnvelope(t, rec, &meta)
	assert.Equal(t, "yes", meta[checkout.MetaIsCompany])
	assert.Len(t, meta, 5)
}

func TestSubmitOrder_RejectedWritesNothing(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	sub := completeCompany()
	delete(sub, checkout.FieldCompanyVAT)

	rec := ts.do(t, "POST", "/api/v1/orders/2002/checkout", sub, false)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ValidationResponse
	decodeEnvelope(t, rec, &resp)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, checkout.FieldCompanyVAT, resp.Errors[0].Field)

	rec = ts.do(t, "GET", "/api/v1/admin/orders/2002/meta", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta map[string]string
	decodeEnvelope(t, rec, &meta)
	assert.Empty(t, meta)
}

func TestSubmitOrder_InvalidOrderID(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	rec := ts.do(t, "POST", "/api/v1/orders/a:b/checkout", map[string]interface{}{}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOrderMeta(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	require.Equal(t, http.StatusOK, ts.do(t, "POST", "/api/v1/orders/7/checkout", completeCompany(), false).Code)
	require.Equal(t, http.StatusOK, ts.do(t, "DELETE", "/api/v1/admin/orders/7/meta", nil, true).Code)

	rec := ts.do(t, "GET", "/api/v1/orders/7/company", nil, false)
	var details checkout.CompanyDetails
	decodeEnvelope(t, rec, &details)
	assert.False(t, details.IsCompany)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "GET", "/api/v1/admin/settings", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	env := decodeEnvelope(t, rec, nil)
	assert.False(t, env.Success)

	rec = ts.do(t, "GET", "/api/v1/admin/settings", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var current checkout.Settings
	decodeEnvelope(t, rec, &current)
	assert.Equal(t, checkout.Defaults(), current)
}

func TestAdminRoutes_AuthDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enable = false
	ts := setupTestServer(t, cfg)

	rec := ts.do(t, "GET", "/api/v1/admin/fields", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateSettings_SanitizesAndRecordsHistory(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "PUT", "/api/v1/admin/settings", map[string]interface{}{
		"billing_title":  "<b>Invoice</b> details",
		"checkout_order": "sideways",
		"unknown":        "dropped",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var saved checkout.Settings
	decodeEnvelope(t, rec, &saved)
	assert.Equal(t, "Invoice details", saved.BillingTitle)
	assert.Equal(t, checkout.OrderBillingFirst, saved.CheckoutOrder)

	rec = ts.do(t, "GET", "/api/v1/admin/settings/history?limit=1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var revisions []settings.Revision
	decodeEnvelope(t, rec, &revisions)
	require.Len(t, revisions, 1)
	assert.Equal(t, "tester", revisions[0].Source)
	assert.Equal(t, "Invoice details", revisions[0].Settings.BillingTitle)

	rec = ts.do(t, "GET", "/api/v1/admin/settings/history?limit=zero", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitSettingsForm(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	form := url.Values{
		"awcf_settings[force_ship_to_different]":       {"1"},
		"awcf_settings[fields][billing_phone][status]": {"disabled"},
		"option_page": {"awcf_settings_group"},
	}
	req := httptest.NewRequest("POST", "/api/v1/admin/settings/form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, "GET", "/api/v1/admin/fields", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []FieldRow
	decodeEnvelope(t, rec, &rows)
	require.Len(t, rows, 21)

	byKey := map[string]FieldRow{}
	for _, row := range rows {
		byKey[row.Key] = row
	}
	assert.Equal(t, checkout.StatusDisabled, byKey["billing_phone"].Config.Status)
	assert.Equal(t, checkout.StatusEnabled, byKey["billing_city"].Config.Status)
	assert.False(t, byKey["billing_city"].Config.Required)
	assert.True(t, byKey["billing_city"].Required)

	rec = ts.do(t, "GET", "/api/v1/checkout/fields", nil, false)
	var view checkout.View
	decodeEnvelope(t, rec, &view)
	assert.True(t, view.ShipToDifferent)
	assert.Len(t, view.Sections[0].Fields, 10)
}

func TestResetSettings(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	rec := ts.do(t, "DELETE", "/api/v1/admin/settings", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var current checkout.Settings
	decodeEnvelope(t, ts.do(t, "GET", "/api/v1/admin/settings", nil, true), &current)
	assert.False(t, current.VATModeEnabled)
}

func TestLogin(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "POST", "/api/v1/auth/login", LoginRequest{Username: "admin", Password: "correct horse"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data map[string]interface{}
	decodeEnvelope(t, rec, &data)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)

	req := httptest.NewRequest("GET", "/api/v1/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	bad := LoginRequest{Username: "admin", Password: "wrong"}

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, "POST", "/api/v1/auth/login", bad, false).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, "POST", "/api/v1/auth/login", bad, false).Code)

	rec := ts.do(t, "POST", "/api/v1/auth/login", LoginRequest{Username: "admin", Password: "correct horse"}, false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestLogin_RateLimitIgnoresForwardedFor(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	login := func(xff, password string) *httptest.ResponseRecorder {
		data, err := json.Marshal(LoginRequest{Username: "admin", Password: password})
		require.NoError(t, err)
		req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, login("198.51.100.1", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, login("198.51.100.2", "wrong").Code)
	assert.Equal(t, http.StatusTooManyRequests, login("198.51.100.3", "correct horse").Code)
}

func TestLogin_NotConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.AdminUser = ""
	cfg.Auth.AdminPasswordHash = ""
	ts := setupTestServer(t, cfg)

	rec := ts.do(t, "POST", "/api/v1/auth/login", LoginRequest{Username: "admin", Password: "x"}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemEndpoint(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	rec := ts.do(t, "GET", "/api/v1/admin/system", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]interface{}
	decodeEnvelope(t, rec, &data)
	assert.Contains(t, data, "uptime_seconds")
	assert.Contains(t, data, "go_version")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))
	enableVATMode(t, ts)

	ts.do(t, "POST", "/api/v1/checkout/validate", map[string]interface{}{checkout.FieldIsCompany: "1"}, false)

	rec := ts.do(t, "GET", "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `awcf_checkout_validations_total{outcome="rejected"} 1`)
	assert.Contains(t, body, `awcf_checkout_field_errors_total 4`)
	assert.Contains(t, body, `awcf_settings_saves_total{action="update"} 1`)
	assert.Contains(t, body, `route="/api/v1/checkout/validate"`)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enable = false
	ts := setupTestServer(t, cfg)

	rec := ts.do(t, "GET", "/metrics", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := setupTestServer(t, testConfig(t))

	req := httptest.NewRequest("OPTIONS", "/api/v1/admin/settings", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerStartShutdown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := New(testConfig(t), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
