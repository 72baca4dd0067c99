package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/config"
)

const testSecret = "test-secret-0123456789"

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		Enable:           true,
		JWTSecret:        testSecret,
		TokenTTL:         time.Hour,
		LoginMaxAttempts: 2,
		LoginWindow:      time.Minute,
	}
}

func newTestManager(t *testing.T, cfg config.AuthConfig) *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := NewManager(cfg, logger)
	t.Cleanup(m.Close)
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t, testConfig())

	token, err := m.Issue("shop-admin", 0)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "shop-admin", claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.True(t, claims.Can(CapabilityManageCheckout))
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssue_RequiresSubject(t *testing.T) {
	_, err := newTestManager(t, testConfig()).Issue("", time.Minute)
	assert.Error(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	m := newTestManager(t, testConfig())

	other := testConfig()
	other.JWTSecret = "another-secret-9876543210"
	foreign, err := newTestManager(t, other).Issue("x", time.Hour)
	require.NoError(t, err)

	// A negative ttl falls back to the configured one
	fallback, err := m.Issue("x", -time.Hour)
	require.NoError(t, err)
	_, err = m.Verify(fallback)
	require.NoError(t, err)

	past := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	stale, err := past.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "x"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "not.a.token",
		"foreign": foreign,
		"expired": stale,
		"no exp":  noExp,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.AdminUser = "admin"
	cfg.AdminPasswordHash = hash
	m := newTestManager(t, cfg)
	ctx := context.Background()

	token, err := m.Login(ctx, "admin", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	_, err = m.Login(ctx, "admin", "wrong", "10.0.0.2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, IsAuthError(err))
	_, err = m.Login(ctx, "root", "correct horse", "10.0.0.2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login(ctx, "admin", "correct horse", "10.0.0.2")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Other clients are unaffected
	_, err = m.Login(ctx, "admin", "correct horse", "10.0.0.3")
	assert.NoError(t, err)
}

func TestLogin_Disabled(t *testing.T) {
	_, err := newTestManager(t, testConfig()).Login(context.Background(), "admin", "x", "127.0.0.1")
	assert.ErrorIs(t, err, ErrLoginDisabled)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("s3cret", hash))
	assert.False(t, VerifyPassword("S3cret", hash))
	assert.False(t, VerifyPassword("s3cret", "not-a-hash"))
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(t, testConfig())

	var seen *Claims
	handler := m.Middleware(CapabilityManageCheckout, func(w http.ResponseWriter, status int, message string) {
		http.Error(w, message, status)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := serve("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	token, err := m.Issue("admin", time.Minute)
	require.NoError(t, err)
	rec = serve("Bearer " + token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "admin", seen.Subject)

	weak, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Capabilities: []string{"read"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve("bearer "+weak).Code)
}

func TestMiddleware_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enable = false
	m := newTestManager(t, cfg)

	handler := m.Middleware(CapabilityManageCheckout, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/settings", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxies = []string{"198.51.100.0/24", "203.0.113.9"}
	m := newTestManager(t, cfg)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "192.0.2.1:5000", "", "", "192.0.2.1"},
		{"public peer ignores xff", "192.0.2.1:5000", "203.0.113.7", "", "192.0.2.1"},
		{"private peer", "10.0.0.5:443", "203.0.113.7, 10.0.0.1", "", "203.0.113.7"},
		{"loopback real ip", "127.0.0.1:80", "", "203.0.113.8", "203.0.113.8"},
		{"trusted cidr", "198.51.100.20:80", "203.0.113.7", "", "203.0.113.7"},
		{"trusted ip", "203.0.113.9:80", "192.0.2.44", "", "192.0.2.44"},
		{"untrusted neighbour", "203.0.113.10:80", "192.0.2.44", "", "203.0.113.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, m.ClientIP(req))
		})
	}
}

func TestLogin_SpoofedForwardedForStillLimited(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.AdminUser = "admin"
	cfg.AdminPasswordHash = hash
	m := newTestManager(t, cfg)

	attempt := func(xff, password string) error {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.50:40000"
		req.Header.Set("X-Forwarded-For", xff)
		_, err := m.Login(context.Background(), "admin", password, m.ClientIP(req))
		return err
	}

	assert.ErrorIs(t, attempt("203.0.113.1", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, attempt("203.0.113.2", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, attempt("203.0.113.3", "correct horse"), ErrRateLimited)
}
