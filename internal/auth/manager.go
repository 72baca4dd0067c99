package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/config"
)

// Manager issues and verifies admin tokens
type Manager struct {
	config  config.AuthConfig
	secret  []byte
	limiter *LoginRateLimiter
	logger  *logrus.Logger
}

// NewManager creates an auth manager from the auth config section
func NewManager(cfg config.AuthConfig, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		config:  cfg,
		secret:  []byte(cfg.JWTSecret),
		limiter: NewLoginRateLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow),
		logger:  logger,
	}
}

// Enabled reports whether admin routes are protected
func (m *Manager) Enabled() bool {
	return m.config.Enable
}

// Close stops background work
func (m *Manager) Close() {
	m.limiter.Close()
}

// Issue mints a token for subject carrying the admin capability. A
// non-positive ttl uses the configured token TTL.
func (m *Manager) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if len(m.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = m.config.TokenTTL
	}

	now := time.Now()
	claims := Claims{
		Capabilities: []string{CapabilityManageCheckout},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and checks a token
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (m *Manager) keyFunc(*jwt.Token) (any, error) {
	return m.secret, nil
}

// Login exchanges the configured admin credentials for a token. clientIP
// keys the failed-attempt limiter.
func (m *Manager) Login(ctx context.Context, username, password, clientIP string) (string, error) {
	if m.config.AdminUser == "" || m.config.AdminPasswordHash == "" {
		return "", ErrLoginDisabled
	}

	if !m.limiter.AllowLogin(clientIP) {
		m.logger.WithField("client_ip", clientIP).Warn("Login blocked by rate limiter")
		return "", ErrRateLimited
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUser)) == 1
	passOK := VerifyPassword(password, m.config.AdminPasswordHash)
	if !userOK || !passOK {
		m.limiter.RecordFailedAttempt(clientIP)
		m.logger.WithFields(logrus.Fields{
			"client_ip": clientIP,
			"username":  username,
			"attempts":  m.limiter.GetAttempts(clientIP),
		}).Warn("Failed admin login")
		return "", ErrInvalidCredentials
	}

	m.limiter.ResetIP(clientIP)
	m.logger.WithField("username", username).Info("Admin logged in")
	return m.Issue(username, 0)
}

// ErrorWriter renders an auth failure
type ErrorWriter func(w http.ResponseWriter, status int, message string)

// Middleware requires a bearer token granting capability. When auth is
// disabled every request passes.
func (m *Manager) Middleware(capability string, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.config.Enable {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := m.Verify(bearerToken(r))
			if err != nil {
				m.logger.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"error":  err.Error(),
				}).Debug("Rejected admin request")
				w.Header().Set("WWW-Authenticate", `Bearer realm="awcf"`)
				writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
				return
			}

			if !claims.Can(capability) {
				writeError(w, http.StatusForbidden, ErrForbidden.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		out = append(out, network)
	}
	return out
}

// ClientIP returns the address that keys the login limiter. X-Forwarded-For
// and X-Real-IP are honoured only when the direct peer is a private address
// or one of the configured trusted proxies.
func (m *Manager) ClientIP(r *http.Request) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if !m.trustedProxy(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client
		if clientIP := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); clientIP != "" {
			return clientIP
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remoteIP
}

func (m *Manager) trustedProxy(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range privateNetworks {
		if network.Contains(parsed) {
			return true
		}
	}

	for _, trusted := range m.config.TrustedProxies {
		if strings.Contains(trusted, "/") {
			_, network, err := net.ParseCIDR(trusted)
			if err == nil && network.Contains(parsed) {
				return true
			}
			continue
		}
		if t := net.ParseIP(trusted); t != nil && t.Equal(parsed) {
			return true
		}
	}
	return false
}

// IsAuthError reports whether err should be answered with 401
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidToken)
}
