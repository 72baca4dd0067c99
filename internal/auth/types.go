package auth

import (
	"context"
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient capabilities")
	ErrRateLimited        = errors.New("too many failed login attempts")
	ErrLoginDisabled      = errors.New("password login is not configured")
)

// CapabilityManageCheckout is required by every admin route
const CapabilityManageCheckout = "manage_woocommerce"

// Issuer is written to and required from every token
const Issuer = "awcf"

// Claims are the JWT claims of an admin token
type Claims struct {
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// Can reports whether the token grants capability
func (c *Claims) Can(capability string) bool {
	return slices.Contains(c.Capabilities, capability)
}

type claimsKey struct{}

// WithClaims stores verified claims on ctx
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims placed by the middleware, if any
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
