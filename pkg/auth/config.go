// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package auth validates bearer JWTs on admin-facing HTTP endpoints, using
// golang-jwt/jwt/v5 for parsing/validation and MicahParks/keyfunc to resolve
// signing keys from a JWKS endpoint or a static RSA public key.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT claim set PureBoot expects on admin and service tokens.
type Claims struct {
	jwt.RegisteredClaims
	Scopes  []string `json:"scopes,omitempty"`
	Service string   `json:"service,omitempty"`
}

// HasScope reports whether the claim set carries the named scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type contextKey string

const claimsContextKey contextKey = "pureboot.auth.claims"

// Config holds authentication configuration for the boot service.
type Config struct {
	Enabled bool `json:"enabled"`

	JWTPublicKey string `json:"jwtPublicKey,omitempty"`
	JWTIssuer    string `json:"jwtIssuer,omitempty"`
	JWTAudience  string `json:"jwtAudience,omitempty"`

	JWKSURL             string        `json:"jwksUrl,omitempty"`
	JWKSRefreshInterval time.Duration `json:"jwksRefreshInterval,omitempty"`

	ValidateExpiration bool     `json:"validateExpiration"`
	ValidateIssuer     bool     `json:"validateIssuer"`
	ValidateAudience   bool     `json:"validateAudience"`
	RequiredClaims     []string `json:"requiredClaims,omitempty"`
	RequiredScopes     []string `json:"requiredScopes,omitempty"`

	AllowEmptyToken bool `json:"allowEmptyToken"`
	NonEnforcing    bool `json:"nonEnforcing"`
}

// DefaultConfig returns sensible defaults for authentication.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ValidateExpiration:  true,
		ValidateIssuer:      false,
		ValidateAudience:    false,
		RequiredClaims:      []string{"sub"},
		RequiredScopes:      []string{},
		JWKSRefreshInterval: 1 * time.Hour,
		AllowEmptyToken:     false,
		NonEnforcing:        false,
	}
}

// DevConfig returns a permissive configuration for development.
func DevConfig() Config {
	config := DefaultConfig()
	config.Enabled = false
	config.AllowEmptyToken = true
	config.NonEnforcing = true
	config.ValidateExpiration = false
	config.ValidateIssuer = false
	config.ValidateAudience = false
	config.RequiredClaims = []string{}
	return config
}

// keySource resolves the verification key(s) a Config describes: either a
// static RSA public key, or a JWKS endpoint kept fresh by keyfunc.
type keySource struct {
	static *rsa.PublicKey
	jwks   *keyfunc.JWKS
}

func newKeySource(c Config, logger *log.Logger) (*keySource, error) {
	ks := &keySource{}

	if c.JWTPublicKey != "" {
		block, _ := pem.Decode([]byte(c.JWTPublicKey))
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM public key")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA")
		}
		ks.static = rsaKey
		logger.Printf("using static RSA public key")
	}

	if c.JWKSURL != "" {
		refresh := c.JWKSRefreshInterval
		if refresh <= 0 {
			refresh = time.Hour
		}
		jwks, err := keyfunc.Get(c.JWKSURL, keyfunc.Options{
			RefreshInterval: refresh,
			RefreshErrorHandler: func(err error) {
				logger.Printf("jwks refresh failed: %v", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("fetching jwks from %s: %w", c.JWKSURL, err)
		}
		ks.jwks = jwks
		logger.Printf("using jwks url: %s", c.JWKSURL)
	}

	return ks, nil
}

func (ks *keySource) keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if ks.jwks != nil {
			return ks.jwks.Keyfunc(token)
		}
		if ks.static != nil {
			return ks.static, nil
		}
		return nil, fmt.Errorf("no verification key configured")
	}
}

// CreateMiddleware builds the HTTP middleware that validates bearer tokens
// per Config. If auth is disabled, it returns a pass-through middleware.
func (c Config) CreateMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "auth: ", log.LstdFlags)
	}

	if !c.Enabled {
		logger.Printf("authentication disabled")
		return func(next http.Handler) http.Handler { return next }
	}

	ks, err := newKeySource(c, logger)
	if err != nil {
		logger.Printf("failed to initialize key source: %v", err)
	}

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := c.authenticate(r, ks)
			if err != nil {
				if c.NonEnforcing {
					logger.Printf("auth error (non-enforcing, allowing request): %v", err)
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, fmt.Sprintf(`{"success":false,"message":"%s"}`, err.Error()), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	if len(c.RequiredScopes) > 0 {
		return func(next http.Handler) http.Handler {
			return middleware(CreateScopeMiddleware(c.RequiredScopes...)(next))
		}
	}
	return middleware
}

func (c Config) authenticate(r *http.Request, ks *keySource) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if c.AllowEmptyToken {
			return &Claims{}, nil
		}
		return nil, fmt.Errorf("missing authorization header")
	}

	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		return nil, fmt.Errorf("authorization header must use the Bearer scheme")
	}

	if ks == nil {
		return nil, fmt.Errorf("no key source configured")
	}

	claims := &Claims{}
	parserOpts := []jwt.ParserOption{}
	if !c.ValidateExpiration {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}
	if c.ValidateIssuer && c.JWTIssuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.JWTIssuer))
	}
	if c.ValidateAudience && c.JWTAudience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(c.JWTAudience))
	}

	token, err := jwt.ParseWithClaims(raw, claims, ks.keyfunc(), parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token failed validation")
	}

	for _, required := range c.RequiredClaims {
		if !claims.hasClaim(required) {
			return nil, fmt.Errorf("missing required claim %q", required)
		}
	}

	return claims, nil
}

func (c *Claims) hasClaim(name string) bool {
	switch name {
	case "sub":
		return c.Subject != ""
	case "iss":
		return c.Issuer != ""
	case "exp":
		return c.ExpiresAt != nil
	default:
		return false
	}
}

// CreateScopeMiddleware creates a middleware that requires specific scopes
// to already be present in the request's validated Claims.
func CreateScopeMiddleware(scopes ...string) func(http.Handler) http.Handler {
	if len(scopes) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := GetClaimsFromRequest(r)
			if claims == nil {
				http.Error(w, `{"success":false,"message":"missing claims"}`, http.StatusForbidden)
				return
			}
			for _, scope := range scopes {
				if !claims.HasScope(scope) {
					http.Error(w, fmt.Sprintf(`{"success":false,"message":"missing required scope %q"}`, scope), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CreateServiceTokenMiddleware creates middleware for service-to-service
// authentication, requiring the claims' Service field to match.
func CreateServiceTokenMiddleware(requiredService string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := GetClaimsFromRequest(r)
			if claims == nil || claims.Service != requiredService {
				http.Error(w, `{"success":false,"message":"invalid service token"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromRequest extracts the validated Claims from request context,
// if the auth middleware ran and succeeded.
func GetClaimsFromRequest(r *http.Request) (*Claims, error) {
	claims, ok := r.Context().Value(claimsContextKey).(*Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("no claims in request context")
	}
	return claims, nil
}
