// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestingConfig returns an auth configuration for testing with locally
// generated tokens, validating issuer/audience/expiration strictly.
func TestingConfig(publicKeyPEM string) Config {
	return Config{
		Enabled:            true,
		NonEnforcing:       false,
		ValidateExpiration: true,
		ValidateIssuer:     true,
		ValidateAudience:   true,
		RequiredClaims:     []string{"sub", "iss"},
		RequiredScopes:     []string{},
		JWTPublicKey:       publicKeyPEM,
		JWTIssuer:          "test-issuer",
		JWTAudience:        "pureboot",
	}
}

// NonEnforcingConfig returns a config that logs auth errors but doesn't
// block requests.
func NonEnforcingConfig() Config {
	config := DefaultConfig()
	config.AllowEmptyToken = true
	config.NonEnforcing = true
	config.ValidateExpiration = false
	config.ValidateIssuer = false
	config.ValidateAudience = false
	config.RequiredClaims = []string{}
	return config
}

// TestKeyPair is an RSA key pair for testing.
type TestKeyPair struct {
	PrivateKey   *rsa.PrivateKey
	PublicKey    *rsa.PublicKey
	PublicKeyPEM string
}

// GenerateTestKeyPair creates an RSA key pair for testing JWT tokens.
func GenerateTestKeyPair() (*TestKeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyDER})

	return &TestKeyPair{
		PrivateKey:   privateKey,
		PublicKey:    &privateKey.PublicKey,
		PublicKeyPEM: string(publicKeyPEM),
	}, nil
}

// CreateTestToken creates a JWT for testing, with default claims unless
// claims is non-nil.
func CreateTestToken(keyPair *TestKeyPair, claims *Claims) (string, error) {
	if claims == nil {
		now := time.Now()
		claims = &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				Subject:   "test-user",
				Audience:  []string{"pureboot"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				NotBefore: jwt.NewNumericDate(now),
				IssuedAt:  jwt.NewNumericDate(now),
			},
			Scopes: []string{"read", "write"},
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(keyPair.PrivateKey)
}

// CreateTestTokenWithScopes creates a test token carrying the given scopes.
func CreateTestTokenWithScopes(keyPair *TestKeyPair, scopes []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "test-user",
			Audience:  []string{"pureboot"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scopes: scopes,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(keyPair.PrivateKey)
}

// CreateServiceToken creates a short-lived service-to-service test token.
func CreateServiceToken(keyPair *TestKeyPair, serviceID, targetService string, scopes []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   serviceID,
			Audience:  []string{targetService},
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scopes:  scopes,
		Service: serviceID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(keyPair.PrivateKey)
}

// CreateStaticKeyConfig creates a test config with a static public key.
func CreateStaticKeyConfig(publicKeyPEM string) Config {
	return TestingConfig(publicKeyPEM)
}
