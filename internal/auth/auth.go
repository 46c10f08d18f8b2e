// Package auth is the minimal ambient-stack surface spec §1 carves out as
// an external collaborator's concern (JWT issuance, authorization policy)
// while still needing a thin resolution shim so the core wires end to
// end. It rebuilds the teacher's validateToken/generateToken/
// hashPassword/checkPassword (referenced from handlers.go/main.go but
// filtered out of the retrieval pack) using the same libraries the
// teacher's go.mod declares: golang-jwt/jwt/v5 and golang.org/x/crypto/
// bcrypt.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Claims is the JWT payload: tenant context plus an optional caller
// identity, the generalization of the teacher's (userID, email) pair to
// a multi-tenant (tenantID, userIdentifier) pair.
type Claims struct {
	jwt.RegisteredClaims
	TenantID       string `json:"tenant_id"`
	UserIdentifier string `json:"user_identifier,omitempty"`
}

// GenerateToken mirrors the teacher's generateToken, signing with HS256.
func GenerateToken(secret []byte, tenantID, userIdentifier string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID:       tenantID,
		UserIdentifier: userIdentifier,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken mirrors the teacher's validateToken, rejecting anything
// not signed with HS256 or past its ExpiresAt.
func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashAPIKey mirrors the teacher's hashPassword, used for Tenant.APIKeyHash.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckAPIKey mirrors the teacher's checkPassword.
func CheckAPIKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// TenantLookup is the minimal persistence contract tenant resolution
// needs; internal/store/postgres or any admin-plane store can implement
// it. Out of scope for full tenant CRUD per spec §1. GetByAPIKey takes
// the raw caller-supplied key (not Tenant.APIKeyHash); the store decides
// how to index it (e.g. a fast deterministic digest) before running
// CheckAPIKey against the matching row's bcrypt hash.
type TenantLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)
	GetByDomain(ctx context.Context, host string) (*domain.Tenant, error)
}

// ResolveTenant implements spec §6 "Tenant resolution": first try
// X-Tenant-Key (looked up by api-key), else resolve by request host
// (looked up by domain). Returns nil, nil if neither resolves, leaving
// the Unauthorized response to the caller (spec §1: authorization policy
// is an external collaborator's concern).
func ResolveTenant(ctx context.Context, r *http.Request, lookup TenantLookup) (*domain.Tenant, error) {
	if key := r.Header.Get("X-Tenant-Key"); key != "" {
		tenant, err := lookup.GetByAPIKey(ctx, key)
		if err != nil {
			return nil, err
		}
		return tenant, nil
	}

	host := r.Host
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return lookup.GetByDomain(ctx, host)
}
