package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

var testSecret = []byte("test-signing-secret")

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken(testSecret, "tenant1", "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, "tenant1", claims.TenantID)
	require.Equal(t, "alice", claims.UserIdentifier)
}

func TestValidateToken_RejectsExpired(t *testing.T) {
	token, err := GenerateToken(testSecret, "tenant1", "alice", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(testSecret, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, "tenant1", "alice", time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken([]byte("other-secret"), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashAndCheckAPIKey(t *testing.T) {
	hash, err := HashAPIKey("sk_live_abc123")
	require.NoError(t, err)
	require.True(t, CheckAPIKey("sk_live_abc123", hash))
	require.False(t, CheckAPIKey("wrong-key", hash))
}

type fakeLookup struct {
	byKey    map[string]*domain.Tenant
	byDomain map[string]*domain.Tenant
}

func (f *fakeLookup) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	return f.byKey[apiKey], nil
}

func (f *fakeLookup) GetByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	return f.byDomain[host], nil
}

func TestResolveTenant_PrefersAPIKeyHeader(t *testing.T) {
	lookup := &fakeLookup{
		byKey:    map[string]*domain.Tenant{"sk_live_abc": {ID: "t1"}},
		byDomain: map[string]*domain.Tenant{"acme.example.com": {ID: "t2"}},
	}
	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/", nil)
	req.Header.Set("X-Tenant-Key", "sk_live_abc")

	tenant, err := ResolveTenant(context.Background(), req, lookup)
	require.NoError(t, err)
	require.Equal(t, "t1", tenant.ID)
}

func TestResolveTenant_FallsBackToHost(t *testing.T) {
	lookup := &fakeLookup{
		byKey:    map[string]*domain.Tenant{},
		byDomain: map[string]*domain.Tenant{"acme.example.com": {ID: "t2"}},
	}
	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com:8080/", nil)

	tenant, err := ResolveTenant(context.Background(), req, lookup)
	require.NoError(t, err)
	require.Equal(t, "t2", tenant.ID)
}
