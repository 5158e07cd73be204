package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAPICredentials("client-1", "s3cret")

	token, err := svc.GenerateToken(Credentials{APIKey: "client-1", APISecret: "s3cret"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, []string{"transact"}, claims.Permissions)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAPICredentials("client-1", "s3cret")

	_, err := svc.GenerateToken(Credentials{APIKey: "client-1", APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(Credentials{APIKey: "unknown", APISecret: "s3cret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminCredentialsCarryAdminPermission(t *testing.T) {
	svc := NewService("test-secret")
	svc.RegisterAdminCredentials("admin-1", "s3cret")

	token, err := svc.GenerateToken(Credentials{APIKey: "admin-1", APISecret: "s3cret"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Contains(t, claims.Permissions, "admin")
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := NewService("one-secret")
	issuer.RegisterAPICredentials("client-1", "s3cret")
	verifier := NewService("other-secret")

	token, err := issuer.GenerateToken(Credentials{APIKey: "client-1", APISecret: "s3cret"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token.Token)
	assert.Error(t, err)
}
