package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentguard-core/internal/domain"
)

func newKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims *domain.OperatorClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func operatorClaims(expiresIn time.Duration) *domain.OperatorClaims {
	return &domain.OperatorClaims{
		UserID: "op-1",
		Scopes: map[string]bool{"approvals.decide": true},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
}

func TestOperatorVerifier_VerifyToken(t *testing.T) {
	key := newKeyPair(t)
	verifier := NewOperatorVerifier(&key.PublicKey)

	t.Run("valid token yields claims", func(t *testing.T) {
		token := signToken(t, key, operatorClaims(time.Hour))

		claims, err := verifier.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, "op-1", claims.UserID)
		assert.True(t, claims.Scopes["approvals.decide"])
	})

	t.Run("bearer prefix is stripped", func(t *testing.T) {
		token := signToken(t, key, operatorClaims(time.Hour))

		claims, err := verifier.VerifyToken("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, "op-1", claims.UserID)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token := signToken(t, key, operatorClaims(-time.Minute))

		_, err := verifier.VerifyToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("hmac token signed with public key bytes rejected", func(t *testing.T) {
		// Классическая подмена алгоритма: токен подписан HS256, где
		// секретом выступает сам публичный ключ
		secret := x509.MarshalPKCS1PublicKey(&key.PublicKey)
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, operatorClaims(time.Hour)).SignedString(secret)
		require.NoError(t, err)

		_, err = verifier.VerifyToken(forged)
		assert.Error(t, err)
	})

	t.Run("token signed by another key rejected", func(t *testing.T) {
		other := newKeyPair(t)
		token := signToken(t, other, operatorClaims(time.Hour))

		_, err := verifier.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := verifier.VerifyToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestParseRSAPublicKey(t *testing.T) {
	key := newKeyPair(t)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	t.Run("pem roundtrip", func(t *testing.T) {
		parsed, err := ParseRSAPublicKey(pemBytes)
		require.NoError(t, err)
		assert.True(t, parsed.Equal(&key.PublicKey))
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ParseRSAPublicKey(nil)
		assert.Error(t, err)
	})

	t.Run("not a pem", func(t *testing.T) {
		_, err := ParseRSAPublicKey([]byte("-----BEGIN JUNK-----"))
		assert.Error(t, err)
	})
}
