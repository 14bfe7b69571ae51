package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/agentguard-core/internal/domain"
)

// OperatorVerifier проверяет подпись и срок жизни операторских токенов.
// Ядро токены не выпускает, у него есть только публичная половина ключа.
type OperatorVerifier struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewOperatorVerifier(pubKey *rsa.PublicKey) *OperatorVerifier {
	return &OperatorVerifier{
		publicKey: pubKey,
		// Явный список алгоритмов закрывает подмену RS256 -> HS256,
		// когда публичный ключ скармливается как HMAC-секрет
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// VerifyToken принимает значение заголовка Authorization как есть,
// с префиксом Bearer или без него.
func (v *OperatorVerifier) VerifyToken(tokenStr string) (*domain.OperatorClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenStr), "Bearer"))

	claims := &domain.OperatorClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// ParseRSAPublicKey превращает PEM-байты в ключ для проверки подписи.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
