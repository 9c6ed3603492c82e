package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/clock"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/config"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/biometrics-identity/backend/internal/common/crypto"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/jwtverify"
)

// Issuer signs access tokens for authenticated accounts.
type Issuer interface {
	Issue(id domain.ID, username string) (string, error)
}

type TokenIssuer struct {
	jwtSecret   []byte
	idGenerator commoncrypto.IDGenerator
	clock       clock.Clock
	ttl         time.Duration
}

// NewTokenIssuer fails with commonerrors.ErrConfiguration when the secret is
// missing or too short to key HS256.
func NewTokenIssuer(
	jwtSecret string,
	idGenerator commoncrypto.IDGenerator,
	clock clock.Clock,
) (*TokenIssuer, error) {
	if err := config.ValidateJWTSecret(jwtSecret); err != nil {
		return nil, err
	}

	return &TokenIssuer{
		jwtSecret:   []byte(jwtSecret),
		idGenerator: idGenerator,
		clock:       clock,
		ttl:         constants.TokenTTL,
	}, nil
}

func (ti *TokenIssuer) Issue(id domain.ID, username string) (string, error) {
	jti, err := ti.idGenerator.NewID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := ti.clock.Now()
	claims := jwt.MapClaims{
		"sub": id.String(),
		"usr": username,
		"jti": jti,
		"exp": now.Add(ti.ttl).Unix(),
		"iat": now.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := t.SignedString(ti.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	incrementAccessTokensIssued()
	return tokenString, nil
}

func (ti *TokenIssuer) Parse(tokenString string) (jwtverify.Claims, error) {
	return jwtverify.ParseToken(tokenString, ti.jwtSecret, jwt.WithTimeFunc(ti.clock.Now))
}
