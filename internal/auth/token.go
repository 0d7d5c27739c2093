package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

var (
	// ErrMissingToken is returned when no credential was presented
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned for any credential that fails verification
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the identity and role of a connection or API caller
type Claims struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 credentials
type TokenService struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewTokenService creates a token service for the shared secret
func NewTokenService(secret, issuer string, leeway time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Issue signs a credential for the actor valid for ttl
func (s *TokenService) Issue(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actor.UserID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the credential and returns the actor it names
func (s *TokenService) Verify(raw string) (models.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Actor{}, ErrMissingToken
	}

	var claims Claims
	_, err := s.parser.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return models.Actor{}, ErrInvalidToken
	}

	return models.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}
