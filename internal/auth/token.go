package auth

import (
	"campusfix/backend/internal/apperr"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

// Claims carries only the subject. Roles are never read from a token.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 identity tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Generate signs a token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		Type: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies the token and returns its subject.
func (s *TokenService) Parse(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.Unauthorized("missing token")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.Unauthorized("token expired")
		}
		return "", apperr.Unauthorized("invalid token")
	}
	if claims.Type != accessTokenType || claims.Subject == "" {
		return "", apperr.Unauthorized("invalid token")
	}
	return claims.Subject, nil
}
