package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"civicsaathi/models"
)

// Claims represents the citizen session claims issued by the gateway.
// UpstreamToken carries the backend-issued session token so the gateway can
// validate citizen requests locally and still call the backend on their behalf.
type Claims struct {
	Username      string          `json:"username"`
	UserType      models.UserType `json:"user_type"`
	City          string          `json:"city,omitempty"`
	State         string          `json:"state,omitempty"`
	UpstreamToken string          `json:"upstream_token"`
	jwt.RegisteredClaims
}

// JWTManager handles citizen session token generation and validation
type JWTManager struct {
	secretKey       []byte
	tokenExpiration time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, tokenExpiration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:       []byte(secretKey),
		tokenExpiration: tokenExpiration,
	}
}

// GenerateToken generates a gateway session token wrapping a backend session
func (m *JWTManager) GenerateToken(session *models.CitizenSession, upstreamToken string) (string, error) {
	claims := Claims{
		Username:      session.Username,
		UserType:      session.UserType,
		City:          session.City,
		State:         session.State,
		UpstreamToken: upstreamToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "civicsaathi-gateway",
			Subject:   session.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a gateway session token and returns the claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// ExtractToken extracts the token from the Authorization header.
// Accepts both "Token <value>" (the scheme the web clients send) and
// "Bearer <value>".
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is empty")
	}

	for _, scheme := range []string{"Token ", "Bearer "} {
		if strings.HasPrefix(authHeader, scheme) && len(authHeader) > len(scheme) {
			return authHeader[len(scheme):], nil
		}
	}

	return "", errors.New("invalid authorization header format")
}
