package auth

import (
	"errors"
	"time"

	"github.com/enercompare/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType represents the purpose of a signed token
type TokenType string

const (
	// TokenTypeSession identifies a visitor session token
	TokenTypeSession TokenType = "session"
	// TokenTypeState identifies a CSRF state token for the third-party
	// authorization handshake
	TokenTypeState TokenType = "state"
)

// Common errors. Callers treat every parse failure as "no valid token";
// none of these should surface to an end user as a server error.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingSessionID = errors.New("missing session_id in claims")
)

// Claims are the custom claims carried by session and state tokens
type Claims struct {
	jwt.RegisteredClaims
	SessionID string    `json:"session_id"`
	Purpose   string    `json:"purpose,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// TokenService signs and verifies compact, tamper-evident, time-bound tokens
// using a symmetric key loaded once from configuration.
type TokenService struct {
	key    []byte
	issuer string
}

// NewTokenService creates a token service. It fails fast when the configured
// key is absent, not base64, or decodes to fewer than 32 bytes.
func NewTokenService(cfg config.SigningConfig) (*TokenService, error) {
	key, err := cfg.DecodeKey()
	if err != nil {
		return nil, err
	}
	return &TokenService{
		key:    key,
		issuer: cfg.Issuer,
	}, nil
}

// SignSession issues a session token embedding the session identifier
func (s *TokenService) SignSession(sessionID string, ttl time.Duration) (string, error) {
	return s.sign(&Claims{
		RegisteredClaims: s.registered(ttl),
		SessionID:        sessionID,
		TokenType:        TokenTypeSession,
	})
}

// SignState issues a signed state token bound to a session and a purpose tag
func (s *TokenService) SignState(sessionID, purpose string, ttl time.Duration) (string, error) {
	return s.sign(&Claims{
		RegisteredClaims: s.registered(ttl),
		SessionID:        sessionID,
		Purpose:          purpose,
		TokenType:        TokenTypeState,
	})
}

// ParseSession verifies a session token and returns its claims
func (s *TokenService) ParseSession(token string) (*Claims, error) {
	return s.parse(token, TokenTypeSession)
}

// ParseState verifies a state token and returns its claims
func (s *TokenService) ParseState(token string) (*Claims, error) {
	return s.parse(token, TokenTypeState)
}

func (s *TokenService) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (s *TokenService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

func (s *TokenService) parse(tokenString string, expectedType TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.TokenType != expectedType {
		return nil, ErrInvalidTokenType
	}
	if claims.SessionID == "" {
		return nil, ErrMissingSessionID
	}

	return claims, nil
}
