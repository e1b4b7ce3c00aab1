// Package auth issues and validates the bearer tokens that carry a
// timesheet.Principal between requests.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/timesheet-engine/timesheet"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidAlgorithm = errors.New("invalid signing algorithm")
	ErrEmptySecretKey   = errors.New("secret key cannot be empty")
	ErrWeakSecretKey    = errors.New("secret key must be at least 32 characters")
	ErrInvalidDuration  = errors.New("duration must be positive")
)

const issuer = "timesheet-engine"

// Claims is the token payload. Role travels as its wire name.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	AreaID string `json:"area_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims back into the actor they were issued for.
func (c *Claims) Principal() (timesheet.Principal, error) {
	role, err := timesheet.ParseRole(c.Role)
	if err != nil {
		return timesheet.Principal{}, ErrInvalidToken
	}
	return timesheet.Principal{
		UserID: timesheet.UserID(c.UserID),
		Email:  c.Email,
		Role:   role,
		AreaID: timesheet.AreaID(c.AreaID),
	}, nil
}

type Config struct {
	SecretKey string        `yaml:"secret_key"`
	Duration  time.Duration `yaml:"duration"`
}

// Service signs and verifies HS256 tokens.
type Service struct {
	config Config
	now    func() time.Time
}

func NewService(config Config) (*Service, error) {
	if config.SecretKey == "" {
		return nil, ErrEmptySecretKey
	}
	if len(config.SecretKey) < 32 {
		return nil, ErrWeakSecretKey
	}
	if config.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	return &Service{config: config, now: time.Now}, nil
}

// WithClock replaces the time source. Tests use it to mint expired tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GenerateToken signs a token for p and returns it with its expiry.
func (s *Service) GenerateToken(p timesheet.Principal) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.config.Duration)
	claims := &Claims{
		UserID: string(p.UserID),
		Email:  p.Email,
		Role:   p.Role.String(),
		AreaID: string(p.AreaID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(p.UserID),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken verifies signature, algorithm and time claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAlgorithm
		}
		return []byte(s.config.SecretKey), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Authenticate validates a token and returns its principal.
func (s *Service) Authenticate(tokenString string) (timesheet.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return timesheet.Principal{}, err
	}
	return claims.Principal()
}

// =============================================================================
// CONTEXT
// =============================================================================

type principalKey struct{}

func WithPrincipal(ctx context.Context, p timesheet.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal stored by the middleware.
func PrincipalFrom(ctx context.Context) (timesheet.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(timesheet.Principal)
	return p, ok
}
