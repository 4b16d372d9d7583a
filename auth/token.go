// Package auth issues and checks administrator credentials: bcrypt
// passwords, HS256 bearer tokens and the HTTP middleware that requires them.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/commerce-engine/commerce"
)

var (
	// ErrInvalidToken is returned when the token is malformed, forged or signed
	// with another method.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// DefaultTokenExpiry is how long an issued token stays valid.
const DefaultTokenExpiry = 24 * time.Hour

type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// Claims carried by every administrator token. iat and exp come from the
// registered claims.
type Claims struct {
	AdministratorID commerce.AdministratorID `json:"administrator_id"`
	Email           string                   `json:"email"`
	Role            commerce.Role            `json:"role"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	return &TokenManager{secret: []byte(cfg.Secret), expiry: cfg.Expiry, issuer: cfg.Issuer, now: time.Now}
}

// WithClock replaces the clock used to stamp iat/exp on new tokens.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

func (m *TokenManager) Expiry() time.Duration { return m.expiry }

// Generate issues a token for an administrator.
func (m *TokenManager) Generate(admin *commerce.Administrator) (string, error) {
	now := m.now()
	claims := Claims{
		AdministratorID: admin.ID,
		Email:           admin.Email,
		Role:            admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate checks signature and expiry and returns the claims.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AdministratorID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
