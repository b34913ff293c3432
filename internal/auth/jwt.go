// Package auth turns bearer tokens into principals. Token claims are only a
// claim: the resolver checks them against the canonical principal record
// before anything is authorized with them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/besikta/inspection-server/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the principal attributes a token asserts. Subject is the
// principal id.
type Claims struct {
	Name            string      `json:"name,omitempty"`
	Role            models.Role `json:"role"`
	PermissionLevel int         `json:"permission_level"`
	BranchID        string      `json:"branch_id,omitempty"`
	CompanyID       string      `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal builds the principal the claims describe. A role that does not
// match the claimed permission level makes the token invalid.
func (c *Claims) Principal() (models.Principal, error) {
	if c.Subject == "" {
		return models.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	p, ok := models.NewPrincipal(c.Subject, c.Name, c.Role, c.BranchID, c.CompanyID)
	if !ok {
		return models.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	if p.PermissionLevel != c.PermissionLevel {
		return models.Principal{}, fmt.Errorf("%w: role %s does not carry level %d", ErrInvalidToken, c.Role, c.PermissionLevel)
	}
	return p, nil
}

// TokenManager signs and validates HS256 principal tokens.
type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
	now           func() time.Time
}

func NewTokenManager(secretKey string, tokenDuration time.Duration, issuer string) *TokenManager {
	return &TokenManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		issuer:        issuer,
		now:           time.Now,
	}
}

// GenerateToken issues a token for p.
func (m *TokenManager) GenerateToken(p models.Principal) (string, error) {
	now := m.now()
	claims := Claims{
		Name:            p.Name,
		Role:            p.Role,
		PermissionLevel: p.PermissionLevel,
		BranchID:        p.BranchID,
		CompanyID:       p.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   p.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateToken checks signature and expiry and returns the claims.
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
