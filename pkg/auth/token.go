package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid or expired token")

// PrincipalClaims are the JWT claims issued by the identity service
type PrincipalClaims struct {
	Username string `json:"username,omitempty"`
	Role     Role   `json:"role"`
	Active   bool   `json:"active"`
	jwt.RegisteredClaims
}

// TokenManager verifies principal tokens. Issuing tokens belongs to the
// identity service; Issue exists for tests and local tooling.
type TokenManager struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewTokenManager creates a token manager for HS256 tokens
func NewTokenManager(secret []byte, issuer string) *TokenManager {
	return &TokenManager{
		secret: secret,
		issuer: issuer,
		leeway: 30 * time.Second,
	}
}

// Issue signs a token for the principal valid for ttl
func (tm *TokenManager) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := PrincipalClaims{
		Username: p.Username,
		Role:     p.Role,
		Active:   p.Active,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(p.ID, 10),
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the token and returns the auth context it carries
func (tm *TokenManager) ValidateToken(tokenString string) (*AuthContext, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tm.leeway),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}

	var claims PrincipalClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	authCtx := &AuthContext{
		Principal: &Principal{
			ID:       id,
			Username: claims.Username,
			Role:     claims.Role,
			Active:   claims.Active,
		},
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		authCtx.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		authCtx.ExpiresAt = claims.ExpiresAt.Time
	}
	return authCtx, nil
}
