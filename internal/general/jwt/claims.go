package jwt

import (
	"time"

	"guardline/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the canonical token payload: the user id travels in Subject,
// the role drives route-level access checks.
type Claims struct {
	Role user.Role `json:"role"` // CLIENT | OPERATOR | ADMIN
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs claims for an end user.
func NewUserClaims(userID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}
