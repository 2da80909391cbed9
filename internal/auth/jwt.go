package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Caller is the verified identity of the user making a request.
type Caller struct {
	ID   string
	Name string
	Role Role
}

// IsAdmin reports whether the caller has the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Claims is the JWT payload issued by the platform's auth service.
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Caller converts verified claims into a Caller.
func (c *Claims) Caller() Caller {
	return Caller{ID: c.UserID, Name: c.Name, Role: c.Role}
}

// GenerateJWT creates a signed token for caller that expires after ttl.
func GenerateJWT(caller Caller, ttl time.Duration, secret []byte) (string, int64, error) {
	expirationTime := time.Now().Add(ttl)
	claims := &Claims{
		UserID: caller.ID,
		Name:   caller.Name,
		Role:   caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signedToken, expirationTime.Unix(), nil
}

// ValidateJWT verifies an HS256 token and returns its claims.
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
