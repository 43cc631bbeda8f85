package util

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the actor fields this service needs from the platform's
// tokens: who is calling and their platform role. Authentication itself
// is the identity service's concern; we only decode.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

// GenerateJWT creates a token for a given user and role. Used by tests
// and local tooling; production tokens come from the identity service.
func GenerateJWT(userID uuid.UUID, role, secret string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates the token and extracts the actor claims.
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, jwt.ErrTokenMalformed
	}

	role, ok := claims["role"].(string)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	return &Claims{UserID: userID, Role: role}, nil
}

func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
