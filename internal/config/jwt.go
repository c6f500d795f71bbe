package config

import (
	"errors"
	"time"

	"clinic-queue/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims - token issued by the authentication service.
type SessionClaims struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (c SessionClaims) Session() models.Session {
	return models.Session{UserID: c.UserID, Name: c.Name, Role: c.Role}
}

// GenerateToken signs a session token. Login lives in the authentication
// service; this is used there and by tests.
func GenerateToken(secret string, sess models.Session, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := SessionClaims{
		UserID: sess.UserID,
		Name:   sess.Name,
		Role:   sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenString string) (*SessionClaims, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
