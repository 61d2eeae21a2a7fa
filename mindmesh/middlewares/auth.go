// mindmesh/middlewares/auth.go
package middlewares

import (
	"context"
	"errors"
	"mindmesh/mindmesh/config"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	OwnerIDKey   contextKey = "owner_id"
	OwnerNameKey contextKey = "owner_name"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the caller named by a bearer token.
type Identity struct {
	OwnerID string
	Name    string
}

// ParseOwner validates an HS256 token and reads the owner from the sub claim,
// falling back to user_id. An empty secret rejects every token.
func ParseOwner(secret, tokenStr string) (Identity, error) {
	if secret == "" {
		return Identity{}, ErrInvalidToken
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	owner, _ := claims["sub"].(string)
	if owner == "" {
		owner, _ = claims["user_id"].(string)
	}
	if owner == "" {
		return Identity{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	return Identity{OwnerID: owner, Name: name}, nil
}

func AuthMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			parts := strings.Split(auth, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			id, err := ParseOwner(cfg.JWTSecret, parts[1])
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), OwnerIDKey, id.OwnerID)
			ctx = context.WithValue(ctx, OwnerNameKey, id.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID returns the authenticated owner stored by AuthMiddleware.
func OwnerID(ctx context.Context) string {
	owner, _ := ctx.Value(OwnerIDKey).(string)
	return owner
}

func OwnerName(ctx context.Context) string {
	name, _ := ctx.Value(OwnerNameKey).(string)
	return name
}
