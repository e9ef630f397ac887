package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var errUnauthenticated = errors.New("missing or invalid identity")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Name   string
}

type identityKey struct{}

// IdentityResolver extracts the caller. With a secret configured it accepts only HS256 tokens
// (Authorization: Bearer or ?token=); without one it trusts X-User-ID/X-User-Name headers
// or userId/name query parameters.
type IdentityResolver struct {
	secret []byte
}

func NewIdentityResolver(secret string) *IdentityResolver {
	return &IdentityResolver{secret: []byte(secret)}
}

func (ir *IdentityResolver) Resolve(r *http.Request) (Identity, error) {
	if len(ir.secret) > 0 {
		return ir.fromToken(bearerToken(r))
	}
	id := Identity{
		UserID: r.Header.Get("X-User-ID"),
		Name:   r.Header.Get("X-User-Name"),
	}
	if id.UserID == "" {
		id.UserID = r.URL.Query().Get("userId")
		id.Name = r.URL.Query().Get("name")
	}
	if id.UserID == "" {
		return Identity{}, errUnauthenticated
	}
	return id, nil
}

// Issue signs a token for userID; used by tooling and tests.
func (ir *IdentityResolver) Issue(userID, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"name": name,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ir.secret)
}

func (ir *IdentityResolver) fromToken(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, errUnauthenticated
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ir.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, errUnauthenticated
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return Identity{}, errUnauthenticated
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: userID, Name: name}, nil
}

// Middleware rejects unauthenticated requests and stores the identity on the context.
func (ir *IdentityResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ir.Resolve(r)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, errUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
