package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apporder "github.com/orderware/wholesale/internal/application/order"
)

type actorKey struct{}

// Claims is the token payload issued by the identity service. The core only
// needs the subject and role; everything else about identity is out of its
// hands.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate resolves the caller from a Bearer token and stores the actor
// on the request context. Requests without a valid token never reach the
// order endpoints.
func Authenticate(secret string) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeError(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHORIZED", nil)
				return
			}

			var claims Claims
			token, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid || claims.Subject == "" {
				writeError(w, http.StatusUnauthorized, "invalid token", "UNAUTHORIZED", nil)
				return
			}

			actor := apporder.Actor{ID: claims.Subject, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

func withActor(ctx context.Context, a apporder.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func actorFrom(ctx context.Context) (apporder.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(apporder.Actor)
	return a, ok
}
