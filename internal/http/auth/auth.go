// Package auth resolves the calling actor from a bearer token.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ironyard/internal/http/render"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

const RoleAdmin = "admin"

type actorKey struct{}

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses an HS256 token and returns the actor it names.
func (v *Verifier) Verify(token string) (listing.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims

	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return listing.Actor{}, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return listing.Actor{}, errors.New("token subject is not a user id")
	}

	return listing.Actor{ID: id, Admin: claims.Role == RoleAdmin}, nil
}

// Sign issues a token for the given user. It is used by tooling and tests.
func (v *Verifier) Sign(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware attaches the actor to the request context. Requests without an
// Authorization header proceed as anonymous; a bad token is rejected.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			render.Fail(w, http.StatusUnauthorized, "unauthorized", "expected a bearer token")
			return
		}

		actor, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			render.Fail(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, a listing.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the request's actor, anonymous if none was attached.
func ActorFrom(ctx context.Context) listing.Actor {
	a, _ := ctx.Value(actorKey{}).(listing.Actor)
	return a
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ActorFrom(r.Context()).Anonymous() {
			render.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := ActorFrom(r.Context())
		if a.Anonymous() {
			render.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}

		if !a.Admin {
			render.Fail(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
