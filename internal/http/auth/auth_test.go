package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ironyard/internal/http/auth"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

func TestVerify(t *testing.T) {
	v := auth.NewVerifier("secret", "ironyard")
	userID := uuid.New()

	registered := func(sub string, exp time.Duration) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		}
	}

	type testCase struct {
		name    string
		token   func(t *testing.T) string
		want    listing.Actor
		wantErr bool
	}

	sign := func(v *auth.Verifier, c auth.Claims) func(t *testing.T) string {
		return func(t *testing.T) string {
			tok, err := v.Sign(c)
			require.NoError(t, err)

			return tok
		}
	}

	tests := []testCase{
		{
			name:  "User",
			token: sign(v, auth.Claims{RegisteredClaims: registered(userID.String(), time.Hour)}),
			want:  listing.Actor{ID: userID},
		},
		{
			name:  "Admin",
			token: sign(v, auth.Claims{Role: auth.RoleAdmin, RegisteredClaims: registered(userID.String(), time.Hour)}),
			want:  listing.Actor{ID: userID, Admin: true},
		},
		{
			name:    "Expired",
			token:   sign(v, auth.Claims{RegisteredClaims: registered(userID.String(), -time.Minute)}),
			wantErr: true,
		},
		{
			name:    "WrongIssuer",
			token:   sign(auth.NewVerifier("secret", "elsewhere"), auth.Claims{RegisteredClaims: registered(userID.String(), time.Hour)}),
			wantErr: true,
		},
		{
			name:    "WrongSecret",
			token:   sign(auth.NewVerifier("other", "ironyard"), auth.Claims{RegisteredClaims: registered(userID.String(), time.Hour)}),
			wantErr: true,
		},
		{
			name:    "SubjectNotUUID",
			token:   sign(v, auth.Claims{RegisteredClaims: registered("dealer-7", time.Hour)}),
			wantErr: true,
		},
		{
			name:    "NilSubject",
			token:   sign(v, auth.Claims{RegisteredClaims: registered(uuid.Nil.String(), time.Hour)}),
			wantErr: true,
		},
		{
			name: "UnsignedToken",
			token: func(t *testing.T) string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
					RegisteredClaims: registered(userID.String(), time.Hour),
				}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)

				return tok
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := auth.NewVerifier("secret", "")
	userID := uuid.New()

	tok, err := v.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}})
	require.NoError(t, err)

	var seen listing.Actor

	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		actor  listing.Actor
	}{
		{name: "Anonymous", status: http.StatusNoContent},
		{name: "Bearer", header: "Bearer " + tok, status: http.StatusNoContent, actor: listing.Actor{ID: userID}},
		{name: "NotBearer", header: "Basic Zm9vOmJhcg==", status: http.StatusUnauthorized},
		{name: "BadToken", header: "Bearer nope", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = listing.Actor{}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.actor, seen)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	h := auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		actor  listing.Actor
		status int
	}{
		{name: "Anonymous", status: http.StatusUnauthorized},
		{name: "User", actor: listing.Actor{ID: uuid.New()}, status: http.StatusForbidden},
		{name: "Admin", actor: listing.Actor{ID: uuid.New(), Admin: true}, status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = req.WithContext(auth.WithActor(req.Context(), tt.actor))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
