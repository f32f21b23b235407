package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func testTokens(t *testing.T, issuer string) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens(config.JWTConfig{Secret: "secret", Issuer: issuer, ExpirationMinutes: 60})
	require.NoError(t, err)
	return tokens
}

func authRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestAuthRejects(t *testing.T) {
	tokens := testTokens(t, "issuer")
	foreign, err := testTokens(t, "someone-else").Mint(auth.NewActor(uuid.New(), enums.UserRoleCustomer), time.Now())
	require.NoError(t, err)
	valid, err := tokens.Mint(auth.NewActor(uuid.New(), enums.UserRoleCustomer), time.Now())
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"empty bearer":   "Bearer ",
		"wrong scheme":   "Basic " + valid,
		"bare token":     valid,
		"garbage":        "Bearer invalid",
		"other issuer":   "Bearer " + foreign,
	}
	handler := Auth(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authRequest(header))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	tokens := testTokens(t, "issuer")
	seller := auth.NewActor(uuid.New(), enums.UserRoleSeller)
	token, err := tokens.Mint(seller, time.Now())
	require.NoError(t, err)

	var captured auth.Actor
	handler := Auth(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ActorFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authRequest("bearer "+token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, seller, captured)
}

func TestRequireRole(t *testing.T) {
	guard := RequireRole(nil, enums.UserRoleSeller, enums.UserRoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	cases := []struct {
		name   string
		actor  *auth.Actor
		status int
	}{
		{"no actor", nil, http.StatusUnauthorized},
		{"customer", &auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}, http.StatusForbidden},
		{"seller", &auth.Actor{UserID: uuid.New(), Role: enums.UserRoleSeller}, http.StatusOK},
		{"admin", &auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			guard.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
