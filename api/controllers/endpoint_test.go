package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func call(h http.Handler, actor *auth.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticatedRequiresActor(t *testing.T) {
	invoked := false
	h := Authenticated(nil, func(Call) (int, any, error) {
		invoked = true
		return 0, nil, nil
	})

	rec := call(h, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, invoked)
}

func TestAuthenticatedWritesStatusAndBody(t *testing.T) {
	actor := auth.NewActor(uuid.New(), enums.UserRoleSeller)
	h := Authenticated(nil, func(c Call) (int, any, error) {
		return http.StatusCreated, map[string]string{"user": c.Actor.UserID.String()}, nil
	})

	rec := call(h, &actor)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, actor.UserID.String(), body.Data["user"])
}

func TestAuthenticatedDefaultsToOK(t *testing.T) {
	actor := auth.NewActor(uuid.New(), enums.UserRoleAdmin)
	h := Authenticated(nil, func(Call) (int, any, error) { return 0, []int{}, nil })

	assert.Equal(t, http.StatusOK, call(h, &actor).Code)
}

func TestAuthenticatedMapsErrors(t *testing.T) {
	actor := auth.NewActor(uuid.New(), enums.UserRoleCustomer)
	h := Authenticated(nil, func(Call) (int, any, error) {
		return http.StatusCreated, nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is closed")
	})

	rec := call(h, &actor)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeInvalidTransition))
}

func TestUnavailable(t *testing.T) {
	rec := call(Unavailable(nil, "orders"), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
