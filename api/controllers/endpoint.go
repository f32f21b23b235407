package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Call is one authenticated request as an endpoint sees it.
type Call struct {
	*http.Request
	Actor auth.Actor
}

// ID parses a UUID path parameter.
func (c Call) ID(name string) (uuid.UUID, error) {
	return validators.ParseUUIDParam(c.Request, name)
}

func (c Call) Page() (pagination.Params, error) {
	return validators.ParsePagination(c.Request)
}

// Bind decodes and validates the JSON body into v.
func (c Call) Bind(v any) error {
	return validators.DecodeJSONBody(c.Request, v)
}

// Endpoint handles an authenticated call. It returns the HTTP status for a
// successful body; zero means 200.
type Endpoint func(c Call) (status int, body any, err error)

// Authenticated turns an Endpoint into a handler that resolves the actor set
// by the auth middleware and writes the response envelope.
func Authenticated(logg *logger.Logger, fn Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, body, err := fn(Call{Request: r, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, body)
	}
}

// Unavailable answers every request with an internal error. Controllers
// return it when built without their service.
func Unavailable(logg *logger.Logger, service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeInternal, "%s service unavailable", service))
	}
}
