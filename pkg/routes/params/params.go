// Package params holds request helpers shared by the route packages.
package params

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/context"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// UUID parses a path parameter.
func UUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be a valid uuid", name)
	}
	return id, nil
}

// Actor returns the operator making the request.
func Actor(c echo.Context) (string, error) {
	actor := context.GetUserID(c.Request().Context())
	if strings.TrimSpace(actor) == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}
	return actor, nil
}

// Bind decodes and validates a JSON body. An empty body binds the zero value.
func Bind[T any](c echo.Context) (T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return req, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return req, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return req, nil
}
