package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/db/controller/auditlog"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/roles"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var fe *fiber.Error

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, roles.ErrValidation), errors.Is(err, auditlog.ErrInvalidRange):
		return fiber.StatusBadRequest
	case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrRoleNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// Error writes err as a JSON error response. Internal errors are logged and not exposed.
func Error(c *fiber.Ctx, err error) error {
	status := StatusFor(err)

	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		msg = fiber.ErrInternalServerError.Message
	}

	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// ErrorHandler is the fiber error handler of the app.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return Error(c, err)
}
