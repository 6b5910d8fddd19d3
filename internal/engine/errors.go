package engine

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/store"
)

// AppError is a handler-level error with an HTTP status. The JSON shape is
// the wire contract: {"message": ..., "errors": [...]}.
type AppError struct {
	Status  int          `json:"-"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func NotFoundError() *AppError {
	return &AppError{Status: fiber.StatusNotFound, Message: "Not found"}
}

func ValidationError(errs []FieldError) *AppError {
	return &AppError{Status: fiber.StatusBadRequest, Message: "Validation Error", Errors: errs}
}

func UnauthorizedError() *AppError {
	return &AppError{Status: fiber.StatusUnauthorized, Message: "Unauthorized"}
}

func ForbiddenError() *AppError {
	return &AppError{Status: fiber.StatusForbidden, Message: "Forbidden"}
}

func ConflictError(message string) *AppError {
	return &AppError{Status: fiber.StatusConflict, Message: message}
}

// ErrorHandler is the central Fiber error handler. Known shapes map to their
// status; storage constraint violations become 409; anything unrecognized is
// reported once and answered with a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(appErr)
	}

	if errors.Is(err, store.ErrConstraint) {
		return c.Status(fiber.StatusConflict).JSON(ConflictError("A record with this value already exists"))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(&AppError{Message: fiberErr.Message})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(&AppError{Message: "Internal Server Error"})
}
