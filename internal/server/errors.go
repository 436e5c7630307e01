package server

import (
	"errors"

	"agora/internal/middleware"
	"agora/internal/models"

	"github.com/gofiber/fiber/v2"
)

var statusByCode = map[string]int{
	models.CodeValidation:   fiber.StatusBadRequest,
	models.CodeUnauthorized: fiber.StatusUnauthorized,
	models.CodeForbidden:    fiber.StatusForbidden,
	models.CodeNotFound:     fiber.StatusNotFound,
	models.CodeConflict:     fiber.StatusConflict,
	models.CodeInternal:     fiber.StatusInternalServerError,
}

// respondAppError writes err as an ErrorResponse. Errors that are not an
// AppError are logged and reported as INTERNAL_ERROR without details.
func respondAppError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"path", c.Path(), "error", err.Error())
		appErr = models.NewInternalError(err)
	}

	status, ok := statusByCode[appErr.Code]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	resp := models.ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	if appErr.Code != models.CodeInternal && appErr.Err != nil {
		resp.Details = appErr.Err.Error()
	}
	return c.Status(status).JSON(resp)
}

// errorHandler turns errors escaping handlers into JSON responses.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return respondAppError(c, err)
}
