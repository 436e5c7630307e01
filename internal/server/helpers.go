package server

import (
	"strings"

	"agora/internal/middleware"
	"agora/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bindJSON parses the body into req and runs its validate tags.
func bindJSON(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fieldError(fe))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return models.NewValidationError(strings.Join(msgs, "; "))
	}
	return nil
}

func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "lte":
		return field + " must be at most " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "oneof":
		return field + " must be one of " + fe.Param()
	}
	return field + " is invalid"
}

// currentUser returns the authenticated identity or an UNAUTHORIZED error.
func currentUser(c *fiber.Ctx) (models.Author, error) {
	a, ok := middleware.CurrentIdentity(c)
	if !ok || a.ID == "" {
		return models.Author{}, models.NewUnauthorizedError("Authorization required")
	}
	return a, nil
}

// param returns a non-empty route parameter.
func param(c *fiber.Ctx, name string) (string, error) {
	v := strings.TrimSpace(c.Params(name))
	if v == "" {
		return "", models.NewValidationError("Missing " + name)
	}
	return v, nil
}
