// Package middleware provides authentication, logging, tracing and rate
// limiting middleware for the HTTP API.
package middleware

import (
	"context"
	"strings"

	"agora/internal/config"
	"agora/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Fiber locals written by AuthRequired.
const (
	LocalUserID   = "userID"
	LocalIdentity = "identity"
	LocalIsAdmin  = "isAdmin"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// IdentityClaims is the token payload issued by the identity provider.
type IdentityClaims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized(c, "Invalid authorization header format")
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return unauthorized(c, "Invalid or expired token")
	}

	// Subject claim per RFC 7519 carries the user id.
	if strings.TrimSpace(claims.Subject) == "" {
		return unauthorized(c, "Invalid token structure - missing subject")
	}

	c.Locals(LocalUserID, claims.Subject)
	c.Locals(LocalIdentity, models.Author{ID: claims.Subject, Name: claims.Name, AvatarRef: claims.Avatar})
	c.Locals(LocalIsAdmin, claims.Admin)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.Subject))

	return c.Next()
}

// AdminRequired rejects callers whose token lacks the admin claim. It must
// run after AuthRequired.
func AdminRequired(c *fiber.Ctx) error {
	if isAdmin, _ := c.Locals(LocalIsAdmin).(bool); !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
			Error: "Admin access required",
			Code:  models.CodeForbidden,
		})
	}
	return c.Next()
}

// CurrentIdentity returns the authenticated author, if any.
func CurrentIdentity(c *fiber.Ctx) (models.Author, bool) {
	a, ok := c.Locals(LocalIdentity).(models.Author)
	return a, ok
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: msg,
		Code:  models.CodeUnauthorized,
	})
}
