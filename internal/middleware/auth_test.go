package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agora/internal/config"
	"agora/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signToken(t *testing.T, claims IdentityClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func claimsFor(sub string, exp time.Duration) IdentityClaims {
	return IdentityClaims{
		Name:   "Ada",
		Avatar: "https://cdn.example.com/ada.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		},
	}
}

func TestAuthRequired(t *testing.T) {
	app := fiber.New()
	InitMiddleware(&config.Config{JWTSecret: testSecret})

	app.Get("/test", AuthRequired, func(c *fiber.Ctx) error {
		author, _ := CurrentIdentity(c)
		return c.Status(fiber.StatusOK).JSON(author)
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedUserID string
	}{
		{
			name:           "Happy Path",
			authHeader:     "Bearer " + signToken(t, claimsFor("user-123", time.Hour)),
			expectedStatus: http.StatusOK,
			expectedUserID: "user-123",
		},
		{
			name:           "Missing Header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Format",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Malformed Token",
			authHeader:     "Bearer malformed.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + signToken(t, claimsFor("user-123", -time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Missing Subject",
			authHeader:     "Bearer " + signToken(t, claimsFor("", time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var author models.Author
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&author))
				assert.Equal(t, tt.expectedUserID, author.ID)
				assert.Equal(t, "Ada", author.Name)
				assert.Equal(t, "https://cdn.example.com/ada.png", author.AvatarRef)
			}
		})
	}
}

func TestAdminRequired(t *testing.T) {
	app := fiber.New()
	InitMiddleware(&config.Config{JWTSecret: testSecret})
	app.Get("/admin", AuthRequired, AdminRequired, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin := claimsFor("root", time.Hour)
	admin.Admin = true

	for name, tc := range map[string]struct {
		claims IdentityClaims
		status int
	}{
		"admin":     {admin, http.StatusNoContent},
		"non-admin": {claimsFor("user-1", time.Hour), http.StatusForbidden},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, tc.claims))
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
