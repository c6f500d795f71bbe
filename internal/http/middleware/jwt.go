package middleware

import (
	"strings"

	"clinic-queue/internal/config"
	"clinic-queue/internal/models"

	"github.com/gofiber/fiber/v2"
)

const sessionKey = "session"

// JWTAuth verifies the bearer token and stores the acting user as a
// models.Session. Websocket clients cannot set headers, so a token query
// parameter is accepted as well.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if authHeader := c.Get("Authorization"); authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "Invalid authorization format",
				})
			}
			token = tokenParts[1]
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Missing authorization header",
			})
		}

		claims, err := config.ValidateToken(secret, token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or expired token",
			})
		}

		c.Locals(sessionKey, claims.Session())
		return c.Next()
	}
}

// RoleAuth lets through only the given roles. Must run after JWTAuth.
func RoleAuth(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, ok := Session(c)
		if ok {
			for _, allowedRole := range allowedRoles {
				if sess.Role == allowedRole {
					return c.Next()
				}
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "You do not have access to this resource",
		})
	}
}

// Session returns the acting user stored by JWTAuth.
func Session(c *fiber.Ctx) (models.Session, bool) {
	sess, ok := c.Locals(sessionKey).(models.Session)
	return sess, ok
}
