package middleware

import (
	"fmt"
	"strings"

	"helpdesk-backend/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Auth validates the account JWT issued by the external auth system
// and stores the caller's identity in locals. Guest tokens are limited
// to the websocket and widget surfaces, so they are rejected here.
func Auth(jwtSecret string) fiber.Handler {
	secret := []byte(jwtSecret)
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(401).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token claims"})
		}
		if isGuest, _ := claims["guest"].(bool); isGuest {
			return c.Status(401).JSON(fiber.Map{"error": "guest tokens not accepted here"})
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token: missing subject"})
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		if role != model.RoleAdmin {
			role = model.RoleUser
		}

		c.Locals("user_id", userID)
		c.Locals("username", username)
		c.Locals("role", role)
		return c.Next()
	}
}

// RequireAdmin gates a route to staff. Must run after Auth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals("role").(string); role != model.RoleAdmin {
			return c.Status(403).JSON(fiber.Map{"error": "admin role required"})
		}
		return c.Next()
	}
}

// ServerKey authenticates server-to-server calls from the payment
// collaborator.
func ServerKey(expectedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Server-Key")
		if key == "" || key != expectedKey {
			return c.Status(403).JSON(fiber.Map{"error": "invalid server key"})
		}
		return c.Next()
	}
}
