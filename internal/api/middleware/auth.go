/**
 * @description
 * Authentication middleware using HMAC-signed JWTs.
 * Validates Bearer tokens with the shared secret and exposes the caller's
 * user id to handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 * - github.com/golang-jwt/jwt/v5: JWT parsing
 *
 * @notes
 * - Requires JWT_SECRET to be set in configuration.
 */

package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/likeli-project/backend/internal/config"
	"github.com/likeli-project/backend/internal/logger"
)

var jwtSecret []byte

// InitAuthMiddleware stores the signing secret. Should be called at startup.
func InitAuthMiddleware(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		logger.Info("⚠️ Warning: JWT_SECRET is empty. Protected routes will reject every request.")
		return nil
	}
	jwtSecret = []byte(cfg.Auth.JWTSecret)
	logger.Info("✅ Auth Middleware Initialized")
	return nil
}

// Protected protects routes requiring authentication
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(jwtSecret) == 0 {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Auth configuration not initialized",
			})
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token format"})
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return jwtSecret, nil
		})
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token: " + err.Error()})
		}
		if !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
		}

		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing subject"})
		}

		c.Locals("user_id", sub)

		return c.Next()
	}
}

// GetUserID returns the authenticated user's id from context
func GetUserID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals("user_id").(string)
	if !ok {
		return "", errors.New("user id not found in context")
	}
	return id, nil
}
