/**
 * @description
 * Shared error translation for API handlers. Engine error kinds map onto
 * HTTP status codes in one place so every handler responds consistently.
 */

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/likeli-project/backend/internal/engine"
)

// respondError maps an engine error onto the matching HTTP status.
// Anything unclassified is a 500.
func respondError(c *fiber.Ctx, err error) error {
	var engineErr *engine.Error
	if !errors.As(err, &engineErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	status := fiber.StatusInternalServerError
	switch engineErr.Kind {
	case engine.KindValidation:
		status = fiber.StatusBadRequest
	case engine.KindLiquidity:
		status = fiber.StatusUnprocessableEntity
	case engine.KindConflict:
		status = fiber.StatusConflict
	case engine.KindUnauthorized:
		status = fiber.StatusForbidden
	case engine.KindNotFound:
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": engineErr.Message})
}
