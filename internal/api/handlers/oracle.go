/**
 * @description
 * HTTP Handlers for the oracle resolution protocol: proposal, challenge,
 * and the two finalization paths.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/services
 * - internal/engine
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/likeli-project/backend/internal/api/middleware"
	"github.com/likeli-project/backend/internal/engine"
	"github.com/likeli-project/backend/internal/services"
)

type OracleHandler struct {
	Oracle *services.OracleService
}

func NewOracleHandler(oracle *services.OracleService) *OracleHandler {
	return &OracleHandler{Oracle: oracle}
}

// Propose generates a provisional resolution for a due oracle market
// POST /api/v1/markets/:id/oracle/propose
func (h *OracleHandler) Propose(c *fiber.Ctx) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	proposal, err := h.Oracle.Propose(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(proposal)
}

type challengeRequest struct {
	Reason string `json:"reason"`
}

// Challenge disputes a provisional resolution inside its window
// POST /api/v1/markets/:id/oracle/challenge
func (h *OracleHandler) Challenge(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req challengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	challenge, err := h.Oracle.Challenge(c.Context(), c.Params("id"), userID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(challenge)
}

// Finalize settles an unchallenged proposal after its window closes
// POST /api/v1/markets/:id/oracle/finalize
func (h *OracleHandler) Finalize(c *fiber.Ctx) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	result, err := h.Oracle.Finalize(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

type finalizeChallengedRequest struct {
	Resolution  string  `json:"resolution"`
	Probability float64 `json:"probability"`
	AnswerID    string  `json:"answer_id"`
}

// FinalizeChallenged settles a challenged proposal with the caller's ruling
// POST /api/v1/markets/:id/oracle/finalize-challenged
func (h *OracleHandler) FinalizeChallenged(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req finalizeChallengedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.Oracle.FinalizeChallenged(c.Context(), c.Params("id"), userID, engine.ResolutionOutcome{
		Resolution:  engine.Resolution(req.Resolution),
		Probability: req.Probability,
		AnswerID:    req.AnswerID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
