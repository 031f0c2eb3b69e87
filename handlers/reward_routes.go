// handlers/reward_routes.go
package handlers

import (
	"log"

	"referral-ledger-system/middleware"
	"referral-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRewardRoutes(app *fiber.App, rewards *services.RewardService) {
	adminGroup := app.Group("/admin/rewards", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Get("/approvals", func(c *fiber.Ctx) error {
		pending, err := rewards.ListPendingApprovals()
		if err != nil {
			log.Printf("DB Error listing approvals: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch approvals"})
		}
		return c.JSON(pending)
	})

	adminGroup.Post("/approvals/:id/approve", func(c *fiber.Ctx) error {
		adminID := c.Locals("user_id").(string)

		var req struct {
			Notes string `json:"notes"`
		}
		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		approval, err := rewards.Approve(c.Params("id"), adminID, req.Notes)
		if err != nil {
			if services.KindOf(err) != "" {
				return renderError(c, err)
			}
			// a decided approval is immutable
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(approval)
	})

	adminGroup.Post("/approvals/:id/reject", func(c *fiber.Ctx) error {
		adminID := c.Locals("user_id").(string)

		var req struct {
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Reason == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
		}

		approval, err := rewards.Reject(c.Params("id"), adminID, req.Reason)
		if err != nil {
			if services.KindOf(err) != "" {
				return renderError(c, err)
			}
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(approval)
	})
}
