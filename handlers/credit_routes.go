// handlers/credit_routes.go
package handlers

import (
	"log"
	"time"

	"referral-ledger-system/middleware"
	"referral-ledger-system/models"
	"referral-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCreditRoutes(app *fiber.App, credits *services.CreditService) {
	securedGroup := app.Group("/credits", middleware.UserContextMiddleware())

	securedGroup.Get("/balance", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		bal, err := credits.Balance(userID)
		if err != nil {
			log.Printf("DB Error fetching balance: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch balance"})
		}
		return c.JSON(bal)
	})

	// Spend credits on a generation run; a short balance is a quota signal,
	// not a server error
	securedGroup.Post("/debit", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Amount   int64                  `json:"amount"`
			Purpose  string                 `json:"purpose"`
			Metadata map[string]interface{} `json:"metadata"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Amount <= 0 || req.Purpose == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount and purpose are required"})
		}

		ok, err := credits.Debit(userID, req.Amount, req.Purpose, req.Metadata)
		if err != nil {
			log.Printf("DB Error debiting credits: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to debit credits"})
		}
		if !ok {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "available credits below requested amount",
				"code":  services.ErrInsufficientCredits,
			})
		}
		return c.JSON(fiber.Map{"debited": req.Amount})
	})

	adminGroup := app.Group("/admin/credits", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Post("/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID      string     `json:"user_id"`
			Amount      int64      `json:"amount"`
			Description string     `json:"description"`
			ExpiresAt   *time.Time `json:"expires_at"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.UserID == "" || req.Amount <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and a positive amount are required"})
		}

		adminID := c.Locals("user_id").(string)
		rec, err := credits.Credit(req.UserID, req.Amount, models.CreditSourceAdmin, adminID, req.Description, req.ExpiresAt)
		if err != nil {
			log.Printf("DB Error granting credits: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to grant credits"})
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	adminGroup.Post("/sweep", func(c *fiber.Ctx) error {
		count, err := credits.SweepExpired()
		if err != nil {
			log.Printf("DB Error sweeping expired credits: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep failed"})
		}
		return c.JSON(fiber.Map{"expired": count})
	})
}
