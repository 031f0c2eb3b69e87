// handlers/invite_routes.go
package handlers

import (
	"log"

	"referral-ledger-system/middleware"
	"referral-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupInviteRoutes(app *fiber.App, codes *services.InviteCodeService, registrations *services.RegistrationService, stats *services.StatsService) {
	securedGroup := app.Group("/invites", middleware.UserContextMiddleware())

	// Issue a new code for the authenticated user
	securedGroup.Post("/codes", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		code, err := codes.Generate(userID)
		if err != nil {
			if services.KindOf(err) == "" {
				log.Printf("DB Error generating invite code: %v", err)
			}
			return renderError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(code)
	})

	securedGroup.Get("/codes", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		list, err := codes.ListCodes(userID)
		if err != nil {
			log.Printf("DB Error listing invite codes: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch codes"})
		}
		return c.JSON(list)
	})

	// Validation is a read: failures come back as a typed result, not an error
	securedGroup.Get("/codes/:code/validate", func(c *fiber.Ctx) error {
		validation, err := codes.Validate(c.Params("code"))
		if err != nil {
			log.Printf("DB Error validating invite code: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to validate code"})
		}
		return c.JSON(validation)
	})

	securedGroup.Delete("/codes/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		affected, err := codes.Deactivate(c.Params("id"), userID)
		if err != nil {
			log.Printf("DB Error deactivating invite code: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to deactivate code"})
		}
		return c.JSON(fiber.Map{"deactivated": affected})
	})

	// Bind the authenticated user to the inviter behind the submitted code
	securedGroup.Post("/register", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Code string `json:"code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		meta := services.RegistrationMeta{
			IPAddress: c.IP(),
			UserAgent: c.Get("User-Agent"),
			DeviceID:  c.Get("X-Device-ID"),
		}
		result, err := registrations.Register(req.Code, userID, meta)
		if err != nil {
			return renderError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	// External "user did something meaningful" trigger; duplicate calls no-op
	securedGroup.Post("/activate", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		activated, err := registrations.Activate(userID)
		if err != nil {
			log.Printf("DB Error activating registration: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to activate"})
		}
		return c.JSON(fiber.Map{"activated": activated})
	})

	securedGroup.Get("/registration", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		reg, err := registrations.GetRegistration(userID)
		if err != nil {
			return renderError(c, err)
		}
		return c.JSON(reg)
	})

	securedGroup.Get("/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		s, err := stats.GetInviteStats(userID)
		if err != nil {
			log.Printf("DB Error fetching invite stats: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch stats"})
		}
		return c.JSON(s)
	})

	securedGroup.Post("/share", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Platform string `json:"platform"`
		}
		if err := c.BodyParser(&req); err != nil || req.Platform == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "platform is required"})
		}

		if err := stats.RecordShare(userID, req.Platform); err != nil {
			log.Printf("DB Error recording share: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record share"})
		}
		return c.JSON(fiber.Map{"message": "OK"})
	})

	// Click-through on a shared invite link
	securedGroup.Post("/share/click", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Platform string `json:"platform"`
		}
		if err := c.BodyParser(&req); err != nil || req.Platform == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "platform is required"})
		}

		if err := stats.RecordClick(userID, req.Platform); err != nil {
			log.Printf("DB Error recording click: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record click"})
		}
		return c.JSON(fiber.Map{"message": "OK"})
	})
}
