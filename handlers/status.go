// handlers/status.go
package handlers

import (
	"referral-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

// statusForKind maps domain error kinds to HTTP status codes. Validation
// kinds render as 400s the client can show directly; quota exhaustion maps to
// 429 so callers back off.
func statusForKind(kind services.ErrKind) int {
	switch kind {
	case services.ErrAlreadyRegistered:
		return fiber.StatusConflict
	case services.ErrInsufficientCredits:
		return fiber.StatusTooManyRequests
	case services.ErrApprovalNotFound:
		return fiber.StatusNotFound
	case services.ErrCodeGenerationExhausted:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadRequest
	}
}

func renderError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	if kind == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(statusForKind(kind)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  kind,
	})
}
