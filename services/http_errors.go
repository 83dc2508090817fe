package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// respondServiceError maps the service error taxonomy onto HTTP responses.
// The body tells the client which failures are fixable (validation,
// insufficient funds), which are definitive conflicts, and which are
// transient and safe to retry with the identical idempotent call.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountOutOfRange),
		errors.Is(err, ErrInvalidSchedule),
		errors.Is(err, ErrInvalidCapacity),
		errors.Is(err, ErrReasonRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "retryable": false})

	case errors.Is(err, ErrInsufficientFunds):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error(), "retryable": false})

	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTournamentNotFound),
		errors.Is(err, ErrParticipationNotFound),
		errors.Is(err, ErrWithdrawalNotFound),
		errors.Is(err, ErrTransactionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, ErrTournamentNotJoinable),
		errors.Is(err, ErrTournamentFull),
		errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrCancellationClosed),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotReversible):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "retryable": false})

	case errors.Is(err, ErrCorrelationConflict):
		log.Printf("❌ [API] correlation conflict: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error, contact support"})

	default:
		log.Printf("❌ [API] storage error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "temporary storage error", "retryable": true})
	}
}
