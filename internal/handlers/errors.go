package handlers

import (
	"errors"
	"log"

	"kedai/internal/payment"
	"kedai/internal/services"

	"github.com/gofiber/fiber/v2"
)

// respondError writes the JSON error body for err with the matching HTTP status.
// Gateway and store failures are opaque to the caller; details stay in the log.
func respondError(c *fiber.Ctx, err error) error {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		authErr       *services.AuthenticityError
		transitionErr *services.InvalidTransitionError
		gatewayErr    *payment.GatewayError
		storeErr      *services.StoreError
	)
	switch {
	case errors.As(err, &validationErr):
		body := fiber.Map{"success": false, "message": validationErr.Message, "error": validationErr.Error()}
		if len(validationErr.Fields) > 0 {
			body["errors"] = validationErr.Fields
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.As(err, &notFoundErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Order not found",
			"error":   notFoundErr.Error(),
		})
	case errors.As(err, &authErr):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid signature",
			"error":   authErr.Err.Error(),
		})
	case errors.As(err, &transitionErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": transitionErr.Error(),
			"error":   transitionErr.Reason,
		})
	case errors.As(err, &gatewayErr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Payment provider is unavailable, please try again",
		})
	case errors.As(err, &storeErr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	default:
		log.Printf("Unhandled error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	body := fiber.Map{"success": false, "message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
