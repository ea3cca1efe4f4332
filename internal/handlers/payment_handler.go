package handlers

import (
	"log"

	"kedai/internal/payment"
	"kedai/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SignatureHeader carries the notification signature when the gateway sends one
// outside the body.
const SignatureHeader = "X-Signature"

// PaymentHandler serves payment status queries and gateway notifications.
type PaymentHandler struct {
	service *services.OrderService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.OrderService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes registers the payment routes with the Fiber app.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/payments/status", h.HandlePaymentStatus)
	router.Post("/webhooks/payment", h.HandleWebhook)
}

// HandlePaymentStatus proxies the gateway status of an order.
func (h *PaymentHandler) HandlePaymentStatus(c *fiber.Ctx) error {
	orderID := c.Query("orderId")
	if orderID == "" {
		return badRequest(c, "orderId is required", nil)
	}
	result, err := h.service.PaymentStatus(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"gatewayStatus": result.GatewayStatus,
		"orderExists":   result.OrderExists,
		"orderStatus":   result.OrderStatus,
	})
}

// HandleWebhook receives an asynchronous payment notification. Any non-2xx answer
// makes the gateway retry.
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	n, err := payment.ParseNotification(c.Body())
	if err != nil {
		log.Printf("Error parsing payment notification: %v", err)
		return badRequest(c, "Invalid notification body", err)
	}

	result, err := h.service.ApplyWebhook(c.UserContext(), n, c.Get(SignatureHeader))
	if err != nil {
		return respondError(c, err)
	}
	if result.Stored {
		log.Printf("Payment notification for order %s queued until the order is created", n.OrderID)
	}
	return c.JSON(fiber.Map{"message": "OK"})
}
