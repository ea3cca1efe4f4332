package handlers

import (
	"log"

	"kedai/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CheckoutHandler opens payment transactions for a cart.
type CheckoutHandler struct {
	service         *services.OrderService
	callbackBaseURL string
}

// NewCheckoutHandler creates a new CheckoutHandler. callbackBaseURL is the storefront
// origin the payment page returns to.
func NewCheckoutHandler(service *services.OrderService, callbackBaseURL string) *CheckoutHandler {
	return &CheckoutHandler{
		service:         service,
		callbackBaseURL: callbackBaseURL,
	}
}

// RegisterRoutes registers the checkout routes with the Fiber app.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/checkout/transaction", h.HandleCreateTransaction)
}

// HandleCreateTransaction asks the payment gateway for a hosted-payment token.
func (h *CheckoutHandler) HandleCreateTransaction(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing checkout request body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	req.CallbackBaseURL = h.callbackBaseURL
	if req.CallbackBaseURL == "" {
		req.CallbackBaseURL = c.BaseURL()
	}

	result, err := h.service.CreateTransaction(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"token":       result.Token,
		"redirectUrl": result.RedirectURL,
		"orderId":     result.OrderID,
	})
}
