package handlers

import (
	"log"

	"kedai/internal/models"
	"kedai/internal/services"

	"github.com/gofiber/fiber/v2"
)

// KitchenHandler serves the staff-only order workflow.
type KitchenHandler struct {
	service *services.OrderService
}

// NewKitchenHandler creates a new KitchenHandler.
func NewKitchenHandler(service *services.OrderService) *KitchenHandler {
	return &KitchenHandler{service: service}
}

// RegisterRoutes registers the kitchen routes. router must already require staff auth.
func (h *KitchenHandler) RegisterRoutes(router fiber.Router) {
	kitchenRoutes := router.Group("/orders")
	kitchenRoutes.Patch("/:id/status", h.HandleUpdateOrderStatus)
	kitchenRoutes.Get("/:id/webhooks", h.HandlePaymentDebug)
}

// HandleUpdateOrderStatus moves an order through received, cooking, ready and completed.
func (h *KitchenHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var updateData struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := c.BodyParser(&updateData); err != nil {
		log.Printf("Error parsing request body for status update: %v", err)
		return badRequest(c, "Invalid request body", err)
	}

	current, err := h.service.GetOrder(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if !ownsOutlet(c, current.OutletID) {
		return otherOutlet(c)
	}

	order, err := h.service.AdvanceStatus(c.UserContext(), orderID, updateData.Status)
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("Staff %v set order %s to %s", c.Locals("username"), orderID, order.Status)
	return c.JSON(fiber.Map{
		"success": true,
		"orderId": order.ID,
		"status":  order.Status,
	})
}

// HandlePaymentDebug lists an order and every payment notification stored for it.
func (h *KitchenHandler) HandlePaymentDebug(c *fiber.Ctx) error {
	debug, err := h.service.PaymentDebug(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	// notifications without an order are only visible to staff not bound to an outlet
	outletID := ""
	if debug.Order != nil {
		outletID = debug.Order.OutletID
	}
	if !ownsOutlet(c, outletID) {
		return otherOutlet(c)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"order":    debug.Order,
		"webhooks": debug.Webhooks,
	})
}

// ownsOutlet reports whether the authenticated staff member may act on an order of
// outletID. Staff without an outlet claim work across all outlets.
func ownsOutlet(c *fiber.Ctx, outletID string) bool {
	staffOutlet, _ := c.Locals("outlet_id").(string)
	return staffOutlet == "" || staffOutlet == outletID
}

func otherOutlet(c *fiber.Ctx) error {
	log.Printf("Staff %v denied access to order %s of another outlet", c.Locals("username"), c.Params("id"))
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"message": "Order belongs to another outlet",
	})
}
