package handlers

import (
	"fmt"
	"log"

	"kedai/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for buyer orders.
type OrderHandler struct {
	service    *services.OrderService
	reconciler *services.Reconciler
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, reconciler *services.Reconciler) *OrderHandler {
	return &OrderHandler{
		service:    service,
		reconciler: reconciler,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleListOrders)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Post("/ensure", h.HandleEnsureOrder)
	orderRoutes.Post("/validate", h.HandleValidatePickup)
	orderRoutes.Get("/:id", h.HandleGetOrder)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
	orderRoutes.Post("/:id/await", h.HandleAwaitPayment)
}

// OrderRequest is the body of the create and ensure endpoints.
type OrderRequest struct {
	OrderID      string                 `json:"orderId"`
	OrderDetails *services.OrderDetails `json:"orderDetails"`
}

// HandleCreateOrder materializes an order after a successful payment. Repeating the
// call for the same orderId returns the existing order.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req OrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing create order request body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	if req.OrderID == "" || req.OrderDetails == nil {
		return badRequest(c, "orderId and orderDetails are required", nil)
	}

	order, existed, err := h.service.CreateOrder(c.UserContext(), req.OrderID, *req.OrderDetails)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if existed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"orderId": order.ID,
		"exists":  existed,
		"status":  order.Status,
		"order":   order,
	})
}

// HandleEnsureOrder reports an order's status, creating it when details are given.
func (h *OrderHandler) HandleEnsureOrder(c *fiber.Ctx) error {
	var req OrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing ensure order request body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	if req.OrderID == "" {
		return badRequest(c, "orderId is required", nil)
	}

	result, err := h.service.EnsureOrder(c.UserContext(), req.OrderID, req.OrderDetails)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"orderId": result.OrderID,
		"exists":  result.Exists,
		"status":  result.Status,
	})
}

// HandleGetOrder retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	order, err := h.service.GetOrder(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

// HandleListOrders lists the orders of the caller's browser session.
func (h *OrderHandler) HandleListOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrdersBySession(c.UserContext(), c.Query("sessionId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"orders":  orders,
	})
}

// HandleCancelOrder cancels an order on the buyer's request.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	if _, err := h.service.CancelOrder(c.UserContext(), orderID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Order %s has been canceled", orderID),
	})
}

// HandleAwaitPayment waits for the gateway to settle the payment and then makes
// sure the order exists. The body may carry orderDetails for the create.
func (h *OrderHandler) HandleAwaitPayment(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req OrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			log.Printf("Error parsing await request body for order %s: %v", orderID, err)
			return badRequest(c, "Invalid request body", err)
		}
	}

	result, err := h.reconciler.AwaitPayment(c.UserContext(), orderID, req.OrderDetails)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"outcome": result.Outcome,
		"orderId": result.OrderID,
		"exists":  result.Exists,
		"status":  result.Status,
	})
}

// ValidatePickupRequest is the body of the pickup validation endpoint.
type ValidatePickupRequest struct {
	ValidationCode string `json:"validationCode"`
}

// HandleValidatePickup checks the code a buyer shows at the counter.
func (h *OrderHandler) HandleValidatePickup(c *fiber.Ctx) error {
	var req ValidatePickupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", err)
	}

	order, err := h.service.ValidatePickup(c.UserContext(), req.ValidationCode)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Order validated successfully",
		"order": fiber.Map{
			"id":           order.ID,
			"buyer_name":   order.BuyerName,
			"total_amount": order.TotalAmount,
			"status":       order.Status,
			"outlet_name":  order.OutletName,
			"pickup_time":  order.PickupTime,
			"created_at":   order.CreatedAt,
			"items":        order.Items,
		},
	})
}
