package handlers

import (
	"errors"
	"log"

	"duka/internal/models"
	"duka/internal/services"
	"duka/pkg/mpesa"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CheckoutHandler handles the checkout flow: cart validation, order
// creation, STK push initiation and the gateway's payment callback.
type CheckoutHandler struct {
	orderService   *services.OrderService
	paymentService *services.PaymentService
	reconciler     *services.ReconcileService
	validate       *validator.Validate
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(orderService *services.OrderService, paymentService *services.PaymentService, reconciler *services.ReconcileService) *CheckoutHandler {
	return &CheckoutHandler{
		orderService:   orderService,
		paymentService: paymentService,
		reconciler:     reconciler,
		validate:       validator.New(),
	}
}

// RegisterRoutes registers the checkout routes with the Fiber app. These are
// public: checkout supports guests, and the callback is invoked by the
// payment gateway, not by a logged-in client.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	checkoutRoutes := router.Group("/checkout")
	checkoutRoutes.Post("/", h.HandleCheckout)
	checkoutRoutes.Post("/create-order", h.HandleCreateOrder)
	checkoutRoutes.Post("/stk-push", h.HandleSTKPush)
	checkoutRoutes.Post("/mpesa-callback", h.HandleMpesaCallback)
}

// CheckoutRequest carries the client's claimed cart lines.
type CheckoutRequest struct {
	Items []models.CartLine `json:"items" validate:"required,min=1,dive"`
}

// HandleCheckout validates the claimed cart against the catalog and creates
// a pending order priced from catalog data only.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid cart payload",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid cart payload",
		})
	}

	userID, _ := c.Locals("user_id").(string) // empty for guest checkout

	order, err := h.orderService.CreateFromCart(req.Items, userID)
	if err != nil {
		log.Printf("Checkout error: %v", err)
		return checkoutError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"orderId": order.ID,
	})
}

// CreateOrderRequest is a pre-validated order submission with delivery
// details and chosen payment method.
type CreateOrderRequest struct {
	Items         []models.CartLine `json:"items" validate:"required,min=1,dive"`
	Subtotal      int64             `json:"subtotal" validate:"required,gt=0"`
	Total         int64             `json:"total" validate:"required,gt=0"`
	Phone         string            `json:"phone" validate:"required"`
	Address       string            `json:"address" validate:"required"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,oneof=mpesa cod"`
}

// HandleCreateOrder creates an order carrying delivery details.
func (h *CheckoutHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing order data",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing order data",
		})
	}

	userID, _ := c.Locals("user_id").(string)

	order, err := h.orderService.CreateOrder(services.CreateOrderInput{
		Items:         req.Items,
		Subtotal:      req.Subtotal,
		Total:         req.Total,
		Phone:         req.Phone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		UserID:        userID,
	})
	if err != nil {
		log.Printf("Create order error: %v", err)
		return checkoutError(c, err)
	}

	return c.JSON(fiber.Map{
		"orderId": order.ID,
	})
}

// STKPushRequest asks for a payment prompt on the customer's phone.
type STKPushRequest struct {
	Phone   string `json:"phone" validate:"required"`
	OrderID string `json:"orderId" validate:"required"`
}

// HandleSTKPush initiates an M-PESA payment prompt for a pending order.
func (h *CheckoutHandler) HandleSTKPush(c *fiber.Ctx) error {
	var req STKPushRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON body",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing phone or orderId",
		})
	}

	result, err := h.paymentService.InitiateSTKPush(c.Context(), req.OrderID, req.Phone)
	if err != nil {
		log.Printf("STK push error for order %s: %v", req.OrderID, err)
		switch {
		case errors.Is(err, services.ErrInvalidOrderState):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid or already paid order",
			})
		case errors.Is(err, services.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing phone or orderId",
			})
		case errors.Is(err, mpesa.ErrAuth):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "Failed to get access token",
				"details": err.Error(),
			})
		case errors.Is(err, mpesa.ErrRequest):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "STK Push failed",
				"details": err.Error(),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not initiate payment",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": result.CustomerMessage,
		"status":  "initiated",
	})
}

// HandleMpesaCallback receives the gateway's asynchronous payment result.
// It always acknowledges with 200 {received: true}: the gateway only cares
// that the delivery arrived, and anything else invites retry storms.
// Reconciliation failures are logged for manual follow-up.
func (h *CheckoutHandler) HandleMpesaCallback(c *fiber.Ctx) error {
	var envelope mpesa.CallbackEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		log.Printf("Failed to parse M-PESA callback: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	if err := h.reconciler.HandleCallback(envelope.Body.STKCallback); err != nil {
		log.Printf("M-PESA callback reconciliation failed: %v", err)
	}

	return c.JSON(fiber.Map{"received": true})
}

// checkoutError maps service errors to checkout responses. Validation and
// catalog lookups are client errors; everything else is a server error.
func checkoutError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrVariantNotFound),
		errors.Is(err, services.ErrPriceMismatch),
		errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}
}
