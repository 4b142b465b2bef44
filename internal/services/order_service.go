package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/pkg/rabbitmq"

	"github.com/google/uuid"
)

// OrderService owns order creation and every status transition. It is the
// only component allowed to mutate orders.
type OrderService struct {
	orderRepo repositories.OrderRepository
	pricing   *PricingService
	mqClient  *rabbitmq.Client // optional; nil skips event publication
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository, pricing *PricingService, mqClient *rabbitmq.Client) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		pricing:   pricing,
		mqClient:  mqClient,
	}
}

// CreateOrderInput is a pre-validated order submission: the client already
// ran the cart through checkout and collected delivery details.
type CreateOrderInput struct {
	Items         []models.CartLine
	Subtotal      int64
	Total         int64
	Phone         string
	Address       string
	PaymentMethod string
	UserID        string
}

// GetAllOrders retrieves all orders.
func (s *OrderService) GetAllOrders() ([]models.Order, error) {
	return s.orderRepo.GetAll()
}

// GetOrderByID retrieves a single order by its ID.
func (s *OrderService) GetOrderByID(id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, err
	}
	return order, nil
}

// CreateFromCart validates claimed cart lines against the catalog and
// creates a pending order priced entirely from catalog data. This is the
// storefront checkout entry path; delivery details are collected later.
func (s *OrderService) CreateFromCart(lines []models.CartLine, userID string) (*models.Order, error) {
	items, subtotal, err := s.pricing.ValidateCart(lines)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:       uuid.New().String(),
		UserID:   userID,
		Items:    items,
		Subtotal: subtotal,
		Total:    subtotal, // no separate tax or shipping line; discount is pre-applied per item
		Status:   models.StatusPending,
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.publishEvent("order.created", order)
	return order, nil
}

// CreateOrder creates an order from a pre-validated submission carrying
// delivery details and payment method. Both payment methods enter at
// pending: COD awaits fulfillment, M-PESA awaits payment initiation.
func (s *OrderService) CreateOrder(in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	if in.Subtotal <= 0 || in.Total <= 0 {
		return nil, fmt.Errorf("%w: subtotal and total are required", ErrValidation)
	}
	if in.Total != in.Subtotal {
		return nil, fmt.Errorf("%w: total %d does not equal subtotal %d", ErrValidation, in.Total, in.Subtotal)
	}
	if in.Phone == "" || in.Address == "" {
		return nil, fmt.Errorf("%w: phone and address are required", ErrValidation)
	}
	if in.PaymentMethod != models.PaymentMethodMpesa && in.PaymentMethod != models.PaymentMethodCOD {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, in.PaymentMethod)
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for %s", ErrValidation, line.Name)
		}
		// The effective price is the discounted one when a discount applies.
		actualPrice := line.Price
		discountApplied := line.DiscountPrice > 0 && line.DiscountPrice != line.Price
		if line.DiscountPrice > 0 {
			actualPrice = line.DiscountPrice
		}
		items = append(items, models.OrderItem{
			ProductID:       line.ProductID,
			Name:            line.Name,
			Variant:         line.Variant,
			Quantity:        line.Quantity,
			Price:           actualPrice,
			DiscountApplied: discountApplied,
			Subtotal:        actualPrice * int64(line.Quantity),
		})
	}

	order := &models.Order{
		ID:            uuid.New().String(),
		UserID:        in.UserID,
		Items:         items,
		Subtotal:      in.Subtotal,
		Total:         in.Total,
		Phone:         in.Phone,
		Address:       in.Address,
		PaymentMethod: in.PaymentMethod,
		Status:        models.StatusPending,
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.publishEvent("order.created", order)
	return order, nil
}

// UpdateOrderStatus performs a fulfillment transition. Shipping requires a
// paid order; cancellation requires one that was never paid. The paid status
// itself is owned by the reconciler and cannot be set here.
func (s *OrderService) UpdateOrderStatus(id string, status string) error {
	order, err := s.GetOrderByID(id)
	if err != nil {
		return err
	}

	switch status {
	case models.StatusShipped:
		if order.Status != models.StatusPaid && !(order.Status == models.StatusPending && order.PaymentMethod == models.PaymentMethodCOD) {
			return fmt.Errorf("%w: cannot ship order in status %q", ErrInvalidOrderState, order.Status)
		}
	case models.StatusCancelled:
		if !order.Payable() {
			return fmt.Errorf("%w: cannot cancel order in status %q", ErrInvalidOrderState, order.Status)
		}
	default:
		return fmt.Errorf("%w: unsupported status transition to %q", ErrValidation, status)
	}

	if err := s.orderRepo.UpdateStatus(id, status); err != nil {
		return fmt.Errorf("failed to update order status for order %s: %w", id, err)
	}
	return nil
}

// publishEvent sends an order lifecycle event to RabbitMQ. Publish failures
// are logged, never surfaced: the order mutation already happened.
func (s *OrderService) publishEvent(routingKey string, order *models.Order) {
	if s.mqClient == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"orderID": order.ID,
		"userID":  order.UserID,
		"status":  order.Status,
		"total":   order.Total,
	})
	if err != nil {
		log.Printf("Failed to marshal %s event for order %s: %v", routingKey, order.ID, err)
		return
	}
	if err := s.mqClient.Publish(routingKey, body); err != nil {
		log.Printf("Warning: failed to publish %s event for order %s: %v", routingKey, order.ID, err)
	}
}
