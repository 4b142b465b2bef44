package repositories

import (
	"fmt"
	"sync"
	"time"

	"duka/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
// The mutex stands in for the database's per-row atomicity, so MarkPaid
// keeps the same once-only semantics as the GORM implementation.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// GetAll returns all orders.
func (r *MockOrderRepository) GetAll() ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		orderList = append(orderList, order)
	}
	return orderList, nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrNotFound)
	}
	return &order, nil
}

// Create adds a new order.
func (r *MockOrderRepository) Create(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// UpdateStatus updates the status of an order.
func (r *MockOrderRepository) UpdateStatus(id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s for status update: %w", id, ErrNotFound)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

// AttachPaymentAttempt records an STK push snapshot on an order.
func (r *MockOrderRepository) AttachPaymentAttempt(id string, attempt models.PaymentAttempt, checkoutRequestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s for payment attempt: %w", id, ErrNotFound)
	}
	order.PaymentAttempt = &attempt
	order.CheckoutRequestID = checkoutRequestID
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

// GetByCheckoutRequestID returns the order carrying the gateway's checkout
// request id, or nil when no order does.
func (r *MockOrderRepository) GetByCheckoutRequestID(checkoutRequestID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.CheckoutRequestID == checkoutRequestID {
			o := order
			return &o, nil
		}
	}
	return nil, nil
}

// FindNewestPendingByTotal returns the most recently created pending order
// with the given total, or nil when none matches.
func (r *MockOrderRepository) FindNewestPendingByTotal(total int64) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *models.Order
	for _, order := range r.orders {
		if order.Total != total || order.Status != models.StatusPending {
			continue
		}
		if newest == nil || order.CreatedAt.After(newest.CreatedAt) {
			o := order
			newest = &o
		}
	}
	return newest, nil
}

// MarkPaid flips an order to paid if it is still pending or unpaid.
func (r *MockOrderRepository) MarkPaid(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return false, fmt.Errorf("order with ID %s for payment: %w", id, ErrNotFound)
	}
	if order.Status != models.StatusPending && order.Status != models.StatusUnpaid {
		return false, nil
	}
	order.Status = models.StatusPaid
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return true, nil
}
