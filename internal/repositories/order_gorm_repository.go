package repositories

import (
	"fmt"

	"duka/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// GetAll retrieves all orders, newest first.
func (r *GORMOrderRepository) GetAll() ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get all orders: %w", err)
	}
	return orders, nil
}

// GetByID retrieves a single order by its ID.
func (r *GORMOrderRepository) GetByID(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// Create persists a new order.
func (r *GORMOrderRepository) Create(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if err := r.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of an order unconditionally. Reconciliation
// must not use this; it goes through MarkPaid instead.
func (r *GORMOrderRepository) UpdateStatus(id string, status string) error {
	res := r.db.Model(&models.Order{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update status for order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s for status update: %w", id, ErrNotFound)
	}
	return nil
}

// AttachPaymentAttempt records the STK push snapshot and the gateway's
// checkout request id on the order. The status is left untouched.
func (r *GORMOrderRepository) AttachPaymentAttempt(id string, attempt models.PaymentAttempt, checkoutRequestID string) error {
	res := r.db.Model(&models.Order{}).Where("id = ?", id).Updates(models.Order{
		PaymentAttempt:    &attempt,
		CheckoutRequestID: checkoutRequestID,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to attach payment attempt to order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s for payment attempt: %w", id, ErrNotFound)
	}
	return nil
}

// GetByCheckoutRequestID finds the order a gateway callback belongs to.
// A missing match is not an error: callbacks may reference pushes recorded
// before the attempt snapshot was written.
func (r *GORMOrderRepository) GetByCheckoutRequestID(checkoutRequestID string) (*models.Order, error) {
	var order models.Order
	err := r.db.First(&order, "checkout_request_id = ?", checkoutRequestID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by checkout request ID %s: %w", checkoutRequestID, err)
	}
	return &order, nil
}

// FindNewestPendingByTotal returns the most recently created pending order
// with the given total, or nil when none matches.
func (r *GORMOrderRepository) FindNewestPendingByTotal(total int64) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("total = ? AND status = ?", total, models.StatusPending).
		Order("created_at DESC").
		First(&order).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending order with total %d: %w", total, err)
	}
	return &order, nil
}

// MarkPaid flips an order to paid in a single conditional update. The
// predicate keeps the flip idempotent under duplicate callback delivery.
func (r *GORMOrderRepository) MarkPaid(id string) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, []string{models.StatusPending, models.StatusUnpaid}).
		Update("status", models.StatusPaid)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark order %s paid: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
