package repositories

import (
	"duka/internal/models"
)

// OrderRepository defines the interface for order data access.
//
// MarkPaid must be an atomic conditional update: the status flips to paid
// only while it is still pending or unpaid, so a duplicated gateway callback
// can never produce a second transition.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetByID(id string) (*models.Order, error)
	Create(order *models.Order) error
	UpdateStatus(id string, status string) error
	AttachPaymentAttempt(id string, attempt models.PaymentAttempt, checkoutRequestID string) error
	// GetByCheckoutRequestID returns (nil, nil) when no order carries the id.
	GetByCheckoutRequestID(checkoutRequestID string) (*models.Order, error)
	// FindNewestPendingByTotal returns the most recently created pending
	// order with the given total, or (nil, nil) when none matches.
	FindNewestPendingByTotal(total int64) (*models.Order, error)
	// MarkPaid reports whether this call performed the pending→paid flip.
	MarkPaid(id string) (bool, error)
}
