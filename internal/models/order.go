package models

import "time"

// Order statuses. An order enters at StatusPending and only the payment
// reconciler moves it to StatusPaid; there is no way back out of paid.
const (
	StatusPending   = "pending"
	StatusUnpaid    = "unpaid" // legacy entry state for mpesa orders, still accepted
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
	StatusShipped   = "shipped"
)

// Payment methods accepted at checkout.
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodCOD   = "cod"
)

// OrderItem is a single validated line within an order. Price is the
// effective per-unit price after any product-level discount.
type OrderItem struct {
	ProductID       string `json:"productId"`
	Name            string `json:"name"`
	Variant         string `json:"variant"`
	Quantity        int    `json:"quantity"`
	Price           int64  `json:"price"`
	DiscountApplied bool   `json:"discountApplied"`
	Subtotal        int64  `json:"subtotal"`
}

// PaymentAttempt is a snapshot of the last STK push dispatched for an order.
// It never changes the order status; the asynchronous callback does that.
type PaymentAttempt struct {
	InitiatedAt time.Time `json:"initiatedAt"`
	Phone       string    `json:"phone"`
	Amount      int64     `json:"amount"`
}

// Order represents one checkout attempt. Items and the payment attempt are
// stored as JSON document columns. The (status, total, created_at) index
// backs the reconciler's amount-correlation query.
type Order struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string          `json:"userId,omitempty" gorm:"type:varchar(36)"` // empty for guest checkout
	Items             []OrderItem     `json:"items" gorm:"serializer:json"`
	Subtotal          int64           `json:"subtotal"`
	Total             int64           `json:"total" gorm:"index:idx_orders_status_total,priority:2"`
	Phone             string          `json:"phone"`
	Address           string          `json:"address"`
	PaymentMethod     string          `json:"paymentMethod"`
	Status            string          `json:"status" gorm:"index:idx_orders_status_total,priority:1"`
	PaymentAttempt    *PaymentAttempt `json:"paymentAttempt,omitempty" gorm:"serializer:json"`
	CheckoutRequestID string          `json:"checkoutRequestId,omitempty" gorm:"index"`
	CreatedAt         time.Time       `json:"createdAt" gorm:"index:idx_orders_status_total,priority:3"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Payable reports whether an STK push may still be initiated for the order.
func (o *Order) Payable() bool {
	return o.Status == StatusPending || o.Status == StatusUnpaid
}
