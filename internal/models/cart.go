package models

// CartLine is a client-supplied checkout line. Claimed prices are never
// trusted: every line is re-verified against the catalog before it becomes
// an OrderItem. JSON field names match the storefront client payload.
type CartLine struct {
	ProductID     string `json:"productId" validate:"required"`
	Name          string `json:"name"`
	Price         int64  `json:"price" validate:"required,gt=0"`
	DiscountPrice int64  `json:"discountPrice" validate:"gte=0"`
	Image         string `json:"image"`
	Variant       string `json:"variant" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
}
