package services

import "errors"

// Checkout and payment error taxonomy. Handlers map these to HTTP statuses
// with errors.Is; wrapped messages carry the detail.
var (
	// ErrValidation covers malformed or missing checkout input. The caller
	// must correct and resubmit.
	ErrValidation = errors.New("validation failed")
	// ErrProductNotFound means a cart line references a product that no
	// longer exists. The client must refresh its cart.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound means no brand of the product carries the claimed
	// variant label.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrPriceMismatch means a claimed price disagrees with the catalog.
	// Client prices are never accepted in place of catalog prices.
	ErrPriceMismatch = errors.New("price mismatch detected")
	// ErrOrderNotFound means the referenced order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrderState means the requested transition or payment is not
	// legal for the order's current status.
	ErrInvalidOrderState = errors.New("invalid order state")
	// ErrMissingMetadata means a successful gateway callback arrived without
	// the metadata needed to reconcile it. Logged and acknowledged; the
	// order stays unmatched for manual reconciliation.
	ErrMissingMetadata = errors.New("missing callback metadata")
)
