package services

import (
	"errors"
	"fmt"

	"duka/internal/models"
	"duka/internal/repositories"
)

// PricingService recomputes authoritative prices for client-supplied cart
// lines against the current catalog. It is pure validation: no caching, no
// side effects, re-run on every checkout attempt.
type PricingService struct {
	productRepo repositories.ProductRepository
}

// NewPricingService creates a new PricingService.
func NewPricingService(productRepo repositories.ProductRepository) *PricingService {
	return &PricingService{
		productRepo: productRepo,
	}
}

// ValidateCart checks every claimed line against the catalog and returns the
// validated order items plus the subtotal, computed from authoritative
// prices only. Claimed prices must match the catalog exactly; amounts are
// whole KES, so there is no tolerance.
func (s *PricingService) ValidateCart(lines []models.CartLine) ([]models.OrderItem, int64, error) {
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	var subtotal int64
	items := make([]models.OrderItem, 0, len(lines))

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: quantity must be positive for product %s", ErrValidation, line.ProductID)
		}

		product, err := s.productRepo.GetByID(line.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, 0, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
			return nil, 0, fmt.Errorf("failed to look up product %s: %w", line.ProductID, err)
		}

		unitPrice, ok := product.VariantPrice(line.Variant)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q for product %s", ErrVariantNotFound, line.Variant, product.Name)
		}
		discountPrice := product.EffectiveDiscountPrice(unitPrice)

		if line.Price != unitPrice || line.DiscountPrice != discountPrice {
			return nil, 0, fmt.Errorf("%w: product %s variant %q", ErrPriceMismatch, product.Name, line.Variant)
		}

		lineSubtotal := discountPrice * int64(line.Quantity)
		items = append(items, models.OrderItem{
			ProductID:       product.ID,
			Name:            product.Name,
			Variant:         line.Variant,
			Quantity:        line.Quantity,
			Price:           discountPrice,
			DiscountApplied: product.DiscountPrice > 0,
			Subtotal:        lineSubtotal,
		})
		subtotal += lineSubtotal
	}

	return items, subtotal, nil
}
