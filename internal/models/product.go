package models

import "gorm.io/gorm"

// Size is a single sellable variant of a product, priced in whole KES.
type Size struct {
	Label string `json:"size"`
	Price int64  `json:"price"`
}

// Brand groups the sizes a product is sold under for one manufacturer.
type Brand struct {
	BrandName string `json:"brandName"`
	Sizes     []Size `json:"sizes"`
}

// Product represents a catalog product. Brands and sizes live in a JSON
// document column; the catalog is the sole source of truth for prices.
type Product struct {
	ID            string  `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name          string  `json:"name" validate:"required,min=3,max=100"`
	Slug          string  `json:"slug" gorm:"uniqueIndex;type:varchar(150)" validate:"required"`
	Description   string  `json:"description" validate:"omitempty,max=500"`
	Image         string  `json:"image"`
	Quantity      int     `json:"quantity" validate:"gte=0"`
	Brands        []Brand `json:"brands" gorm:"serializer:json" validate:"required,min=1"`
	DiscountPrice int64   `json:"discountPrice" validate:"gte=0"`
	IsOffer       bool    `json:"isOffer"`
	gorm.Model            // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// VariantPrice resolves the authoritative price for a variant label across
// all of the product's brands. The second return reports whether any brand
// carries the variant.
func (p *Product) VariantPrice(variant string) (int64, bool) {
	for _, brand := range p.Brands {
		for _, size := range brand.Sizes {
			if size.Label == variant {
				return size.Price, true
			}
		}
	}
	return 0, false
}

// EffectiveDiscountPrice is the per-unit price a variant actually sells at:
// the product-level discount when one is set, else the variant price itself.
func (p *Product) EffectiveDiscountPrice(variantPrice int64) int64 {
	if p.DiscountPrice > 0 {
		return p.DiscountPrice
	}
	return variantPrice
}
