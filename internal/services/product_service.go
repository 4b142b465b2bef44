package services

import (
	"fmt"

	"duka/internal/models"
	"duka/internal/repositories"
)

// ProductService handles business logic related to the catalog.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// CreateProduct creates a new product. Every brand must carry at least one
// priced size, since checkout resolves prices through them.
func (s *ProductService) CreateProduct(product *models.Product) error {
	if err := validateBrands(product); err != nil {
		return err
	}
	return s.repo.Create(product)
}

// UpdateProduct updates an existing product.
func (s *ProductService) UpdateProduct(product *models.Product) error {
	if err := validateBrands(product); err != nil {
		return err
	}
	return s.repo.Update(product)
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(id string) error {
	return s.repo.Delete(id)
}

func validateBrands(product *models.Product) error {
	for _, brand := range product.Brands {
		if len(brand.Sizes) == 0 {
			return fmt.Errorf("%w: brand %q has no sizes", ErrValidation, brand.BrandName)
		}
		for _, size := range brand.Sizes {
			if size.Label == "" || size.Price <= 0 {
				return fmt.Errorf("%w: brand %q has a size without label or price", ErrValidation, brand.BrandName)
			}
		}
	}
	return nil
}
