package services_test

import (
	"testing"

	"duka/internal/models"
	"duka/internal/services"

	"github.com/stretchr/testify/assert"
)

func TestProductService_CreateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	product := discountedProduct()
	product.ID = ""

	mockRepo.On("Create", product).Return(nil).Once()
	err := service.CreateProduct(product)
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProduct_RejectsUnpricedSizes(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	product := &models.Product{
		Name: "Broken Product",
		Brands: []models.Brand{
			{BrandName: "Acme", Sizes: []models.Size{{Label: "M", Price: 0}}},
		},
	}

	err := service.CreateProduct(product)
	assert.ErrorIs(t, err, services.ErrValidation)
	mockRepo.AssertNotCalled(t, "Create")

	product.Brands = []models.Brand{{BrandName: "Acme"}} // no sizes at all
	err = service.CreateProduct(product)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestProductService_UpdateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	product := discountedProduct()
	mockRepo.On("Update", product).Return(nil).Once()

	err := service.UpdateProduct(product)
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestProductService_GetProductByID(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	expected := discountedProduct()
	mockRepo.On("GetByID", "prod-1").Return(expected, nil).Once()

	product, err := service.GetProductByID("prod-1")
	assert.NoError(t, err)
	assert.Equal(t, expected, product)
	mockRepo.AssertExpectations(t)
}
