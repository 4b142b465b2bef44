package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"duka/internal/handlers"
	"duka/internal/middleware"
	"duka/internal/models"
	"duka/internal/repositories"
	"duka/internal/services"
	"duka/pkg/mpesa"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeGateway is an STKGateway that always dispatches successfully and
// counts how often it was called.
type fakeGateway struct {
	calls int
}

func (g *fakeGateway) STKPush(ctx context.Context, push mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	g.calls++
	return &mpesa.STKPushResponse{
		MerchantRequestID: "merch-1",
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", g.calls),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

type testEnv struct {
	app         *fiber.App
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	userRepo    repositories.UserRepository
	gateway     *fakeGateway
	authService *services.AuthService
}

// setupEnv wires the full application against an in-memory SQLite database
// and a fake payment gateway.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.Product{}, &models.Order{}, &models.User{}))

	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	gateway := &fakeGateway{}

	pricingService := services.NewPricingService(productRepo)
	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(orderRepo, pricingService, nil)
	paymentService := services.NewPaymentService(orderRepo, gateway)
	reconcileService := services.NewReconcileService(orderRepo, nil)
	authService := services.NewAuthService(userRepo, viper.GetString("JWT_SECRET"))

	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	checkoutHandler := handlers.NewCheckoutHandler(orderService, paymentService, reconcileService)
	authHandler := handlers.NewAuthHandler(authService)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")

	authHandler.RegisterRoutes(apiV1)
	productHandler.RegisterPublicRoutes(apiV1)
	checkoutHandler.RegisterRoutes(apiV1)

	adminRoutes := apiV1.Group("", middleware.AuthRequired(authService), middleware.AdminRequired())
	productHandler.RegisterAdminRoutes(adminRoutes)
	orderHandler.RegisterRoutes(adminRoutes)

	// Catalog product with variant "M" priced 1000 and discount 800
	assert.NoError(t, productRepo.Create(&models.Product{
		ID:   "prod-1",
		Name: "Test Perfume",
		Slug: "test-perfume",
		Brands: []models.Brand{
			{BrandName: "Acme", Sizes: []models.Size{
				{Label: "S", Price: 700},
				{Label: "M", Price: 1000},
			}},
		},
		DiscountPrice: 800,
	}))

	return &testEnv{
		app:         app,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		gateway:     gateway,
		authService: authService,
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	jsonBody, err := json.Marshal(body)
	assert.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)

	var decoded map[string]interface{}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil && decodeErr != io.EOF {
		t.Fatalf("failed to decode response body: %v", decodeErr)
	}
	resp.Body.Close()
	return resp, decoded
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	code := m.Run()
	os.Exit(code)
}

func TestCheckoutAcceptsCatalogPrices(t *testing.T) {
	env := setupEnv(t)

	resp, body := postJSON(t, env.app, "/api/v1/checkout", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": "prod-1", "name": "Test Perfume", "price": 1000, "discountPrice": 800, "variant": "M", "quantity": 2},
		},
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	orderID, _ := body["orderId"].(string)
	assert.NotEmpty(t, orderID)

	order, err := env.orderRepo.GetByID(orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, int64(1600), order.Subtotal)
	assert.Equal(t, int64(1600), order.Total)
}

func TestCheckoutRejectsTamperedPrice(t *testing.T) {
	env := setupEnv(t)

	resp, body := postJSON(t, env.app, "/api/v1/checkout", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": "prod-1", "name": "Test Perfume", "price": 900, "discountPrice": 800, "variant": "M", "quantity": 2},
		},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "price mismatch")

	orders, err := env.orderRepo.GetAll()
	assert.NoError(t, err)
	assert.Empty(t, orders, "a rejected checkout must not create an order")
}

func TestCheckoutRejectsUnknownVariant(t *testing.T) {
	env := setupEnv(t)

	resp, body := postJSON(t, env.app, "/api/v1/checkout", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": "prod-1", "name": "Test Perfume", "price": 1000, "discountPrice": 800, "variant": "XL", "quantity": 1},
		},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "variant not found")
}

func TestFullMpesaPaymentFlow(t *testing.T) {
	env := setupEnv(t)

	// 1. Create the order with delivery details
	resp, body := postJSON(t, env.app, "/api/v1/checkout/create-order", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": "prod-1", "name": "Test Perfume", "price": 1000, "discountPrice": 800, "variant": "M", "quantity": 2},
		},
		"subtotal":      1600,
		"total":         1600,
		"phone":         "254712345678",
		"address":       "Moi Avenue, Nairobi",
		"paymentMethod": "mpesa",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	orderID, _ := body["orderId"].(string)
	assert.NotEmpty(t, orderID)

	// 2. Initiate the STK push
	resp, body = postJSON(t, env.app, "/api/v1/checkout/stk-push", map[string]interface{}{
		"phone":   "254712345678",
		"orderId": orderID,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "initiated", body["status"])
	assert.Equal(t, 1, env.gateway.calls)

	order, err := env.orderRepo.GetByID(orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.NotNil(t, order.PaymentAttempt)
	assert.Equal(t, "ws_CO_1", order.CheckoutRequestID)

	// 3. Gateway reports the payment result asynchronously
	callback := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "merch-1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode":        0,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata": map[string]interface{}{
					"Item": []map[string]interface{}{
						{"Name": "Amount", "Value": 1600},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254712345678},
					},
				},
			},
		},
	}
	resp, body = postJSON(t, env.app, "/api/v1/checkout/mpesa-callback", callback, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])

	order, err = env.orderRepo.GetByID(orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.Status)

	// 4. A duplicated callback delivery is acknowledged but changes nothing
	resp, body = postJSON(t, env.app, "/api/v1/checkout/mpesa-callback", callback, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])

	order, _ = env.orderRepo.GetByID(orderID)
	assert.Equal(t, models.StatusPaid, order.Status)

	// 5. Re-initiating payment for the paid order fails without a gateway call
	resp, body = postJSON(t, env.app, "/api/v1/checkout/stk-push", map[string]interface{}{
		"phone":   "254712345678",
		"orderId": orderID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or already paid order", body["error"])
	assert.Equal(t, 1, env.gateway.calls)
}

func TestFailedPaymentCallbackLeavesOrderPending(t *testing.T) {
	env := setupEnv(t)

	order := &models.Order{Total: 1600, Status: models.StatusPending, PaymentMethod: models.PaymentMethodMpesa}
	assert.NoError(t, env.orderRepo.Create(order))

	callback := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "merch-1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode":        1032,
				"ResultDesc":        "Request cancelled by user.",
			},
		},
	}
	resp, body := postJSON(t, env.app, "/api/v1/checkout/mpesa-callback", callback, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])

	stored, _ := env.orderRepo.GetByID(order.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := setupEnv(t)

	// Unauthenticated access is rejected
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp, err := env.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// A customer token is not enough
	customerToken := loginAs(t, env, "customer1", models.RoleCustomer)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+customerToken)
	resp, err = env.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// An admin token passes
	adminToken := loginAs(t, env, "admin1", models.RoleAdmin)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = env.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminFulfillmentTransition(t *testing.T) {
	env := setupEnv(t)

	order := &models.Order{Total: 1600, Status: models.StatusPaid, PaymentMethod: models.PaymentMethodMpesa}
	assert.NoError(t, env.orderRepo.Create(order))

	adminToken := loginAs(t, env, "admin1", models.RoleAdmin)
	headers := map[string]string{"Authorization": "Bearer " + adminToken}

	jsonBody, _ := json.Marshal(map[string]string{"status": models.StatusShipped})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := env.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, _ := env.orderRepo.GetByID(order.ID)
	assert.Equal(t, models.StatusShipped, stored.Status)
}

// loginAs provisions a user with the given role directly in the repository
// and returns a JWT for them.
func loginAs(t *testing.T, env *testEnv, username, role string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	assert.NoError(t, err)
	assert.NoError(t, env.userRepo.Create(&models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hashed),
		Role:     role,
	}))

	token, err := env.authService.LoginUser(username, "password123")
	assert.NoError(t, err)
	return token
}
