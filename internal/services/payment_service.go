package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/pkg/mpesa"
)

// STKGateway is the slice of the M-PESA client the payment service needs.
type STKGateway interface {
	STKPush(ctx context.Context, push mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// PaymentService initiates mobile-money payment prompts for orders awaiting
// payment. It makes exactly one gateway attempt per invocation; the caller
// may re-invoke after a failure.
type PaymentService struct {
	orderRepo repositories.OrderRepository
	gateway   STKGateway
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(orderRepo repositories.OrderRepository, gateway STKGateway) *PaymentService {
	return &PaymentService{
		orderRepo: orderRepo,
		gateway:   gateway,
	}
}

// InitiationResult reports a successfully dispatched payment prompt.
type InitiationResult struct {
	CheckoutRequestID string
	CustomerMessage   string
}

// InitiateSTKPush asks the gateway to prompt the customer's phone to pay
// the order total. The order must still be awaiting payment; otherwise no
// gateway call is made. A nil error means the prompt reached the device,
// not that payment succeeded; the callback reports that later.
func (s *PaymentService) InitiateSTKPush(ctx context.Context, orderID string, phone string) (*InitiationResult, error) {
	if phone == "" || orderID == "" {
		return nil, fmt.Errorf("%w: phone and orderId are required", ErrValidation)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// A nonexistent order is not payable either.
			return nil, fmt.Errorf("%w: %s", ErrInvalidOrderState, orderID)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if !order.Payable() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidOrderState, orderID, order.Status)
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Amount:           order.Total,
		Phone:            phone,
		AccountReference: "Order-" + order.ID,
		Description:      "E-commerce order payment",
	})
	if err != nil {
		return nil, err
	}

	attempt := models.PaymentAttempt{
		InitiatedAt: time.Now(),
		Phone:       phone,
		Amount:      order.Total,
	}
	if err := s.orderRepo.AttachPaymentAttempt(order.ID, attempt, resp.CheckoutRequestID); err != nil {
		// The prompt is already on the customer's device; losing the
		// snapshot only weakens callback correlation, so log and carry on.
		log.Printf("Warning: failed to record payment attempt for order %s: %v", order.ID, err)
	}

	return &InitiationResult{
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}
