package services

import (
	"encoding/json"
	"fmt"
	"log"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/pkg/mpesa"
	"duka/pkg/rabbitmq"
)

// ReconcileService matches asynchronous gateway payment results back to the
// orders they pay for. It never fails loudly towards the gateway: the
// webhook handler acknowledges every delivery regardless of the outcome
// here, so the gateway does not retry-storm us.
type ReconcileService struct {
	orderRepo repositories.OrderRepository
	mqClient  *rabbitmq.Client // optional; nil skips event publication
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(orderRepo repositories.OrderRepository, mqClient *rabbitmq.Client) *ReconcileService {
	return &ReconcileService{
		orderRepo: orderRepo,
		mqClient:  mqClient,
	}
}

// HandleCallback processes one STK push result. Failed payments mutate
// nothing. Successful ones are correlated to an order, by the checkout
// request id recorded at initiation when possible and falling back to the
// newest pending order with the paid amount, then flipped to paid through a
// single conditional update, so a duplicated delivery is a no-op.
func (s *ReconcileService) HandleCallback(cb mpesa.STKCallback) error {
	if cb.ResultCode != 0 {
		log.Printf("STK push failed (code %d): %s", cb.ResultCode, cb.ResultDesc)
		return nil
	}
	if cb.CallbackMetadata == nil {
		return fmt.Errorf("%w: callback has no metadata", ErrMissingMetadata)
	}

	amount, okAmount := cb.CallbackMetadata.Amount()
	phone, okPhone := cb.CallbackMetadata.Phone()
	receipt, okReceipt := cb.CallbackMetadata.Receipt()
	if !okAmount || !okPhone || !okReceipt {
		return fmt.Errorf("%w: amount, phone or receipt missing", ErrMissingMetadata)
	}

	order, err := s.correlate(cb.CheckoutRequestID, amount)
	if err != nil {
		return err
	}
	if order == nil {
		log.Printf("Warning: no pending order found matching amount %d (receipt %s)", amount, receipt)
		return nil
	}

	flipped, err := s.orderRepo.MarkPaid(order.ID)
	if err != nil {
		return fmt.Errorf("failed to reconcile order %s: %w", order.ID, err)
	}
	if !flipped {
		// Duplicate delivery or a concurrent callback won the race.
		log.Printf("Order %s already reconciled, ignoring duplicate callback (receipt %s)", order.ID, receipt)
		return nil
	}

	log.Printf("Order %s marked as paid via M-PESA. Receipt: %s, payer: %s", order.ID, receipt, phone)
	s.publishPaid(order, receipt)
	return nil
}

// correlate finds the order a successful payment belongs to.
func (s *ReconcileService) correlate(checkoutRequestID string, amount int64) (*models.Order, error) {
	if checkoutRequestID != "" {
		order, err := s.orderRepo.GetByCheckoutRequestID(checkoutRequestID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up checkout request %s: %w", checkoutRequestID, err)
		}
		if order != nil {
			return order, nil
		}
	}
	// Amount matching is ambiguous when two pending orders share a total;
	// the newest one wins. Kept as the fallback for pushes initiated before
	// the checkout request id was recorded.
	order, err := s.orderRepo.FindNewestPendingByTotal(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending order for amount %d: %w", amount, err)
	}
	return order, nil
}

func (s *ReconcileService) publishPaid(order *models.Order, receipt string) {
	if s.mqClient == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"orderID": order.ID,
		"status":  models.StatusPaid,
		"total":   order.Total,
		"receipt": receipt,
	})
	if err != nil {
		log.Printf("Failed to marshal order.paid event for order %s: %v", order.ID, err)
		return
	}
	if err := s.mqClient.Publish("order.paid", body); err != nil {
		log.Printf("Warning: failed to publish order.paid event for order %s: %v", order.ID, err)
	}
}
