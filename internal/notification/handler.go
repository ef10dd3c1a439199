package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/stock-ledger/internal/email"
	"github.com/example/stock-ledger/internal/inventory"
	"go.uber.org/zap"
)

// AlertSender delivers low-stock alerts.
type AlertSender interface {
	SendLowStockAlert(to []string, alert email.LowStockAlert) error
}

// Handler turns stock events into low-stock alerts
type Handler struct {
	sender     AlertSender
	recipients []string
	logger     *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender AlertSender, recipients []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sender:     sender,
		recipients: recipients,
		logger:     logger.With(zap.String("component", "notifier")),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event inventory.StockAdjusted
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal stock event: %w", err)
	}
	return h.Handle(ctx, event)
}

// Handle raises an alert only for changes that move a product from at or
// above the threshold to below it.
func (h *Handler) Handle(ctx context.Context, event inventory.StockAdjusted) error {
	if event.Type != inventory.EventStockAdjusted || !event.CrossedBelow() {
		return nil
	}

	alert := email.LowStockAlert{
		ProductID:        event.ProductID,
		ProductName:      event.ProductName,
		PreviousQuantity: event.PreviousQuantity,
		Quantity:         event.Quantity,
		Threshold:        event.Threshold,
		OccurredAt:       event.OccurredAt,
	}
	if err := h.sender.SendLowStockAlert(h.recipients, alert); err != nil {
		return fmt.Errorf("send low stock alert for %s: %w", event.ProductID, err)
	}

	h.logger.Info("low stock alert sent",
		zap.String("product_id", event.ProductID),
		zap.Int("quantity", event.Quantity),
		zap.Int("recipients", len(h.recipients)),
	)
	return nil
}
