package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storefront/orderreview/internal/domain"
	pkgkafka "github.com/storefront/orderreview/pkg/kafka"
)

// TopicFulfillmentStatusChanged carries shipping progress from the
// fulfillment system.
var TopicFulfillmentStatusChanged = pkgkafka.Topic("fulfillment", "status_changed")

// FulfillmentStatusData is the payload of fulfillment.status_changed.
type FulfillmentStatusData struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// StatusUpdater applies a fulfillment status to an order.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error)
}

// FulfillmentHandler turns fulfillment.status_changed events into order
// status updates. Errors are returned so the consumer can retry and
// dead-letter.
func FulfillmentHandler(orders StatusUpdater, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		var data FulfillmentStatusData
		if err := evt.DecodeData(&data); err != nil {
			return err
		}
		if data.OrderID == "" {
			data.OrderID = evt.AggregateID
		}
		if data.OrderID == "" || !domain.IsValidStatus(data.Status) {
			return errors.New("fulfillment event missing order id or carrying unknown status")
		}

		order, err := orders.UpdateStatus(ctx, data.OrderID, data.Status)
		if err != nil {
			return fmt.Errorf("apply fulfillment status: %w", err)
		}

		logger.InfoContext(ctx, "fulfillment status applied",
			slog.String("event_id", evt.EventID),
			slog.String("order_id", order.ID),
			slog.String("status", order.Status),
		)
		return nil
	}
}
