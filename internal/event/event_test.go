package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storefront/orderreview/internal/domain"
	apperrors "github.com/storefront/orderreview/pkg/errors"
	pkgkafka "github.com/storefront/orderreview/pkg/kafka"
	"github.com/storefront/orderreview/pkg/logger"
)

type published struct {
	topic string
	event *pkgkafka.Event
}

type recordingPublisher struct {
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, event: evt})
	return nil
}

type mockStatusUpdater struct {
	mock.Mock
}

func (m *mockStatusUpdater) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	args := m.Called(ctx, orderID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:         "o-1",
		UserID:     "u-1",
		Status:     domain.OrderStatusPending,
		TotalPrice: 2500,
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Mug", Price: 1000, Quantity: 2},
			{ProductID: "p-2", Name: "Tea", Price: 500, Quantity: 1},
		},
	}
}

// --- Producer ---

func TestProducer_OrderCreated(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())
	ctx := logger.WithCorrelationID(context.Background(), "corr-9")

	require.NoError(t, p.PublishOrderCreated(ctx, sampleOrder()))

	require.Len(t, pub.sent, 1)
	got := pub.sent[0]
	assert.Equal(t, "ecommerce.order.created", got.topic)
	assert.Equal(t, "order.created", got.event.EventType)
	assert.Equal(t, "o-1", got.event.AggregateID)
	assert.Equal(t, AggregateTypeOrder, got.event.AggregateType)
	assert.Equal(t, Source, got.event.Source)
	assert.Equal(t, "corr-9", got.event.CorrelationID)

	var data OrderCreatedData
	require.NoError(t, got.event.DecodeData(&data))
	assert.Equal(t, int64(2500), data.TotalPrice)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "p-1", data.Items[0].ProductID)
	assert.Equal(t, 2, data.Items[0].Quantity)
}

func TestProducer_Topics(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())
	ctx := context.Background()
	o := sampleOrder()
	rv := &domain.Review{ID: "r-1", ProductID: "p-1", UserID: "u-1", OrderID: "o-1", Rating: 4}

	require.NoError(t, p.PublishOrderStatusChanged(ctx, o, domain.OrderStatusShipped))
	require.NoError(t, p.PublishOrderDeleted(ctx, o, []string{"p-1"}))
	require.NoError(t, p.PublishReviewSubmitted(ctx, rv))
	require.NoError(t, p.PublishReviewDeleted(ctx, rv))
	require.NoError(t, p.PublishRatingUpdated(ctx, &domain.Product{ID: "p-1", AverageRating: 4, TotalReviews: 1}))

	topics := make([]string, len(pub.sent))
	for i, s := range pub.sent {
		topics[i] = s.topic
		assert.Empty(t, s.event.CorrelationID)
	}
	assert.Equal(t, []string{
		TopicOrderStatusChanged,
		TopicOrderDeleted,
		TopicReviewSubmitted,
		TopicReviewDeleted,
		TopicRatingUpdated,
	}, topics)

	var status OrderStatusChangedData
	require.NoError(t, pub.sent[0].event.DecodeData(&status))
	assert.Equal(t, OrderStatusChangedData{OrderID: "o-1", OldStatus: "shipped", NewStatus: "pending"}, status)

	var deleted OrderDeletedData
	require.NoError(t, pub.sent[1].event.DecodeData(&deleted))
	assert.Equal(t, []string{"p-1"}, deleted.RemovedReviewOf)

	var review ReviewData
	require.NoError(t, pub.sent[2].event.DecodeData(&review))
	assert.Equal(t, 4, review.Rating)

	var rating RatingUpdatedData
	require.NoError(t, pub.sent[4].event.DecodeData(&rating))
	assert.Equal(t, RatingUpdatedData{ProductID: "p-1", AverageRating: 4, TotalReviews: 1}, rating)
}

func TestProducer_PublishError(t *testing.T) {
	p := NewProducer(&recordingPublisher{err: errors.New("leader not available")}, newTestLogger())

	err := p.PublishReviewSubmitted(context.Background(), &domain.Review{ID: "r-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review.submitted")
}

func TestProducer_NilPublisherDropsEvents(t *testing.T) {
	p := NewProducer(nil, newTestLogger())
	assert.NoError(t, p.PublishOrderCreated(context.Background(), sampleOrder()))
}

// --- Fulfillment Consumer ---

func fulfillmentEvent(t *testing.T, aggregateID string, data any) *pkgkafka.Event {
	t.Helper()
	evt, err := pkgkafka.NewEvent("fulfillment.status_changed", aggregateID, AggregateTypeOrder, "fulfillment", data)
	require.NoError(t, err)
	return evt
}

func TestFulfillmentHandler_AppliesStatus(t *testing.T) {
	orders := new(mockStatusUpdater)
	orders.On("UpdateStatus", mock.Anything, "o-1", domain.OrderStatusShipped).
		Return(&domain.Order{ID: "o-1", Status: domain.OrderStatusShipped}, nil)

	h := FulfillmentHandler(orders, newTestLogger())
	err := h(context.Background(), fulfillmentEvent(t, "", FulfillmentStatusData{OrderID: "o-1", Status: "shipped"}))

	require.NoError(t, err)
	orders.AssertExpectations(t)
}

func TestFulfillmentHandler_FallsBackToAggregateID(t *testing.T) {
	orders := new(mockStatusUpdater)
	orders.On("UpdateStatus", mock.Anything, "o-2", domain.OrderStatusDelivered).
		Return(&domain.Order{ID: "o-2", Status: domain.OrderStatusDelivered}, nil)

	h := FulfillmentHandler(orders, newTestLogger())
	require.NoError(t, h(context.Background(), fulfillmentEvent(t, "o-2", map[string]string{"status": "delivered"})))
	orders.AssertExpectations(t)
}

func TestFulfillmentHandler_RejectsBadEvents(t *testing.T) {
	tests := []struct {
		name string
		evt  func(t *testing.T) *pkgkafka.Event
	}{
		{"unknown status", func(t *testing.T) *pkgkafka.Event {
			return fulfillmentEvent(t, "o-1", FulfillmentStatusData{Status: "lost"})
		}},
		{"missing order id", func(t *testing.T) *pkgkafka.Event {
			return fulfillmentEvent(t, "", FulfillmentStatusData{Status: "shipped"})
		}},
		{"undecodable payload", func(t *testing.T) *pkgkafka.Event {
			evt := fulfillmentEvent(t, "o-1", nil)
			evt.Data = json.RawMessage(`"not an object"`)
			return evt
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := new(mockStatusUpdater)
			h := FulfillmentHandler(orders, newTestLogger())
			assert.Error(t, h(context.Background(), tt.evt(t)))
			orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestFulfillmentHandler_PropagatesUpdateError(t *testing.T) {
	orders := new(mockStatusUpdater)
	orders.On("UpdateStatus", mock.Anything, "o-1", domain.OrderStatusPending).
		Return(nil, apperrors.Precondition("cannot move order from shipped to pending"))

	h := FulfillmentHandler(orders, newTestLogger())
	err := h(context.Background(), fulfillmentEvent(t, "o-1", FulfillmentStatusData{Status: "pending"}))

	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
}
