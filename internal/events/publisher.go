// Package events publishes order lifecycle events for downstream consumers
// (fulfilment, analytics). Publishing is best-effort: a broker outage must
// never stall order placement, so writes go through a circuit breaker and
// failures are surfaced to the caller only as an error to log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const orderTopic = "order-events"

type orderPlacedPayload struct {
	OrderID string             `json:"order_id"`
	UserID  string             `json:"user_id"`
	Items   []domain.OrderItem `json:"items"`
	Total   float64            `json:"total"`
}

type Publisher struct {
	writer  *kafka.Writer
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
}

func NewPublisher(log *zap.Logger, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  orderTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "kafka-order-events",
		Timeout: 30 * time.Second,
	})

	return &Publisher{writer: w, breaker: cb, log: log}
}

// OrderPlaced publishes one order-placed event keyed by user id.
func (p *Publisher) OrderPlaced(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(orderPlacedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Items:   order.Items,
		Total:   order.Total,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(order.UserID),
			Value: payload,
		})
	})
	if err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}

	p.log.Info("published order event", zap.String("order_id", order.ID))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
