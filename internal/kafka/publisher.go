package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopbot/internal/cart"
	"shopbot/internal/config"
	"shopbot/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderPublisher публикует события жизненного цикла заказов.
type OrderPublisher struct {
	writer     MessageWriter
	tracer     trace.Tracer
	maxRetries int
	backoff    func(attempt int) time.Duration
}

var _ cart.Notifier = (*OrderPublisher)(nil)

func NewOrderPublisher(cfg config.KafkaConfig) *OrderPublisher {
	return newOrderPublisher(NewWriter(cfg.Brokers, cfg.OrdersTopic), cfg.PublishRetries)
}

func newOrderPublisher(w MessageWriter, retries int) *OrderPublisher {
	if retries < 1 {
		retries = 1
	}
	return &OrderPublisher{
		writer:     w,
		tracer:     otel.Tracer("kafka-publisher"),
		maxRetries: retries,
		backoff:    linearBackoff,
	}
}

// PublishOrderEvent пишет событие с ключом event_id; без id генерирует новый.
func (p *OrderPublisher) PublishOrderEvent(ctx context.Context, ev cart.Event) error {
	ctx, span := p.tracer.Start(ctx, "OrderPublisher.PublishOrderEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("type", ev.Type),
		attribute.Int64("order_id", ev.OrderID),
	)

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("сериализация события заказа: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "X-Event-Type", Value: []byte(ev.Type)},
		},
	}

	for i := 0; i < p.maxRetries; i++ {
		if err = p.writer.WriteMessages(ctx, msg); err == nil {
			logger.L.Debug("Событие заказа опубликовано",
				zap.String("event_id", ev.ID),
				zap.String("type", ev.Type))
			return nil
		}
		if i+1 < p.maxRetries {
			if sleepErr := sleep(ctx, p.backoff(i)); sleepErr != nil {
				break
			}
		}
	}
	span.RecordError(err)
	return fmt.Errorf("публикация события %s заказа %d: %w", ev.Type, ev.OrderID, err)
}

func (p *OrderPublisher) Close() error {
	return p.writer.Close()
}
