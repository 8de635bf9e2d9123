package cart

import (
	"context"
	"time"

	"shopbot/internal/logger"
	"shopbot/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventOrderConfirmed     = "order_confirmed"
	EventOrderStatusChanged = "order_status_changed"
)

// Event - событие жизненного цикла заказа для внешних потребителей.
type Event struct {
	ID           string             `json:"event_id"`
	Type         string             `json:"type"`
	OrderID      int64              `json:"order_id"`
	UserID       int64              `json:"user_id"`
	Status       model.Status       `json:"status"`
	DeliveryType model.DeliveryKind `json:"delivery_type,omitempty"`
	TotalMinor   int64              `json:"total_minor"`
	At           time.Time          `json:"at"`
}

//go:generate mockgen -source=events.go -destination=./mocks/notifier_mock.go -package=mocks Notifier

// Notifier публикует события заказов.
type Notifier interface {
	PublishOrderEvent(ctx context.Context, ev Event) error
}

type nopNotifier struct{}

func (nopNotifier) PublishOrderEvent(context.Context, Event) error { return nil }

// notify не влияет на результат операции: заказ уже сохранён.
func (e *Engine) notify(ctx context.Context, eventType string, o *model.Order) {
	ev := Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		OrderID:      o.ID,
		UserID:       o.UserID,
		Status:       o.Status,
		DeliveryType: o.DeliveryType,
		TotalMinor:   o.TotalMinor,
		At:           e.now(),
	}
	if err := e.notifier.PublishOrderEvent(ctx, ev); err != nil {
		logger.L.Error("Не удалось опубликовать событие заказа",
			zap.String("type", eventType),
			zap.Int64("order_id", o.ID),
			zap.Error(err))
	}
}
