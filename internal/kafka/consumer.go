package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shopbot/internal/apperr"
	"shopbot/internal/bot"
	"shopbot/internal/config"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Envelope - ответы на одно событие в топике ответов.
type Envelope struct {
	PrincipalID int64       `json:"principal_id"`
	Replies     []bot.Reply `json:"replies"`
	At          time.Time   `json:"at"`
}

// Consumer читает события участников, передает их диспетчеру
// и публикует ответы.
type Consumer struct {
	reader      MessageReader
	replyWriter MessageWriter
	dlqWriter   MessageWriter // Продюсер для отправки "битых" сообщений в DLQ
	handler     bot.Handler
	tracer      trace.Tracer
	maxRetries  int
	backoff     func(attempt int) time.Duration
	now         func() time.Time
}

// NewConsumer создает новый экземпляр Consumer.
func NewConsumer(cfg config.KafkaConfig, handler bot.Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.UpdatesTopic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		// Коммиты вручную после обработки.
	})

	return newConsumer(reader,
		NewWriter(cfg.Brokers, cfg.RepliesTopic),
		NewWriter(cfg.Brokers, cfg.DLQTopic),
		handler, cfg.PublishRetries)
}

func newConsumer(reader MessageReader, replies, dlq MessageWriter, handler bot.Handler, retries int) *Consumer {
	if retries < 1 {
		retries = 1
	}
	return &Consumer{
		reader:      reader,
		replyWriter: replies,
		dlqWriter:   dlq,
		handler:     handler,
		tracer:      otel.Tracer("kafka-consumer"),
		maxRetries:  retries,
		backoff:     linearBackoff,
		now:         time.Now,
	}
}

// Run запускает цикл чтения сообщений до отмены ctx.
func (c *Consumer) Run(ctx context.Context) error {
	logger.L.Info("Kafka-консюмер запущен")
	defer func() {
		for name, closer := range map[string]interface{ Close() error }{
			"reader": c.reader, "replies": c.replyWriter, "dlq": c.dlqWriter,
		} {
			if err := closer.Close(); err != nil {
				logger.L.Warn("Ошибка закрытия Kafka-клиента", zap.String("client", name), zap.Error(err))
			}
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.L.Info("Kafka-консюмер останавливается")
				return nil
			}
			logger.L.Error("Ошибка чтения сообщения из Kafka", zap.Error(err))
			if err := sleep(ctx, time.Second); err != nil {
				return nil
			}
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			// Ошибка возможна только при остановке. Офсет не коммитим, после
			// перезапуска группа прочитает сообщение заново.
			logger.L.Info("Обработка прервана остановкой, сообщение не закоммичено",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.L.Error("Ошибка коммита сообщения", zap.Error(err))
		}
	}
}

// processMessage возвращает error, только если обработку прервала отмена ctx.
// Всё, что не удалось обработать или доставить, уходит в DLQ и коммитится.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	ctx, span := c.tracer.Start(ctx, "Consumer.processMessage")
	defer span.End()

	var ev bot.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.sendToDLQ(ctx, msg, "json_unmarshal_error", err)
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_validation").Inc()
		return nil
	}

	var (
		replies []bot.Reply
		err     error
	)
	for i := 0; i < c.maxRetries; i++ {
		replies, err = c.handler.Handle(ctx, ev)
		if err == nil || apperr.KindOf(err) == apperr.KindValidation {
			break
		}
		logger.L.Warn("Ошибка обработки события",
			zap.Int("attempt", i+1),
			zap.Int("max", c.maxRetries),
			zap.Error(err))
		if i+1 < c.maxRetries {
			if sleepErr := sleep(ctx, c.backoff(i)); sleepErr != nil {
				return sleepErr
			}
		}
	}
	if err != nil {
		reason := "handler_error"
		status := "dlq_handler_error"
		if apperr.KindOf(err) == apperr.KindValidation {
			reason, status = "validation_error", "dlq_validation"
		}
		span.RecordError(err)
		c.sendToDLQ(ctx, msg, reason, err)
		metrics.KafkaMessagesProcessed.WithLabelValues(status).Inc()
		return nil
	}

	if len(replies) > 0 {
		if err := c.publishReplies(ctx, ev.PrincipalID, replies); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Событие уже применено, повторно его не обрабатываем.
			logger.L.Error("Ответы участнику потеряны, событие отправлено в DLQ",
				zap.Int64("principal_id", ev.PrincipalID),
				zap.Int("replies", len(replies)),
				zap.Error(err))
			span.RecordError(err)
			c.sendToDLQ(ctx, msg, "reply_publish_error", err)
			metrics.KafkaMessagesProcessed.WithLabelValues("reply_failed").Inc()
			return nil
		}
	}

	metrics.KafkaMessagesProcessed.WithLabelValues("success").Inc()
	return nil
}

func (c *Consumer) publishReplies(ctx context.Context, principalID int64, replies []bot.Reply) error {
	ctx, span := c.tracer.Start(ctx, "Consumer.publishReplies")
	defer span.End()

	body, err := json.Marshal(Envelope{PrincipalID: principalID, Replies: replies, At: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("сериализация ответов: %w", err)
	}
	reply := kafka.Message{
		Key:   []byte(strconv.FormatInt(principalID, 10)),
		Value: body,
	}

	for i := 0; i < c.maxRetries; i++ {
		err = c.replyWriter.WriteMessages(ctx, reply)
		if err == nil {
			return nil
		}
		logger.L.Warn("Ошибка отправки ответа",
			zap.Int64("principal_id", principalID),
			zap.Int("attempt", i+1),
			zap.Error(err))
		if i+1 < c.maxRetries {
			if sleepErr := sleep(ctx, c.backoff(i)); sleepErr != nil {
				return errors.Join(err, sleepErr)
			}
		}
	}
	return fmt.Errorf("отправка ответов участнику %d: %w", principalID, err)
}

// sendToDLQ отправляет "битое" сообщение в DLQ топик.
func (c *Consumer) sendToDLQ(ctx context.Context, originalMsg kafka.Message, reason string, procErr error) {
	ctx, span := c.tracer.Start(ctx, "Consumer.sendToDLQ")
	defer span.End()

	err := c.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   originalMsg.Key,
		Value: originalMsg.Value,
		Headers: []kafka.Header{
			{Key: "X-Original-Topic", Value: []byte(originalMsg.Topic)},
			{Key: "X-Error-Reason", Value: []byte(reason)},
			{Key: "X-Error-Details", Value: []byte(procErr.Error())},
		},
	})
	if err != nil {
		logger.L.Error("КРИТИЧНО: не удалось отправить сообщение в DLQ",
			zap.String("key", string(originalMsg.Key)),
			zap.Error(err))
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_failed_write").Inc()
		return
	}
	logger.L.Info("Сообщение отправлено в DLQ",
		zap.String("key", string(originalMsg.Key)),
		zap.String("reason", reason))
}
