package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"shopbot/internal/bot"
	"shopbot/internal/config"
	"shopbot/internal/generator"
	"shopbot/internal/kafka"
	"shopbot/internal/logger"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// Producer отправляет в топик обновлений сценарии и случайные события участников.
type Producer struct {
	writer kafka.MessageWriter
	gen    *generator.Generator
}

func NewProducer(writer kafka.MessageWriter, seed int64) *Producer {
	return &Producer{writer: writer, gen: generator.New(seed)}
}

func (p *Producer) send(ctx context.Context, ev bot.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(strconv.FormatInt(ev.PrincipalID, 10)),
		Value: body,
		Headers: []kafkago.Header{
			{Key: "X-Message-Id", Value: []byte(uuid.NewString())},
		},
	})
}

// Run отправляет события с заданным интервалом до отмены ctx.
// Первые principals событий - полные сценарии участников, дальше случайный поток.
func (p *Producer) Run(ctx context.Context, interval time.Duration, principals int64) {
	logger.L.Info("Продюсер запущен. Нажмите CTRL+C для остановки.")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var queue []bot.Event
	for id := int64(1); id <= principals; id++ {
		queue = append(queue, p.gen.Script(id)...)
	}

	for {
		select {
		case <-ctx.Done():
			logger.L.Info("Продюсер останавливается")
			return
		case <-ticker.C:
			var ev bot.Event
			if len(queue) > 0 {
				ev, queue = queue[0], queue[1:]
			} else {
				ev = p.gen.Event(principals)
			}
			if err := p.send(ctx, ev); err != nil {
				logger.L.Error("Ошибка отправки события", zap.Error(err))
				continue
			}
			logger.L.Info("Отправлено событие",
				zap.Int64("principal_id", ev.PrincipalID),
				zap.String("kind", string(ev.Kind)))
		}
	}
}

func main() {
	app := &cli.App{
		Name:  "producer",
		Usage: "симулятор входящих событий бота",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Value: 2 * time.Second},
			&cli.Int64Flag{Name: "principals", Value: 5, Usage: "число симулируемых участников"},
			&cli.Int64Flag{Name: "seed"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Get()
			logger.Init(cfg.Log.Level)

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.UpdatesTopic)
			defer func() {
				if err := writer.Close(); err != nil {
					logger.L.Warn("Ошибка закрытия Kafka writer", zap.Error(err))
				}
			}()

			NewProducer(writer, c.Int64("seed")).Run(ctx, c.Duration("interval"), c.Int64("principals"))
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.L.Fatal("Продюсер завершился с ошибкой", zap.Error(err))
	}
}
