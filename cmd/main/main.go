package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopbot/internal/api"
	"shopbot/internal/config"
	"shopbot/internal/database"
	"shopbot/internal/generator"
	"shopbot/internal/kafka"
	"shopbot/internal/logger"
	"shopbot/internal/tracing"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func main() {
	cliApp := &cli.App{
		Name:  "shopbot",
		Usage: "диалоговый бот для приема заказов",
		Before: func(*cli.Context) error {
			logger.Init(config.Get().Log.Level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "запустить HTTP-сервер и Kafka-консюмер",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "sync", Usage: "синхронизировать каталог перед запуском"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "применить миграции БД",
				Action: migrateDB,
			},
			{
				Name:   "catalog-sync",
				Usage:  "загрузить каталог из URL или файла",
				Action: catalogSync,
			},
			{
				Name:  "seed",
				Usage: "сгенерировать тестовый каталог",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "categories", Value: 5},
					&cli.IntFlag{Name: "items", Value: 12, Usage: "товаров в категории"},
					&cli.Int64Flag{Name: "seed", Usage: "seed генератора, 0 - случайный"},
					&cli.StringFlag{Name: "out", Usage: "записать YAML в файл вместо БД"},
				},
				Action: seed,
			},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		logger.L.Fatal("Ошибка выполнения команды", zap.Error(err))
	}
}

func serve(c *cli.Context) error {
	cfg := config.Get()
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	shutdownTracing, err := tracing.Init("shopbot", cfg.Tracing)
	if err != nil {
		logger.L.Warn("Трассировка отключена", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.L.Error("Ошибка остановки TracerProvider", zap.Error(err))
		}
	}()

	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if c.Bool("sync") {
		if _, err := svc.loader.Load(ctx); err != nil {
			logger.L.Warn("Не удалось синхронизировать каталог", zap.Error(err))
		}
	}
	if err := svc.catalog.Reload(ctx); err != nil {
		logger.L.Warn("Ошибка при прогреве кэша каталога", zap.Error(err))
	}

	eg, groupCtx := errgroup.WithContext(ctx)

	server := api.NewServer(cfg.HTTP.Port, svc.dispatcher, svc.storage)
	eg.Go(func() error {
		return server.Run(groupCtx)
	})

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, svc.dispatcher)
		eg.Go(func() error {
			return consumer.Run(groupCtx)
		})
	}

	logger.L.Info("Сервис запущен",
		zap.String("port", cfg.HTTP.Port),
		zap.String("db", cfg.Database.Driver),
		zap.String("state", cfg.State.Backend),
		zap.Bool("kafka", cfg.Kafka.Enabled))

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.L.Info("Сервис успешно остановлен")
	return nil
}

func migrateDB(*cli.Context) error {
	cfg := config.Get()
	return database.Migrate(cfg.Database.Driver, cfg.Database.URL)
}

func catalogSync(c *cli.Context) error {
	co, err := newCore(config.Get())
	if err != nil {
		return err
	}
	defer co.Close()

	res, err := co.loader.Load(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Каталог загружен из %s: категорий %d, товаров %d\n", res.Source, res.Categories, res.Products)
	return nil
}

func seed(c *cli.Context) error {
	doc := generator.New(c.Int64("seed")).Catalog(c.Int("categories"), c.Int("items"))

	if out := c.String("out"); out != "" {
		body, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return fmt.Errorf("ошибка записи каталога: %w", err)
		}
		fmt.Printf("Каталог записан в %s\n", out)
		return nil
	}

	co, err := newCore(config.Get())
	if err != nil {
		return err
	}
	defer co.Close()

	res, err := co.loader.Import(c.Context, "generator", &doc)
	if err != nil {
		return err
	}
	fmt.Printf("Сгенерировано категорий %d, товаров %d\n", res.Categories, res.Products)
	return nil
}
