package main

import (
	"context"
	"fmt"

	"shopbot/internal/admin"
	"shopbot/internal/bot"
	"shopbot/internal/cart"
	"shopbot/internal/catalog"
	"shopbot/internal/config"
	"shopbot/internal/database"
	"shopbot/internal/identity"
	"shopbot/internal/kafka"
	"shopbot/internal/logger"
	"shopbot/internal/sms"
	"shopbot/internal/state"

	"go.uber.org/zap"
)

// core - хранилище и каталог, нужные всем командам.
type core struct {
	cfg     *config.Config
	storage database.Storage
	catalog *catalog.Service
	loader  *catalog.Loader
}

func newCore(cfg *config.Config) (*core, error) {
	storage, err := database.New(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	svc := catalog.New(storage, cfg.Cache.Size)
	return &core{
		cfg:     cfg,
		storage: storage,
		catalog: svc,
		loader:  catalog.NewLoader(storage, svc, cfg.Catalog),
	}, nil
}

func (c *core) Close() {
	if err := c.storage.Close(); err != nil {
		logger.L.Warn("Ошибка закрытия хранилища", zap.Error(err))
	}
}

// service - полностью собранный бот с транспортами.
type service struct {
	*core
	dispatcher *bot.Dispatcher
	publisher  *kafka.OrderPublisher
	closers    []func() error
}

func newService(ctx context.Context, cfg *config.Config) (*service, error) {
	c, err := newCore(cfg)
	if err != nil {
		return nil, err
	}
	s := &service{core: c}

	states, err := s.newStateStore(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	sender, err := sms.New(cfg.SMS)
	if err != nil {
		s.Close()
		return nil, err
	}
	ident := identity.New(c.storage, sender, cfg.OTP)

	var opts []cart.Option
	if cfg.Kafka.Enabled {
		s.publisher = kafka.NewOrderPublisher(cfg.Kafka)
		s.closers = append(s.closers, s.publisher.Close)
		opts = append(opts, cart.WithNotifier(s.publisher))
	}
	engine := cart.New(c.storage, cfg.CourierFeeMinor(), opts...)
	if err := engine.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ошибка инициализации тарифа: %w", err)
	}

	admins := admin.NewAuthorizer(cfg.Bot.AdminIDs, c.storage, c.catalog, engine, c.loader)
	s.dispatcher = bot.New(bot.Deps{
		States:   states,
		Identity: ident,
		Catalog:  c.catalog,
		Orders:   engine,
		Admins:   admins,
		PageSize: cfg.Bot.PageSize,
	})
	return s, nil
}

func (s *service) newStateStore(ctx context.Context) (state.Store, error) {
	switch s.cfg.State.Backend {
	case "redis":
		client, err := state.NewRedisClient(ctx, s.cfg.State)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		return state.NewRedisStore(client, s.cfg.State.TTL), nil
	case "memory", "":
		return state.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище состояний %q", s.cfg.State.Backend)
	}
}

func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.L.Warn("Ошибка освобождения ресурса", zap.Error(err))
		}
	}
	s.core.Close()
}
