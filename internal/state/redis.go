package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopbot/internal/config"
	"shopbot/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const stateField = "state"

// redisStore хранит диалог в хэше dialog:<id>: поле state и по JSON-полю на секцию.
type redisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{redis: client, ttl: ttl}
}

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, cfg config.StateConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к redis: %w", err)
	}
	logger.L.Info("redis подключен", zap.String("addr", cfg.RedisAddr))
	return client, nil
}

func (r *redisStore) key(principalID int64) string {
	return fmt.Sprintf("dialog:%d", principalID)
}

func (r *redisStore) SetState(ctx context.Context, principalID int64, st State) error {
	return r.write(ctx, principalID, map[string]any{stateField: string(st)})
}

func (r *redisStore) GetState(ctx context.Context, principalID int64) (State, error) {
	val, err := r.redis.HGet(ctx, r.key(principalID), stateField).Result()
	if errors.Is(err, redis.Nil) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, fmt.Errorf("ошибка чтения состояния: %w", err)
	}
	return State(val), nil
}

func (r *redisStore) UpdateScratch(ctx context.Context, principalID int64, patch Scratch) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("ошибка сериализации черновика: %w", err)
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return fmt.Errorf("ошибка сериализации черновика: %w", err)
	}
	if len(sections) == 0 {
		return nil
	}

	fields := make(map[string]any, len(sections))
	for name, v := range sections {
		fields[name] = string(v)
	}
	return r.write(ctx, principalID, fields)
}

func (r *redisStore) GetScratch(ctx context.Context, principalID int64) (Scratch, error) {
	all, err := r.redis.HGetAll(ctx, r.key(principalID)).Result()
	if err != nil {
		return Scratch{}, fmt.Errorf("ошибка чтения черновика: %w", err)
	}

	sc, err := decodeScratch(all)
	if err != nil {
		// Испорченный черновик равносилен потерянному: диалог начнётся заново.
		logger.L.Warn("Не удалось разобрать черновик диалога", zap.Int64("principal_id", principalID), zap.Error(err))
		return Scratch{}, nil
	}
	return sc, nil
}

func decodeScratch(fields map[string]string) (Scratch, error) {
	sections := make(map[string]json.RawMessage, len(fields))
	for name, v := range fields {
		if name == stateField {
			continue
		}
		sections[name] = json.RawMessage(v)
	}

	var sc Scratch
	raw, err := json.Marshal(sections)
	if err != nil {
		return Scratch{}, err
	}
	if err := json.Unmarshal(raw, &sc); err != nil {
		return Scratch{}, err
	}
	return sc, nil
}

func (r *redisStore) Clear(ctx context.Context, principalID int64) error {
	if err := r.redis.Del(ctx, r.key(principalID)).Err(); err != nil {
		return fmt.Errorf("ошибка очистки диалога: %w", err)
	}
	return nil
}

// write записывает поля и продлевает TTL в одной транзакции MULTI/EXEC.
func (r *redisStore) write(ctx context.Context, principalID int64, fields map[string]any) error {
	key := r.key(principalID)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка записи диалога: %w", err)
	}
	return nil
}
