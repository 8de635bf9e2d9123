package database

import (
	"context"
	"fmt"
)

// GetSetting возвращает значение настройки или ErrNotFound.
func (s *sqlStorage) GetSetting(ctx context.Context, key string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetSetting")
	defer span.End()

	var value string
	if err := s.db.GetContext(ctx, &value, s.q(`SELECT value FROM settings WHERE key = ?`), key); err != nil {
		return "", s.fail("get_setting", fmt.Sprintf("настройка %q", key), err)
	}
	return value, nil
}

func (s *sqlStorage) SetSetting(ctx context.Context, key, value string) error {
	ctx, span := s.tracer.Start(ctx, "DB.SetSetting")
	defer span.End()

	query := s.q(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return s.fail("set_setting", fmt.Sprintf("не удалось сохранить настройку %q", key), err)
	}
	return nil
}

// EnsureSetting записывает значение, только если настройки ещё нет.
func (s *sqlStorage) EnsureSetting(ctx context.Context, key, value string) error {
	ctx, span := s.tracer.Start(ctx, "DB.EnsureSetting")
	defer span.End()

	query := s.q(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return s.fail("ensure_setting", fmt.Sprintf("не удалось сохранить настройку %q", key), err)
	}
	return nil
}
