package database

import (
	"context"
	"time"

	"shopbot/internal/model"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, principal_id, name, phone, is_verified, otp_code_hash, otp_expires_at, created_at`

// GetUserByPrincipal возвращает пользователя по внешнему идентификатору.
func (s *sqlStorage) GetUserByPrincipal(ctx context.Context, principalID int64) (*model.User, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetUserByPrincipal")
	defer span.End()

	var u model.User
	query := s.q(`SELECT ` + userColumns + ` FROM users WHERE principal_id = ?`)
	if err := s.db.GetContext(ctx, &u, query, principalID); err != nil {
		return nil, s.fail("get_user", "не удалось получить пользователя", err)
	}
	return &u, nil
}

// UpsertUser создаёт неподтверждённого пользователя с пустым телефоном
// или обновляет только имя у существующего.
func (s *sqlStorage) UpsertUser(ctx context.Context, principalID int64, name string, now time.Time) (*model.User, error) {
	ctx, span := s.tracer.Start(ctx, "DB.UpsertUser")
	defer span.End()

	query := s.q(`
        INSERT INTO users (principal_id, name, phone, is_verified, created_at)
        VALUES (?, ?, '', ?, ?)
        ON CONFLICT (principal_id) DO UPDATE SET name = excluded.name`)
	if _, err := s.db.ExecContext(ctx, query, principalID, name, false, now); err != nil {
		return nil, s.fail("upsert_user", "не удалось сохранить пользователя", err)
	}
	return s.GetUserByPrincipal(ctx, principalID)
}

// SetPhoneOTP записывает телефон и новый OTP, сбрасывая подтверждение.
func (s *sqlStorage) SetPhoneOTP(ctx context.Context, principalID int64, phone, codeHash string, expiresAt time.Time) error {
	ctx, span := s.tracer.Start(ctx, "DB.SetPhoneOTP")
	defer span.End()

	query := s.q(`
        UPDATE users
        SET phone = ?, otp_code_hash = ?, otp_expires_at = ?, is_verified = ?
        WHERE principal_id = ?`)
	res, err := s.db.ExecContext(ctx, query, phone, codeHash, expiresAt, false, principalID)
	return s.exactlyOne("set_otp", "не удалось сохранить код подтверждения", res, err)
}

func (s *sqlStorage) MarkVerified(ctx context.Context, principalID int64, codeHash string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "DB.MarkVerified")
	defer span.End()

	query := s.q(`
        UPDATE users
        SET is_verified = ?, otp_code_hash = NULL, otp_expires_at = NULL
        WHERE principal_id = ? AND otp_code_hash = ?`)
	res, err := s.db.ExecContext(ctx, query, true, principalID, codeHash)
	if err != nil {
		return false, s.fail("mark_verified", "не удалось подтвердить телефон", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("mark_verified", "не удалось подтвердить телефон", err)
	}
	return n == 1, nil
}

// GetDefaultAddress возвращает самую свежую запись с признаком по умолчанию.
func (s *sqlStorage) GetDefaultAddress(ctx context.Context, userID int64) (*model.Address, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetDefaultAddress")
	defer span.End()

	var a model.Address
	query := s.q(`
        SELECT id, user_id, address_line, apt, entrance, floor, comment, is_default
        FROM addresses
        WHERE user_id = ? AND is_default = ?
        ORDER BY id DESC
        LIMIT 1`)
	if err := s.db.GetContext(ctx, &a, query, userID, true); err != nil {
		return nil, s.fail("get_address", "не удалось получить адрес", err)
	}
	return &a, nil
}

// SaveDefaultAddress добавляет адрес в журнал и переносит на него признак по умолчанию.
func (s *sqlStorage) SaveDefaultAddress(ctx context.Context, userID int64, addr model.Address) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.SaveDefaultAddress")
	defer span.End()

	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		unset := s.q(`UPDATE addresses SET is_default = ? WHERE user_id = ? AND is_default = ?`)
		if _, err := tx.ExecContext(ctx, unset, false, userID, true); err != nil {
			return s.fail("save_address", "ошибка сброса адреса по умолчанию", err)
		}

		insert := s.q(`
            INSERT INTO addresses (user_id, address_line, apt, entrance, floor, comment, is_default)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            RETURNING id`)
		if err := tx.GetContext(ctx, &id, insert, userID, addr.Line, addr.Apt, addr.Entrance, addr.Floor, addr.Comment, true); err != nil {
			return s.fail("save_address", "ошибка сохранения адреса", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
