// Package identity регистрирует участников диалога, подтверждает телефон
// одноразовым кодом и ведёт адресную книгу.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"shopbot/internal/apperr"
	"shopbot/internal/config"
	"shopbot/internal/database"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"
	"shopbot/internal/model"
	"shopbot/internal/sms"

	"go.uber.org/zap"
)

var (
	ErrInvalidPhone   = fmt.Errorf("%w: не удалось распознать номер телефона", apperr.ErrValidation)
	ErrInvalidAddress = fmt.Errorf("%w: адрес слишком короткий", apperr.ErrValidation)
	ErrOTPMismatch    = fmt.Errorf("%w: неверный код", apperr.ErrValidation)
	ErrOTPExpired     = fmt.Errorf("%w: срок действия кода истёк", apperr.ErrExpired)
	ErrNoPendingOTP   = fmt.Errorf("%w: нет ожидающего подтверждения", apperr.ErrConflict)
	ErrNotRegistered  = fmt.Errorf("%w: пользователь не зарегистрирован", apperr.ErrNotFound)
	// ErrSMSFailed - провайдер не доставил код. Временная ошибка.
	ErrSMSFailed = errors.New("не удалось отправить SMS")
)

const (
	minCodeLength = 4
	maxCodeLength = 8
)

// Store - то, что сервису нужно от хранилища.
type Store interface {
	database.UserStorage
	database.AddressStorage
}

// Service - регистрация, OTP и адреса.
type Service struct {
	store   Store
	sender  sms.Sender
	ttl     time.Duration
	codeLen int
	secret  string
	now     func() time.Time
}

type Option func(*Service)

// WithClock подменяет часы (для проверки истечения кода).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, sender sms.Sender, cfg config.OTPConfig, opts ...Option) *Service {
	s := &Service{
		store:   store,
		sender:  sender,
		ttl:     cfg.TTL,
		codeLen: clampCodeLength(cfg.CodeLength),
		secret:  cfg.Secret,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clampCodeLength(n int) int {
	return min(max(n, minCodeLength), maxCodeLength)
}

// NormalizePhone оставляет только цифры, заменяет ведущую 8 у 11-значных
// номеров на 7 и требует не меньше 10 цифр.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	if len(digits) < 10 {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}

// IsCode сообщает, похож ли ввод на код подтверждения (только цифры).
func IsCode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// User возвращает участника или ErrNotRegistered.
func (s *Service) User(ctx context.Context, principalID int64) (*model.User, error) {
	u, err := s.store.GetUserByPrincipal(ctx, principalID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	return u, err
}

// RegisterOrTouch создаёт неподтверждённого участника или обновляет имя.
func (s *Service) RegisterOrTouch(ctx context.Context, principalID int64, name string) (*model.User, error) {
	return s.store.UpsertUser(ctx, principalID, strings.TrimSpace(name), s.now())
}

// IssueOTP генерирует код, сохраняет его хэш, телефон и срок действия.
// Открытый код возвращается только вызывающему.
func (s *Service) IssueOTP(ctx context.Context, principalID int64, phone string) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", fmt.Errorf("ошибка генерации кода: %w", err)
	}
	if err := s.store.SetPhoneOTP(ctx, principalID, phone, s.hash(code), s.now().Add(s.ttl)); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", ErrNotRegistered
		}
		return "", err
	}
	return code, nil
}

// BeginPhoneVerification нормализует номер, выпускает код и отправляет его по SMS.
func (s *Service) BeginPhoneVerification(ctx context.Context, principalID int64, raw string) (string, error) {
	phone, err := NormalizePhone(raw)
	if err != nil {
		return "", err
	}

	code, err := s.IssueOTP(ctx, principalID, phone)
	if err != nil {
		return "", err
	}

	ok, err := s.sender.Send(ctx, phone, "Ваш код подтверждения: "+code)
	if err != nil {
		metrics.OTPResults.WithLabelValues("sms_failed").Inc()
		return "", fmt.Errorf("%w: %w", ErrSMSFailed, err)
	}
	if !ok {
		metrics.OTPResults.WithLabelValues("sms_failed").Inc()
		return "", ErrSMSFailed
	}

	metrics.OTPResults.WithLabelValues("issued").Inc()
	return phone, nil
}

// VerifyOTP проверяет код. Неверный код попытку не сжигает; успешная
// проверка снимает код условным обновлением, поэтому второй успех
// получает ErrNoPendingOTP.
func (s *Service) VerifyOTP(ctx context.Context, principalID int64, code string) error {
	u, err := s.store.GetUserByPrincipal(ctx, principalID)
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrNoPendingOTP
	}
	if err != nil {
		return err
	}

	if !u.HasPendingOTP() {
		metrics.OTPResults.WithLabelValues("no_pending").Inc()
		return ErrNoPendingOTP
	}
	if u.OTPExpiresAt == nil || s.now().After(*u.OTPExpiresAt) {
		metrics.OTPResults.WithLabelValues("expired").Inc()
		return ErrOTPExpired
	}

	digest := s.hash(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(digest), []byte(*u.OTPCodeHash)) != 1 {
		metrics.OTPResults.WithLabelValues("mismatch").Inc()
		return ErrOTPMismatch
	}

	ok, err := s.store.MarkVerified(ctx, principalID, digest)
	if err != nil {
		return err
	}
	if !ok {
		metrics.OTPResults.WithLabelValues("no_pending").Inc()
		return ErrNoPendingOTP
	}

	metrics.OTPResults.WithLabelValues("verified").Inc()
	logger.L.Info("Телефон подтверждён", zap.Int64("principal_id", principalID))
	return nil
}

func (s *Service) hash(code string) string {
	sum := sha256.Sum256([]byte(code + "|" + s.secret))
	return hex.EncodeToString(sum[:])
}

func (s *Service) newCode() (string, error) {
	ten := big.NewInt(10)
	var b strings.Builder
	for i := 0; i < s.codeLen; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
