package identity

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"shopbot/internal/apperr"
	"shopbot/internal/model"
	"shopbot/internal/validator"
)

// MinAddressLineLength - минимальная длина строки адреса в символах.
const MinAddressLineLength = 5

// Profile - данные экрана "Мой профиль".
type Profile struct {
	User    model.User
	Address *model.Address
}

// ValidAddressLine проверяет первую строку адреса.
func ValidAddressLine(line string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(line)) >= MinAddressLineLength
}

// SaveDefaultAddress добавляет адрес и делает его адресом по умолчанию.
func (s *Service) SaveDefaultAddress(ctx context.Context, principalID int64, addr model.Address) (*model.Address, error) {
	addr.Line = strings.TrimSpace(addr.Line)
	if err := validator.ValidateStruct(addr); err != nil {
		return nil, ErrInvalidAddress
	}

	u, err := s.User(ctx, principalID)
	if err != nil {
		return nil, err
	}

	id, err := s.store.SaveDefaultAddress(ctx, u.ID, addr)
	if err != nil {
		return nil, err
	}
	addr.ID = id
	addr.UserID = u.ID
	addr.IsDefault = true
	return &addr, nil
}

// DefaultAddress возвращает текущий адрес по умолчанию или nil, если его нет.
func (s *Service) DefaultAddress(ctx context.Context, principalID int64) (*model.Address, error) {
	u, err := s.User(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.defaultAddress(ctx, u.ID)
}

func (s *Service) defaultAddress(ctx context.Context, userID int64) (*model.Address, error) {
	addr, err := s.store.GetDefaultAddress(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return addr, nil
}

func (s *Service) Profile(ctx context.Context, principalID int64) (*Profile, error) {
	u, err := s.User(ctx, principalID)
	if err != nil {
		return nil, err
	}
	addr, err := s.defaultAddress(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *u, Address: addr}, nil
}
