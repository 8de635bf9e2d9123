package model

import "time"

// User - участник диалога (principal), идентифицируемый внешним PrincipalID.
type User struct {
	ID           int64      `json:"id" db:"id"`
	PrincipalID  int64      `json:"principal_id" db:"principal_id"`
	Name         string     `json:"name" db:"name"`
	Phone        string     `json:"phone" db:"phone"`
	IsVerified   bool       `json:"is_verified" db:"is_verified"`
	OTPCodeHash  *string    `json:"-" db:"otp_code_hash"`
	OTPExpiresAt *time.Time `json:"-" db:"otp_expires_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// HasPendingOTP сообщает, ожидает ли пользователь ввода кода.
func (u User) HasPendingOTP() bool {
	return u.OTPCodeHash != nil && *u.OTPCodeHash != ""
}

// Address - строка журнала адресов. Записи только добавляются,
// текущий адрес по умолчанию - самая свежая запись с IsDefault.
type Address struct {
	ID        int64   `json:"-" db:"id"`
	UserID    int64   `json:"-" db:"user_id"`
	Line      string  `json:"address_line" db:"address_line" validate:"required,min=5"`
	Apt       *string `json:"apt" db:"apt"`
	Entrance  *string `json:"entrance" db:"entrance"`
	Floor     *string `json:"floor" db:"floor"`
	Comment   *string `json:"comment" db:"comment"`
	IsDefault bool    `json:"-" db:"is_default"`
}
