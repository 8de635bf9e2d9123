// Package apperr задаёт таксономию ошибок, общую для всех компонентов.
//
// Доменные ошибки оборачивают один из базовых видов через %w, поэтому
// вызывающий код может проверять как конкретную ошибку, так и её вид:
//
//	errors.Is(err, cart.ErrEmptyCart) // конкретная ошибка
//	errors.Is(err, apperr.ErrConflict) // её вид
package apperr

import "errors"

var (
	// ErrValidation - некорректный ввод пользователя, шаг диалога повторяется.
	ErrValidation = errors.New("некорректный ввод")
	// ErrForbidden - операция администратора без прав.
	ErrForbidden = errors.New("нет доступа")
	// ErrNotFound - товар, заказ или пользователь не найден.
	ErrNotFound = errors.New("не найдено")
	// ErrConflict - нарушение уникальности или недопустимое состояние.
	ErrConflict = errors.New("конфликт")
	// ErrExpired - истёк срок действия (OTP).
	ErrExpired = errors.New("срок действия истёк")
)

// Kind - вид ошибки для маппинга в ответ пользователю.
type Kind int

const (
	KindTransient Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindConflict
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	default:
		return "transient"
	}
}

// KindOf определяет вид ошибки. Всё, что не обёрнуто в известный вид,
// считается временной ошибкой инфраструктуры.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrExpired):
		return KindExpired
	default:
		return KindTransient
	}
}
