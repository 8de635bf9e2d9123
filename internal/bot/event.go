package bot

import (
	"fmt"

	"shopbot/internal/apperr"
	"shopbot/internal/validator"
)

// Kind - тип входящего события.
type Kind string

const (
	KindText    Kind = "text"
	KindButton  Kind = "button"
	KindPhoto   Kind = "photo"
	KindContact Kind = "contact"
)

// ErrInvalidEvent - событие не прошло валидацию и не обрабатывается.
var ErrInvalidEvent = fmt.Errorf("%w: некорректное событие", apperr.ErrValidation)

// Event - входящее событие от транспорта (HTTP или Kafka).
type Event struct {
	PrincipalID  int64  `json:"principal_id" validate:"required,gt=0"`
	Kind         Kind   `json:"kind" validate:"required,oneof=text button photo contact"`
	Text         string `json:"text,omitempty"`
	Button       string `json:"button,omitempty" validate:"required_if=Kind button"`
	Photo        string `json:"photo,omitempty" validate:"required_if=Kind photo"`
	ContactPhone string `json:"contact_phone,omitempty" validate:"required_if=Kind contact"`
	Name         string `json:"name,omitempty"`
}

// Validate проверяет обязательные поля для своего типа события.
func (e Event) Validate() error {
	if err := validator.ValidateStruct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Button - inline-кнопка: подпись и данные, которые вернутся событием button.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Reply - ответ участнику. Menu - постоянная клавиатура, Buttons - inline.
type Reply struct {
	Text           string     `json:"text,omitempty"`
	Photo          string     `json:"photo,omitempty"`
	Alert          bool       `json:"alert,omitempty"`
	Buttons        [][]Button `json:"buttons,omitempty"`
	Menu           [][]string `json:"menu,omitempty"`
	RequestContact bool       `json:"request_contact,omitempty"`
}

func text(s string) Reply {
	return Reply{Text: s}
}

func alert(s string) Reply {
	return Reply{Text: s, Alert: true}
}
