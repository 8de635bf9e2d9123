// Package state хранит состояние диалогов: тег текущего шага и черновики (scratch).
package state

import (
	"context"

	"shopbot/internal/model"
)

// State - тег шага диалога. Пустой тег - вне диалога.
type State string

const (
	StateNone State = ""

	RegName  State = "reg:name"
	RegPhone State = "reg:phone"
	RegOTP   State = "reg:otp"

	AddrLine     State = "addr:line"
	AddrApt      State = "addr:apt"
	AddrEntrance State = "addr:entrance"
	AddrFloor    State = "addr:floor"
	AddrComment  State = "addr:comment"

	AdmTitle State = "adm:title"
	AdmPrice State = "adm:price"
	AdmPhoto State = "adm:photo"

	AdmEditTitle State = "adm:edit:title"
	AdmEditPrice State = "adm:edit:price"
	AdmEditPhoto State = "adm:edit:photo"
)

// Scratch - черновики диалогов. Каждая секция сливается целиком:
// непустая секция патча заменяет сохранённую.
type Scratch struct {
	Registration *RegistrationDraft `json:"registration,omitempty"`
	Address      *AddressDraft      `json:"address,omitempty"`
	Product      *ProductDraft      `json:"product,omitempty"`
	Edit         *EditTarget        `json:"edit,omitempty"`
	Checkout     *CheckoutDraft     `json:"checkout,omitempty"`
}

type RegistrationDraft struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AddressDraft - адрес, собираемый по шагам. nil - поле пропущено ("нет").
type AddressDraft struct {
	Line     string  `json:"line"`
	Apt      *string `json:"apt,omitempty"`
	Entrance *string `json:"entrance,omitempty"`
	Floor    *string `json:"floor,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

func (d AddressDraft) ToAddress() model.Address {
	return model.Address{
		Line:     d.Line,
		Apt:      d.Apt,
		Entrance: d.Entrance,
		Floor:    d.Floor,
		Comment:  d.Comment,
	}
}

type ProductDraft struct {
	Title      string `json:"title"`
	PriceMinor int64  `json:"price_minor"`
}

// EditTarget - товар, который редактирует администратор.
type EditTarget struct {
	ProductID int64 `json:"product_id"`
}

// CheckoutDraft запоминает выбор доставки и снимок адреса между deliv: и confirm:.
type CheckoutDraft struct {
	Kind    model.DeliveryKind     `json:"kind"`
	Address *model.AddressSnapshot `json:"address,omitempty"`
}

// Merge накладывает непустые секции патча.
func (s Scratch) Merge(patch Scratch) Scratch {
	if patch.Registration != nil {
		s.Registration = patch.Registration
	}
	if patch.Address != nil {
		s.Address = patch.Address
	}
	if patch.Product != nil {
		s.Product = patch.Product
	}
	if patch.Edit != nil {
		s.Edit = patch.Edit
	}
	if patch.Checkout != nil {
		s.Checkout = patch.Checkout
	}
	return s
}

// Store - хранилище состояний диалогов, ключ - внешний идентификатор участника.
type Store interface {
	SetState(ctx context.Context, principalID int64, st State) error
	GetState(ctx context.Context, principalID int64) (State, error)
	UpdateScratch(ctx context.Context, principalID int64, patch Scratch) error
	GetScratch(ctx context.Context, principalID int64) (Scratch, error)
	// Clear атомарно удаляет тег и все черновики.
	Clear(ctx context.Context, principalID int64) error
}
