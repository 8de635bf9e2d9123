package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status - статус заказа.
type Status string

const (
	StatusCart       Status = "cart"
	StatusConfirming Status = "confirming"
	StatusPreparing  Status = "preparing"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCanceled   Status = "canceled"
)

// AdminStatuses - статусы, которые может выставить администратор.
var AdminStatuses = []Status{StatusConfirming, StatusPreparing, StatusDelivering, StatusDelivered, StatusCanceled}

// ActiveStatuses - статусы заказов, ожидающих действий администратора.
var ActiveStatuses = []Status{StatusConfirming, StatusPreparing, StatusDelivering}

// ParseAdminStatus разбирает статус из команды /set. Статус cart не допускается.
func ParseAdminStatus(s string) (Status, bool) {
	for _, st := range AdminStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// DeliveryKind - способ получения заказа.
type DeliveryKind string

const (
	DeliveryPickup  DeliveryKind = "pickup"
	DeliveryCourier DeliveryKind = "courier"
)

func ParseDeliveryKind(s string) (DeliveryKind, bool) {
	switch DeliveryKind(s) {
	case DeliveryPickup, DeliveryCourier:
		return DeliveryKind(s), true
	}
	return "", false
}

// Order - корзина (status=cart) или оформленный заказ.
type Order struct {
	ID               int64            `json:"id" db:"id"`
	UserID           int64            `json:"user_id" db:"user_id"`
	Status           Status           `json:"status" db:"status"`
	DeliveryType     DeliveryKind     `json:"delivery_type,omitempty" db:"delivery_type"`
	DeliveryFeeMinor int64            `json:"delivery_fee_minor" db:"delivery_fee_minor"`
	SubtotalMinor    int64            `json:"subtotal_minor" db:"subtotal_minor"`
	TotalMinor       int64            `json:"total_minor" db:"total_minor"`
	AddressSnapshot  *AddressSnapshot `json:"address_snapshot,omitempty" db:"address_snapshot"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// OrderItem - позиция заказа. Title и UnitPriceMinor - снимок на момент добавления.
type OrderItem struct {
	ID             int64  `json:"-" db:"id"`
	OrderID        int64  `json:"order_id" db:"order_id"`
	SKU            string `json:"sku" db:"sku"`
	Title          string `json:"title" db:"title"`
	UnitPriceMinor int64  `json:"unit_price_minor" db:"unit_price_minor"`
	Qty            int64  `json:"qty" db:"qty"`
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPriceMinor * i.Qty
}

// Totals - денежные итоги заказа.
type Totals struct {
	SubtotalMinor    int64
	DeliveryFeeMinor int64
	TotalMinor       int64
}

// ComputeTotals всегда считает сумму заново по всем позициям.
func ComputeTotals(items []OrderItem, deliveryFeeMinor int64) Totals {
	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotal()
	}
	return Totals{
		SubtotalMinor:    subtotal,
		DeliveryFeeMinor: deliveryFeeMinor,
		TotalMinor:       subtotal + deliveryFeeMinor,
	}
}

// ActiveOrder - заказ с контактами покупателя для списка администратора.
type ActiveOrder struct {
	Order
	CustomerName  string `json:"name" db:"name"`
	CustomerPhone string `json:"phone" db:"phone"`
	PrincipalID   int64  `json:"principal_id" db:"principal_id"`
}

// AddressSnapshot - замороженная копия адреса в заказе. Для самовывоза пустая.
type AddressSnapshot struct {
	Line     string  `json:"address_line,omitempty"`
	Apt      *string `json:"apt,omitempty"`
	Entrance *string `json:"entrance,omitempty"`
	Floor    *string `json:"floor,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

// SnapshotOf копирует адрес, включая значения указателей.
func SnapshotOf(a *Address) AddressSnapshot {
	if a == nil {
		return AddressSnapshot{}
	}
	return AddressSnapshot{
		Line:     a.Line,
		Apt:      copyString(a.Apt),
		Entrance: copyString(a.Entrance),
		Floor:    copyString(a.Floor),
		Comment:  copyString(a.Comment),
	}
}

// Clone возвращает независимую копию снимка.
func (s AddressSnapshot) Clone() AddressSnapshot {
	return AddressSnapshot{
		Line:     s.Line,
		Apt:      copyString(s.Apt),
		Entrance: copyString(s.Entrance),
		Floor:    copyString(s.Floor),
		Comment:  copyString(s.Comment),
	}
}

func (s AddressSnapshot) Empty() bool {
	return s.Line == ""
}

// Value сериализует снимок в JSON-строку (строка, а не []byte: lib/pq
// передал бы []byte как bytea).
func (s AddressSnapshot) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *AddressSnapshot) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = AddressSnapshot{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address_snapshot: неподдерживаемый тип %T", src)
	}
	if len(raw) == 0 {
		*s = AddressSnapshot{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
