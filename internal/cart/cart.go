// Package cart - жизненный цикл корзины и заказа: позиции, пересчёт итогов,
// оформление и смена статусов.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shopbot/internal/apperr"
	"shopbot/internal/database"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"
	"shopbot/internal/model"

	"go.uber.org/zap"
)

var (
	ErrEmptyCart          = fmt.Errorf("%w: корзина пуста", apperr.ErrConflict)
	ErrNotCart            = fmt.Errorf("%w: заказ уже оформлен", apperr.ErrConflict)
	ErrNotCheckedOut      = fmt.Errorf("%w: заказ ещё не оформлен", apperr.ErrConflict)
	ErrMissingAddress     = fmt.Errorf("%w: для доставки курьером нужен адрес", apperr.ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: неверный статус", apperr.ErrValidation)
	ErrInvalidDelivery    = fmt.Errorf("%w: неизвестный способ доставки", apperr.ErrValidation)
	ErrInvalidFee         = fmt.Errorf("%w: тариф не может быть отрицательным", apperr.ErrValidation)
	ErrProductUnavailable = fmt.Errorf("%w: товар недоступен", apperr.ErrConflict)
	ErrOrderNotFound      = fmt.Errorf("%w: заказ не найден", apperr.ErrNotFound)
	ErrUnknownPrincipal   = fmt.Errorf("%w: пользователь не зарегистрирован", apperr.ErrNotFound)
)

// Store - то, что движку нужно от хранилища.
type Store interface {
	database.OrderStorage
	database.SettingsStorage
	GetUserByPrincipal(ctx context.Context, principalID int64) (*model.User, error)
}

type Engine struct {
	store      Store
	defaultFee int64
	notifier   Notifier
	now        func() time.Time
}

type Option func(*Engine)

// WithNotifier включает публикацию событий заказа.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New создаёт движок. defaultFeeMinor - тариф курьера, если в настройках его нет.
func New(store Store, defaultFeeMinor int64, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		defaultFee: defaultFeeMinor,
		notifier:   nopNotifier{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init записывает тариф по умолчанию, если он ещё не задан.
func (e *Engine) Init(ctx context.Context) error {
	return e.store.EnsureSetting(ctx, model.SettingCourierFee, strconv.FormatInt(e.defaultFee, 10))
}

// GetOrCreateOpenCart возвращает единственную открытую корзину участника.
func (e *Engine) GetOrCreateOpenCart(ctx context.Context, principalID int64) (int64, error) {
	u, err := e.store.GetUserByPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, ErrUnknownPrincipal
		}
		return 0, err
	}
	return e.store.OpenCart(ctx, u.ID, e.now())
}

// AddItem добавляет единицу товара. Название и цена - снимок на момент вызова.
func (e *Engine) AddItem(ctx context.Context, orderID int64, sku, title string, unitPriceMinor int64) error {
	return e.orderErr(e.store.AddItem(ctx, orderID, sku, title, unitPriceMinor))
}

// AddProduct кладёт доступный товар в открытую корзину участника и пересчитывает итоги.
func (e *Engine) AddProduct(ctx context.Context, principalID int64, p model.Product) (model.Totals, error) {
	if !p.Available {
		return model.Totals{}, ErrProductUnavailable
	}
	orderID, err := e.GetOrCreateOpenCart(ctx, principalID)
	if err != nil {
		return model.Totals{}, err
	}
	if err := e.AddItem(ctx, orderID, p.SKU, p.Title, p.PriceMinor); err != nil {
		return model.Totals{}, err
	}
	return e.RecomputeTotals(ctx, orderID, 0)
}

// RecomputeTotals пересчитывает итоги корзины с заданным тарифом доставки.
func (e *Engine) RecomputeTotals(ctx context.Context, orderID int64, feeMinor int64) (model.Totals, error) {
	totals, err := e.store.RecomputeTotals(ctx, orderID, feeMinor)
	return totals, e.orderErr(err)
}

// ClearCart удаляет все позиции и обнуляет итоги.
func (e *Engine) ClearCart(ctx context.Context, orderID int64) error {
	return e.orderErr(e.store.ClearCart(ctx, orderID))
}

func (e *Engine) Items(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return e.store.ListItems(ctx, orderID)
}

func (e *Engine) Order(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, e.orderErr(err)
	}
	return o, nil
}

// CourierFee возвращает текущий тариф курьера в копейках.
func (e *Engine) CourierFee(ctx context.Context) (int64, error) {
	v, err := e.store.GetSetting(ctx, model.SettingCourierFee)
	if errors.Is(err, apperr.ErrNotFound) {
		return e.defaultFee, nil
	}
	if err != nil {
		return 0, err
	}
	fee, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.L.Warn("Некорректный тариф в настройках, используется значение по умолчанию", zap.String("value", v))
		return e.defaultFee, nil
	}
	return fee, nil
}

func (e *Engine) SetCourierFee(ctx context.Context, feeMinor int64) error {
	if feeMinor < 0 {
		return ErrInvalidFee
	}
	return e.store.SetSetting(ctx, model.SettingCourierFee, strconv.FormatInt(feeMinor, 10))
}

// FeeFor - стоимость доставки для способа получения.
func (e *Engine) FeeFor(ctx context.Context, kind model.DeliveryKind) (int64, error) {
	switch kind {
	case model.DeliveryPickup:
		return 0, nil
	case model.DeliveryCourier:
		return e.CourierFee(ctx)
	}
	return 0, ErrInvalidDelivery
}

// ChooseDelivery применяет тариф выбранного способа к итогам корзины.
func (e *Engine) ChooseDelivery(ctx context.Context, orderID int64, kind model.DeliveryKind) (model.Totals, error) {
	fee, err := e.FeeFor(ctx, kind)
	if err != nil {
		return model.Totals{}, err
	}
	return e.RecomputeTotals(ctx, orderID, fee)
}

// Checkout оформляет корзину: фиксирует способ доставки и снимок адреса и
// переводит заказ в confirming. Для самовывоза снимок пустой.
func (e *Engine) Checkout(ctx context.Context, orderID int64, kind model.DeliveryKind, addr *model.AddressSnapshot) (*model.Order, error) {
	if _, ok := model.ParseDeliveryKind(string(kind)); !ok {
		return nil, ErrInvalidDelivery
	}

	snapshot := model.AddressSnapshot{}
	if kind == model.DeliveryCourier {
		if addr == nil || addr.Empty() {
			return nil, ErrMissingAddress
		}
		snapshot = addr.Clone()
	}

	ok, err := e.store.Checkout(ctx, orderID, kind, snapshot)
	if err != nil {
		return nil, err
	}
	if !ok {
		o, err := e.Order(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != model.StatusCart {
			return nil, ErrNotCart
		}
		return nil, ErrEmptyCart
	}

	o, err := e.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	metrics.OrdersCheckedOut.WithLabelValues(string(kind)).Inc()
	e.notify(ctx, EventOrderConfirmed, o)
	return o, nil
}

// SetStatus - смена статуса администратором. Переходы между статусами после
// оформления свободные; корзину двигать нельзя, cart не бывает целью.
func (e *Engine) SetStatus(ctx context.Context, orderID int64, status model.Status) (*model.Order, error) {
	if _, ok := model.ParseAdminStatus(string(status)); !ok {
		return nil, ErrInvalidStatus
	}

	ok, err := e.store.SetOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := e.Order(ctx, orderID); err != nil {
			return nil, err
		}
		return nil, ErrNotCheckedOut
	}

	o, err := e.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.notify(ctx, EventOrderStatusChanged, o)
	return o, nil
}

// ActiveOrders - заказы в статусах confirming, preparing, delivering.
func (e *Engine) ActiveOrders(ctx context.Context, limit int) ([]model.ActiveOrder, error) {
	return e.store.ListActiveOrders(ctx, limit)
}

func (e *Engine) orderErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrWrongStatus):
		return ErrNotCart
	case errors.Is(err, apperr.ErrNotFound):
		return ErrOrderNotFound
	}
	return err
}
