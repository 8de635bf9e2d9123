// Package bot - диспетчер диалогов: маршрутизирует входящие события по
// командам, кнопкам и шагам конечных автоматов и возвращает ответы.
package bot

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"shopbot/internal/admin"
	"shopbot/internal/apperr"
	"shopbot/internal/catalog"
	"shopbot/internal/identity"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"
	"shopbot/internal/model"
	"shopbot/internal/state"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Identity - регистрация, OTP и адреса.
type Identity interface {
	User(ctx context.Context, principalID int64) (*model.User, error)
	RegisterOrTouch(ctx context.Context, principalID int64, name string) (*model.User, error)
	BeginPhoneVerification(ctx context.Context, principalID int64, raw string) (string, error)
	VerifyOTP(ctx context.Context, principalID int64, code string) error
	SaveDefaultAddress(ctx context.Context, principalID int64, addr model.Address) (*model.Address, error)
	DefaultAddress(ctx context.Context, principalID int64) (*model.Address, error)
	Profile(ctx context.Context, principalID int64) (*identity.Profile, error)
}

// Catalog - витрина.
type Catalog interface {
	ListPublic(ctx context.Context, q catalog.Query) (catalog.Page, error)
	GetByID(ctx context.Context, id int64) (model.Product, error)
}

// Orders - корзина и оформление.
type Orders interface {
	GetOrCreateOpenCart(ctx context.Context, principalID int64) (int64, error)
	AddProduct(ctx context.Context, principalID int64, p model.Product) (model.Totals, error)
	Items(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	ClearCart(ctx context.Context, orderID int64) error
	RecomputeTotals(ctx context.Context, orderID int64, feeMinor int64) (model.Totals, error)
	CourierFee(ctx context.Context) (int64, error)
	ChooseDelivery(ctx context.Context, orderID int64, kind model.DeliveryKind) (model.Totals, error)
	Checkout(ctx context.Context, orderID int64, kind model.DeliveryKind, addr *model.AddressSnapshot) (*model.Order, error)
}

// Deps - зависимости диспетчера.
type Deps struct {
	States   state.Store
	Identity Identity
	Catalog  Catalog
	Orders   Orders
	Admins   *admin.Authorizer
	PageSize int
}

type Dispatcher struct {
	states   state.Store
	identity Identity
	catalog  Catalog
	orders   Orders
	admins   *admin.Authorizer
	pageSize int
	tracer   trace.Tracer
}

func New(d Deps) *Dispatcher {
	if d.PageSize < 1 {
		d.PageSize = 10
	}
	return &Dispatcher{
		states:   d.States,
		identity: d.Identity,
		catalog:  d.Catalog,
		orders:   d.Orders,
		admins:   d.Admins,
		pageSize: d.PageSize,
		tracer:   otel.Tracer("bot-dispatcher"),
	}
}

// Handle обрабатывает событие. Ошибку возвращает только для некорректного
// события; доменные и временные ошибки превращаются в ответ участнику.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) ([]Reply, error) {
	ctx, span := d.tracer.Start(ctx, "Bot.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("principal_id", ev.PrincipalID),
		attribute.String("kind", string(ev.Kind)),
	)

	if err := ev.Validate(); err != nil {
		metrics.DialogEvents.WithLabelValues(string(ev.Kind), "invalid").Inc()
		span.RecordError(err)
		return nil, err
	}

	replies, err := d.route(ctx, ev)
	if err != nil {
		span.RecordError(err)
		kind := apperr.KindOf(err)
		metrics.DialogEvents.WithLabelValues(string(ev.Kind), kind.String()).Inc()
		return []Reply{d.failure(ev, err)}, nil
	}

	metrics.DialogEvents.WithLabelValues(string(ev.Kind), "ok").Inc()
	return replies, nil
}

func (d *Dispatcher) route(ctx context.Context, ev Event) ([]Reply, error) {
	if ev.Kind == KindButton {
		return d.onButton(ctx, ev)
	}

	msg := strings.TrimSpace(ev.Text)
	switch {
	case command(msg) == "/start":
		return d.start(ctx, ev)
	case command(msg) == "/cancel", fold(msg) == fold(MenuCancel):
		return d.cancel(ctx, ev)
	case strings.HasPrefix(msg, "/"):
		return d.onCommand(ctx, ev, msg)
	}

	st, err := d.states.GetState(ctx, ev.PrincipalID)
	if err != nil {
		return nil, err
	}
	if st != state.StateNone {
		return d.onStep(ctx, ev, st)
	}
	return d.onMenu(ctx, ev, msg)
}

func (d *Dispatcher) onStep(ctx context.Context, ev Event, st state.State) ([]Reply, error) {
	switch st {
	case state.RegName:
		return d.regName(ctx, ev)
	case state.RegPhone:
		return d.regPhone(ctx, ev)
	case state.RegOTP:
		return d.regOTP(ctx, ev)
	case state.AddrLine, state.AddrApt, state.AddrEntrance, state.AddrFloor, state.AddrComment:
		return d.addressStep(ctx, ev, st)
	case state.AdmTitle, state.AdmPrice, state.AdmPhoto:
		return d.addProductStep(ctx, ev, st)
	case state.AdmEditTitle, state.AdmEditPrice, state.AdmEditPhoto:
		return d.editProductStep(ctx, ev, st)
	}

	logger.L.Warn("Неизвестное состояние диалога, сбрасываем",
		zap.Int64("principal_id", ev.PrincipalID), zap.String("state", string(st)))
	if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
		return nil, err
	}
	return d.onMenu(ctx, ev, strings.TrimSpace(ev.Text))
}

func (d *Dispatcher) onMenu(ctx context.Context, ev Event, msg string) ([]Reply, error) {
	switch msg {
	case MenuCatalog:
		return d.showCatalog(ctx, 1)
	case MenuCart:
		return d.showCart(ctx, ev)
	case MenuAddress:
		return d.beginAddress(ctx, ev)
	case MenuProfile:
		return d.showProfile(ctx, ev)
	case MenuHelp:
		return []Reply{text(helpText)}, nil
	case MenuPay:
		return []Reply{{
			Text:    "Онлайн-оплата в демо-режиме. Реальный эквайринг будет подключён позже.",
			Buttons: paymentButtons("Перейти к оплате (демо)", "Проверить статус (демо)"),
		}}, nil
	case MenuAdmin:
		return d.adminMenu(ev)
	}
	return []Reply{{
		Text: "Не понимаю. Выберите действие в меню или нажмите /start.",
		Menu: mainMenu(d.admins.IsAdmin(ev.PrincipalID)),
	}}, nil
}

func (d *Dispatcher) start(ctx context.Context, ev Event) ([]Reply, error) {
	u, err := d.identity.User(ctx, ev.PrincipalID)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
		return nil, err
	}

	switch {
	case u == nil:
		if err := d.states.SetState(ctx, ev.PrincipalID, state.RegName); err != nil {
			return nil, err
		}
		greeting := "Привет! Давайте зарегистрируемся.\nВведите ваше имя:"
		if name := strings.TrimSpace(ev.Name); name != "" {
			greeting = "Привет, " + name + "! Давайте зарегистрируемся.\nВведите ваше имя:"
		}
		return []Reply{{Text: greeting, Menu: cancelMenu()}}, nil
	case u.IsVerified:
		return []Reply{{Text: "Добро пожаловать! Выберите действие:", Menu: mainMenu(d.admins.IsAdmin(ev.PrincipalID))}}, nil
	}

	if err := d.states.SetState(ctx, ev.PrincipalID, state.RegPhone); err != nil {
		return nil, err
	}
	return []Reply{contactPrompt("Для продолжения подтвердите номер телефона. Отправьте контакт кнопкой ниже или введите номер.")}, nil
}

func (d *Dispatcher) cancel(ctx context.Context, ev Event) ([]Reply, error) {
	if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
		return nil, err
	}
	return []Reply{{Text: "Действие отменено. Главное меню:", Menu: mainMenu(d.admins.IsAdmin(ev.PrincipalID))}}, nil
}

// failure превращает ошибку обработчика в ответ по её виду.
func (d *Dispatcher) failure(ev Event, err error) Reply {
	var msg string
	switch apperr.KindOf(err) {
	case apperr.KindForbidden:
		msg = "Нет доступа."
	case apperr.KindTransient:
		logger.L.Error("Ошибка обработки события",
			zap.Int64("principal_id", ev.PrincipalID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
		msg = "Попробуйте позже."
	default:
		msg = sentence(detail(err))
	}
	if ev.Kind == KindButton {
		return alert(msg)
	}
	return text(msg)
}

// detail - последняя часть цепочки "вид: подробность".
func detail(err error) string {
	s := err.Error()
	if i := strings.LastIndex(s, ": "); i >= 0 {
		return s[i+2:]
	}
	return s
}

func sentence(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	s = string(unicode.ToUpper(r)) + s[size:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

// command возвращает первое слово, если это slash-команда.
func command(msg string) string {
	if !strings.HasPrefix(msg, "/") {
		return ""
	}
	name, _, _ := strings.Cut(msg, " ")
	// /start@shopbot
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
