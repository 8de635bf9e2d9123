package bot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"shopbot/internal/admin"
	"shopbot/internal/bot"
	"shopbot/internal/cart"
	"shopbot/internal/catalog"
	"shopbot/internal/config"
	"shopbot/internal/database"
	"shopbot/internal/database/dbtest"
	"shopbot/internal/identity"
	"shopbot/internal/model"
	"shopbot/internal/sms/mocks"
	"shopbot/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	adminID = 100
	buyerID = 1
)

type harness struct {
	d        *bot.Dispatcher
	store    database.Storage
	states   state.Store
	lastCode string
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStates(t, state.NewMemoryStore())
}

func newHarnessWithStates(t *testing.T, states state.Store) *harness {
	t.Helper()
	h := &harness{
		store:  dbtest.NewSQLite(t),
		states: states,
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, text string) (bool, error) {
			h.lastCode = strings.TrimPrefix(text, "Ваш код подтверждения: ")
			return true, nil
		}).AnyTimes()

	ids := identity.New(h.store, sender, config.OTPConfig{TTL: 5 * time.Minute, CodeLength: 4, Secret: "s"},
		identity.WithClock(clock))
	cat := catalog.New(h.store, 32)
	engine := cart.New(h.store, 15000, cart.WithClock(clock))
	require.NoError(t, engine.Init(context.Background()))
	loader := catalog.NewLoader(h.store, cat, config.CatalogConfig{File: t.TempDir() + "/missing.json"})

	h.d = bot.New(bot.Deps{
		States:   h.states,
		Identity: ids,
		Catalog:  cat,
		Orders:   engine,
		Admins:   admin.NewAuthorizer([]int64{adminID}, h.store, cat, engine, loader),
		PageSize: 2,
	})
	return h
}

func (h *harness) send(t *testing.T, ev bot.Event) []bot.Reply {
	t.Helper()
	replies, err := h.d.Handle(context.Background(), ev)
	require.NoError(t, err)
	return replies
}

func (h *harness) say(t *testing.T, principal int64, msg string) bot.Reply {
	t.Helper()
	replies := h.send(t, bot.Event{PrincipalID: principal, Kind: bot.KindText, Text: msg})
	require.NotEmpty(t, replies)
	return replies[0]
}

func (h *harness) press(t *testing.T, principal int64, data string) bot.Reply {
	t.Helper()
	replies := h.send(t, bot.Event{PrincipalID: principal, Kind: bot.KindButton, Button: data})
	require.NotEmpty(t, replies)
	return replies[0]
}

func (h *harness) stateOf(t *testing.T, principal int64) state.State {
	t.Helper()
	st, err := h.states.GetState(context.Background(), principal)
	require.NoError(t, err)
	return st
}

// register проводит участника через регистрацию до подтверждённого телефона.
func (h *harness) register(t *testing.T, principal int64) {
	t.Helper()
	h.say(t, principal, "/start")
	h.say(t, principal, "Анна")
	h.say(t, principal, "8 916 123-45-67")
	r := h.say(t, principal, h.lastCode)
	require.Equal(t, "Телефон подтверждён! Добро пожаловать.", r.Text)
}

func (h *harness) saveAddress(t *testing.T, principal int64, line string) {
	t.Helper()
	h.say(t, principal, bot.MenuAddress)
	h.say(t, principal, line)
	for i := 0; i < 4; i++ {
		h.say(t, principal, "нет")
	}
	require.Equal(t, state.StateNone, h.stateOf(t, principal))
}

func (h *harness) seedProduct(t *testing.T, title string, price int64) int64 {
	t.Helper()
	ctx := context.Background()
	catID, err := h.store.EnsureCategory(ctx, model.GeneralCategorySlug, model.GeneralCategoryTitle)
	require.NoError(t, err)
	id, err := h.store.CreateProduct(ctx, model.Product{
		CategoryID: catID, SKU: strings.ToLower(title), Title: title, PriceMinor: price, Available: true,
	})
	require.NoError(t, err)
	return id
}

func buttonData(r bot.Reply) []string {
	var out []string
	for _, row := range r.Buttons {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

func TestRegistration(t *testing.T) {
	h := newHarness(t)

	r := h.say(t, buyerID, "/start")
	assert.Contains(t, r.Text, "Введите ваше имя")
	assert.Equal(t, state.RegName, h.stateOf(t, buyerID))

	r = h.say(t, buyerID, "А")
	assert.Contains(t, r.Text, "Имя слишком короткое")
	assert.Equal(t, state.RegName, h.stateOf(t, buyerID))

	r = h.say(t, buyerID, "Анна")
	assert.True(t, r.RequestContact)
	assert.Equal(t, state.RegPhone, h.stateOf(t, buyerID))

	r = h.say(t, buyerID, "12345")
	assert.Contains(t, r.Text, "Не удалось распознать номер")

	r = h.send(t, bot.Event{PrincipalID: buyerID, Kind: bot.KindContact, ContactPhone: "+7 916 123 45 67"})[0]
	assert.Equal(t, "Код отправлен по SMS. Введите код цифрами:", r.Text)
	assert.Equal(t, state.RegOTP, h.stateOf(t, buyerID))
	require.Len(t, h.lastCode, 4)

	r = h.say(t, buyerID, "12ab")
	assert.Contains(t, r.Text, "только из цифр")

	wrong := "0000"
	if h.lastCode == wrong {
		wrong = "1111"
	}
	r = h.say(t, buyerID, wrong)
	assert.Equal(t, "Неверный код. Попробуйте ещё раз.", r.Text)
	assert.Equal(t, state.RegOTP, h.stateOf(t, buyerID))

	r = h.say(t, buyerID, h.lastCode)
	assert.Equal(t, "Телефон подтверждён! Добро пожаловать.", r.Text)
	assert.NotEmpty(t, r.Menu)
	assert.Equal(t, state.StateNone, h.stateOf(t, buyerID))

	u, err := h.store.GetUserByPrincipal(context.Background(), buyerID)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Equal(t, "+79161234567", u.Phone)

	r = h.say(t, buyerID, "/start")
	assert.Equal(t, "Добро пожаловать! Выберите действие:", r.Text)
	assert.Equal(t, state.StateNone, h.stateOf(t, buyerID))
}

func TestRegistration_ExpiredCodeReturnsToPhone(t *testing.T) {
	h := newHarness(t)
	h.say(t, buyerID, "/start")
	h.say(t, buyerID, "Анна")
	h.say(t, buyerID, "+79161234567")

	h.now = h.now.Add(6 * time.Minute)
	r := h.say(t, buyerID, h.lastCode)
	assert.Contains(t, r.Text, "истёк")
	assert.Equal(t, state.RegPhone, h.stateOf(t, buyerID))

	h.say(t, buyerID, "+79161234567")
	r = h.say(t, buyerID, h.lastCode)
	assert.Equal(t, "Телефон подтверждён! Добро пожаловать.", r.Text)
}

func TestRegistration_UnverifiedStartGoesToPhone(t *testing.T) {
	h := newHarness(t)
	h.say(t, buyerID, "/start")
	h.say(t, buyerID, "Анна")
	h.say(t, buyerID, "/cancel")

	r := h.say(t, buyerID, "/start")
	assert.True(t, r.RequestContact)
	assert.Equal(t, state.RegPhone, h.stateOf(t, buyerID))
}

func TestCancel_CaseFolded(t *testing.T) {
	h := newHarness(t)
	h.say(t, buyerID, "/start")
	require.Equal(t, state.RegName, h.stateOf(t, buyerID))

	r := h.say(t, buyerID, "  ОТМЕНА ")
	assert.Equal(t, "Действие отменено. Главное меню:", r.Text)
	assert.Equal(t, state.StateNone, h.stateOf(t, buyerID))

	_, err := h.store.GetUserByPrincipal(context.Background(), buyerID)
	assert.Error(t, err, "отмена не создаёт пользователя")
}

func TestAddress_ShortLineAndOptionalFields(t *testing.T) {
	h := newHarness(t)
	h.register(t, buyerID)

	h.say(t, buyerID, bot.MenuAddress)
	r := h.say(t, buyerID, "ул.")
	assert.Contains(t, r.Text, "слишком короткий адрес")
	assert.Equal(t, state.AddrLine, h.stateOf(t, buyerID))

	h.say(t, buyerID, "ул. Ленина, 1")
	h.say(t, buyerID, "12")
	h.say(t, buyerID, "НЕТ")
	h.say(t, buyerID, "3")
	r = h.say(t, buyerID, "домофон 12")
	assert.Equal(t, "Адрес сохранён как адрес по умолчанию:\nул. Ленина, 1, кв/оф 12, этаж 3, коммент: домофон 12", r.Text)

	r = h.say(t, buyerID, bot.MenuProfile)
	assert.Contains(t, r.Text, "Анна")
	assert.Contains(t, r.Text, "+79161234567 (подтверждён)")
	assert.Contains(t, r.Text, "ул. Ленина, 1, кв/оф 12")
}

func TestAddress_RequiresRegistration(t *testing.T) {
	h := newHarness(t)
	r := h.say(t, buyerID, bot.MenuAddress)
	assert.Equal(t, "Сначала зарегистрируйтесь: /start", r.Text)
	assert.Equal(t, state.StateNone, h.stateOf(t, buyerID))
}

func TestCatalog_Pagination(t *testing.T) {
	h := newHarness(t)

	r := h.say(t, buyerID, bot.MenuCatalog)
	assert.Contains(t, r.Text, "Каталог пуст")

	a := h.seedProduct(t, "A", 5000)
	h.seedProduct(t, "B", 3000)
	h.seedProduct(t, "C", 1000)

	r = h.say(t, buyerID, bot.MenuCatalog)
	assert.Equal(t, "Выберите товар:", r.Text)
	data := buttonData(r)
	assert.Len(t, data, 3, "две карточки и кнопка вперёд")
	assert.Contains(t, data, "plist:2")

	r = h.press(t, buyerID, "plist:2")
	assert.Contains(t, buttonData(r), "plist:1")

	r = h.press(t, buyerID, fmt.Sprintf("view:%d:p:2", a))
	assert.Equal(t, "📦 A\nЦена: 50.00 ₽", r.Text)
	assert.Equal(t, []string{fmt.Sprintf("add:%d", a), "plist:2"}, buttonData(r))

	r = h.press(t, buyerID, "view:999:p:1")
	assert.True(t, r.Alert)
	assert.Equal(t, "Товар недоступен", r.Text)

	r = h.press(t, buyerID, fmt.Sprintf("add:%d", a))
	assert.True(t, r.Alert)
	assert.Equal(t, "Сначала зарегистрируйтесь: /start", r.Text)
}

func TestCheckout_EndToEndFreezesAddress(t *testing.T) {
	h := newHarness(t)
	h.register(t, buyerID)
	ctx := context.Background()

	a := h.seedProduct(t, "A", 5000)
	b := h.seedProduct(t, "B", 3000)

	r := h.say(t, buyerID, bot.MenuCart)
	assert.Contains(t, r.Text, "Корзина пуста")

	h.press(t, buyerID, fmt.Sprintf("add:%d", a))
	h.press(t, buyerID, fmt.Sprintf("add:%d", a))
	r = h.press(t, buyerID, fmt.Sprintf("add:%d", b))
	assert.Equal(t, "Добавлено в корзину", r.Text)

	r = h.say(t, buyerID, bot.MenuCart)
	assert.Equal(t, "Корзина:\n- A x2 = 100.00 ₽\n- B x1 = 30.00 ₽\nИтого по товарам: 130.00 ₽", r.Text)

	r = h.press(t, buyerID, "checkout")
	assert.Equal(t, []string{"deliv:pickup", "deliv:courier"}, buttonData(r))
	assert.Contains(t, r.Buttons[1][0].Text, "150 ₽")

	r = h.press(t, buyerID, "deliv:courier")
	assert.True(t, r.Alert, "курьер без адреса")

	h.saveAddress(t, buyerID, "ул. Ленина, 1")
	r = h.press(t, buyerID, "deliv:courier")
	assert.Contains(t, r.Text, "Товары: 130.00 ₽")
	assert.Contains(t, r.Text, "Доставка: 150.00 ₽ (Курьер)")
	assert.Contains(t, r.Text, "Итого: 280.00 ₽")
	assert.Contains(t, r.Text, "Адрес: ул. Ленина, 1")

	// адрес сменили между выбором доставки и подтверждением
	h.saveAddress(t, buyerID, "пр. Мира, 5")

	r = h.press(t, buyerID, "confirm:courier")
	var orderID int64
	_, err := fmt.Sscanf(r.Text, "Заказ #%d", &orderID)
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Статус: confirming.")
	assert.Contains(t, r.Text, "Итого к оплате: 280.00 ₽.")

	h.saveAddress(t, buyerID, "ул. Новая, 10")

	o, err := h.store.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirming, o.Status)
	assert.Equal(t, int64(28000), o.TotalMinor)
	require.NotNil(t, o.AddressSnapshot)
	assert.Equal(t, "ул. Ленина, 1", o.AddressSnapshot.Line)

	r = h.say(t, buyerID, bot.MenuCart)
	assert.Contains(t, r.Text, "Корзина пуста", "после оформления открывается новая корзина")
}

func TestCheckout_EmptyCartAndPickup(t *testing.T) {
	h := newHarness(t)
	h.register(t, buyerID)

	r := h.press(t, buyerID, "checkout")
	assert.True(t, r.Alert)
	assert.Equal(t, "Корзина пуста.", r.Text)

	r = h.press(t, buyerID, "confirm:pickup")
	assert.True(t, r.Alert)
	assert.Equal(t, "Корзина пуста.", r.Text)

	a := h.seedProduct(t, "A", 5000)
	h.press(t, buyerID, fmt.Sprintf("add:%d", a))
	r = h.press(t, buyerID, "deliv:pickup")
	assert.Contains(t, r.Text, "Доставка: 0.00 ₽ (Самовывоз)")
	assert.NotContains(t, r.Text, "Адрес:")

	r = h.press(t, buyerID, "confirm:pickup")
	assert.Contains(t, r.Text, "Итого к оплате: 50.00 ₽.")
}

func TestCheckout_RepeatedConfirmLeavesNewCartUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, buyerID)
	h.saveAddress(t, buyerID, "ул. Ленина, 1")
	a := h.seedProduct(t, "A", 5000)

	h.press(t, buyerID, fmt.Sprintf("add:%d", a))
	h.press(t, buyerID, "deliv:courier")
	r := h.press(t, buyerID, "confirm:courier")
	assert.Contains(t, r.Text, "Итого к оплате: 200.00 ₽.")

	r = h.press(t, buyerID, "confirm:courier")
	assert.True(t, r.Alert)
	assert.Equal(t, "Корзина пуста.", r.Text)

	u, err := h.store.GetUserByPrincipal(ctx, buyerID)
	require.NoError(t, err)
	cartID, err := h.store.OpenCart(ctx, u.ID, time.Now())
	require.NoError(t, err)
	o, err := h.store.GetOrder(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCart, o.Status)
	assert.Zero(t, o.DeliveryFeeMinor)
	assert.Zero(t, o.TotalMinor)
}

func TestCart_Clear(t *testing.T) {
	h := newHarness(t)
	h.register(t, buyerID)
	a := h.seedProduct(t, "A", 5000)
	h.press(t, buyerID, fmt.Sprintf("add:%d", a))

	r := h.press(t, buyerID, "cart_clear")
	assert.Equal(t, "Корзина очищена.", r.Text)
	r = h.say(t, buyerID, bot.MenuCart)
	assert.Contains(t, r.Text, "Корзина пуста")
}

func TestAdmin_Forbidden(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Нет доступа.", h.say(t, buyerID, bot.MenuAdmin).Text)
	assert.Equal(t, "Нет доступа.", h.say(t, buyerID, "/set 1 preparing").Text)

	r := h.press(t, buyerID, "adm:add_product")
	assert.True(t, r.Alert)
	assert.Equal(t, "Нет доступа.", r.Text)
	assert.Equal(t, state.StateNone, h.stateOf(t, buyerID), "до мутаций дело не доходит")
}

func TestAdmin_AddAndEditProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.say(t, adminID, bot.MenuAdmin)
	assert.Equal(t, "Админ-меню:", r.Text)

	h.press(t, adminID, "adm:add_product")
	assert.Equal(t, state.AdmTitle, h.stateOf(t, adminID))
	assert.Contains(t, h.say(t, adminID, "Я").Text, "слишком короткое")
	h.say(t, adminID, "Пицца Маргарита")

	assert.Contains(t, h.say(t, adminID, "бесплатно").Text, "целое число")
	assert.Contains(t, h.say(t, adminID, "0").Text, "целое число")
	h.say(t, adminID, "450 руб")

	assert.Contains(t, h.say(t, adminID, "потом").Text, "Это не фото")
	r = h.say(t, adminID, "Пропустить")
	assert.Contains(t, r.Text, "SKU: pitstsa-margarita")
	assert.Contains(t, r.Text, "Цена: 450.00 ₽")
	assert.Contains(t, r.Text, "Фото: нет")
	assert.Equal(t, state.StateNone, h.stateOf(t, adminID))

	h.press(t, adminID, "adm:add_product")
	h.say(t, adminID, "Пицца Маргарита")
	h.say(t, adminID, "470")
	r = h.send(t, bot.Event{PrincipalID: adminID, Kind: bot.KindPhoto, Photo: "file-1"})[0]
	assert.Contains(t, r.Text, "SKU: pitstsa-margarita-2")
	assert.Contains(t, r.Text, "Фото: есть")

	p, err := h.store.GetProductBySKU(ctx, "pitstsa-margarita")
	require.NoError(t, err)
	id := fmt.Sprint(p.ID)

	r = h.press(t, adminID, "adm:prod:"+id)
	assert.Contains(t, r.Text, "Статус: ON")

	h.press(t, adminID, "adm:prod:price:"+id)
	assert.Equal(t, "Цена обновлена.", h.say(t, adminID, "500").Text)

	h.press(t, adminID, "adm:prod:rename:"+id)
	assert.Equal(t, "Название товара обновлено.", h.say(t, adminID, "Маргарита").Text)

	r = h.press(t, adminID, "adm:prod:toggle:"+id)
	assert.Contains(t, r.Text, "Статус: OFF")

	p, err = h.store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Маргарита", p.Title)
	assert.Equal(t, int64(50000), p.PriceMinor)
	assert.False(t, p.Available)

	r = h.press(t, adminID, "adm:prod:delete:"+id)
	assert.Equal(t, "Товар удалён. Список:", r.Text)
	r = h.press(t, adminID, "adm:prod:"+id)
	assert.True(t, r.Alert)
	assert.Equal(t, "Товар не найден.", r.Text)
}

func TestAdmin_Commands(t *testing.T) {
	h := newHarness(t)
	h.register(t, buyerID)
	a := h.seedProduct(t, "A", 5000)
	h.press(t, buyerID, fmt.Sprintf("add:%d", a))
	r := h.press(t, buyerID, "confirm:pickup")
	var orderID int64
	_, err := fmt.Sscanf(r.Text, "Заказ #%d", &orderID)
	require.NoError(t, err)

	r = h.press(t, adminID, "adm:orders")
	assert.Contains(t, r.Text, fmt.Sprintf("#%d | confirming | 50.00 ₽ | Анна +79161234567 | Самовывоз", orderID))

	assert.Contains(t, h.say(t, adminID, "/set").Text, "Использование")
	assert.Equal(t, "order_id должен быть числом.", h.say(t, adminID, "/set x preparing").Text)
	assert.Contains(t, h.say(t, adminID, "/set 1 cart").Text, "Неверный статус")
	assert.Equal(t, "Заказ #999 не найден.", h.say(t, adminID, "/set 999 preparing").Text)
	assert.Equal(t, fmt.Sprintf("Статус заказа #%d изменён на preparing.", orderID),
		h.say(t, adminID, fmt.Sprintf("/set %d preparing", orderID)).Text)

	assert.Equal(t, "Тариф обновлён: 200 ₽", h.say(t, adminID, "/tariff 200").Text)
	r = h.press(t, adminID, "adm:tariff")
	assert.Contains(t, r.Text, "200 ₽")
	assert.Contains(t, h.say(t, adminID, "/tariff 200000000000000000").Text, "Тариф должен быть от 0 до")
	assert.Equal(t, "Введите число, например 150.", h.say(t, adminID, "/tariff 99999999999999999999").Text)
	r = h.press(t, adminID, "adm:tariff")
	assert.Contains(t, r.Text, "200 ₽", "overflowing tariff is rejected")

	assert.Contains(t, h.say(t, adminID, "/refresh").Text, "Не удалось обновить каталог")
	assert.Contains(t, h.say(t, adminID, "/seturl ftp://x").Text, "Некорректный URL")
	assert.Contains(t, h.say(t, adminID, "/seturl https://example.com/c.json").Text, "сохранён")

	assert.Equal(t, fmt.Sprintf("SKU товара #%d: a-01", a), h.say(t, adminID, fmt.Sprintf("/sku %d a-01", a)).Text)
	b := h.seedProduct(t, "B", 100)
	assert.Contains(t, h.say(t, adminID, fmt.Sprintf("/sku %d a-01", b)).Text, "уже занят")
	assert.Equal(t, fmt.Sprintf("Порядок товара #%d: -1", b), h.say(t, adminID, fmt.Sprintf("/sort %d -1", b)).Text)

	r = h.say(t, adminID, "/catadd Напитки")
	assert.Contains(t, r.Text, "(napitki)")
	assert.Contains(t, h.say(t, adminID, "/categories").Text, "napitki · Напитки")
	assert.Equal(t, "Название слишком короткое.", h.say(t, adminID, "/catrename 1 Я").Text)

	assert.Contains(t, h.say(t, adminID, "/nope").Text, "Неизвестная команда")
}

func TestHelpAndDemoPayments(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.say(t, buyerID, bot.MenuHelp).Text, "/start")

	r := h.say(t, buyerID, bot.MenuPay)
	assert.Equal(t, []string{"demo_pay", "demo_status"}, buttonData(r))
	assert.True(t, h.press(t, buyerID, "demo_pay").Alert)
	assert.True(t, h.press(t, buyerID, "whatever").Alert)
	assert.Empty(t, h.send(t, bot.Event{PrincipalID: buyerID, Kind: bot.KindButton, Button: "noop"}))
}

func TestHandle_InvalidEvent(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.Handle(context.Background(), bot.Event{Kind: bot.KindText, Text: "hi"})
	assert.ErrorIs(t, err, bot.ErrInvalidEvent)

	_, err = h.d.Handle(context.Background(), bot.Event{PrincipalID: 1, Kind: bot.KindButton})
	assert.ErrorIs(t, err, bot.ErrInvalidEvent)

	_, err = h.d.Handle(context.Background(), bot.Event{PrincipalID: 1, Kind: "sticker"})
	assert.ErrorIs(t, err, bot.ErrInvalidEvent)
}

type brokenStates struct{ state.Store }

func (brokenStates) GetState(context.Context, int64) (state.State, error) {
	return state.StateNone, errors.New("redis: connection refused")
}

func TestHandle_TransientErrorBecomesReply(t *testing.T) {
	h := newHarnessWithStates(t, brokenStates{state.NewMemoryStore()})

	replies, err := h.d.Handle(context.Background(), bot.Event{PrincipalID: buyerID, Kind: bot.KindText, Text: bot.MenuCatalog})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "Попробуйте позже.", replies[0].Text)

	// кнопки, которым не нужно состояние диалога, продолжают работать
	r := h.press(t, 2, "demo_status")
	assert.Equal(t, "Демонстрация: заказ ожидает обработки.", r.Text)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0.00 ₽", bot.FormatRub(0))
	assert.Equal(t, "1234.05 ₽", bot.FormatRub(123405))
	assert.Equal(t, "-1.50 ₽", bot.FormatRub(-150))

	floor := "3"
	assert.Equal(t, "ул. Ленина, 1, этаж 3",
		bot.FormatAddress(model.AddressSnapshot{Line: "ул. Ленина, 1", Floor: &floor}))
}
