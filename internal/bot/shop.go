package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"shopbot/internal/cart"
	"shopbot/internal/catalog"
	"shopbot/internal/identity"
	"shopbot/internal/model"
	"shopbot/internal/state"
)

const notRegistered = "Сначала зарегистрируйтесь: /start"

func (d *Dispatcher) onButton(ctx context.Context, ev Event) ([]Reply, error) {
	data := strings.TrimSpace(ev.Button)
	head, rest, _ := strings.Cut(data, ":")

	switch head {
	case "noop":
		return nil, nil
	case "plist":
		page, err := strconv.Atoi(rest)
		if err != nil || page < 1 {
			page = 1
		}
		return d.pagedCatalog(ctx, page)
	case "view":
		// view:<id>:p:<page>
		parts := strings.Split(rest, ":")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return staleButton()
		}
		page := 1
		if len(parts) == 3 && parts[1] == "p" {
			if p, err := strconv.Atoi(parts[2]); err == nil && p > 0 {
				page = p
			}
		}
		return d.viewProduct(ctx, id, page)
	case "add":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return staleButton()
		}
		return d.addToCart(ctx, ev, id)
	case "cart_clear":
		return d.clearCart(ctx, ev)
	case "checkout":
		return d.beginCheckout(ctx, ev)
	case "deliv":
		kind, ok := model.ParseDeliveryKind(rest)
		if !ok {
			return staleButton()
		}
		return d.chooseDelivery(ctx, ev, kind)
	case "confirm":
		kind, ok := model.ParseDeliveryKind(rest)
		if !ok {
			return staleButton()
		}
		return d.confirmOrder(ctx, ev, kind)
	case "demo_pay":
		return []Reply{alert("Демонстрация: оплата не подключена.")}, nil
	case "demo_status":
		return []Reply{alert("Демонстрация: заказ ожидает обработки.")}, nil
	case "adm":
		return d.onAdminButton(ctx, ev, rest)
	}
	return staleButton()
}

func staleButton() ([]Reply, error) {
	return []Reply{alert("Кнопка устарела. Откройте меню заново.")}, nil
}

func (d *Dispatcher) showCatalog(ctx context.Context, page int) ([]Reply, error) {
	p, err := d.catalog.ListPublic(ctx, catalog.Query{Page: page, PageSize: d.pageSize})
	if err != nil {
		return nil, err
	}
	if p.Total == 0 {
		return []Reply{text("Каталог пуст. Обратитесь к администратору.")}, nil
	}
	return []Reply{{Text: "Выберите товар:", Buttons: productListButtons(p)}}, nil
}

func (d *Dispatcher) pagedCatalog(ctx context.Context, page int) ([]Reply, error) {
	p, err := d.catalog.ListPublic(ctx, catalog.Query{Page: page, PageSize: d.pageSize})
	if err != nil {
		return nil, err
	}
	if p.Total == 0 {
		return []Reply{alert("Каталог пуст.")}, nil
	}
	return []Reply{{Text: "Выберите товар:", Buttons: productListButtons(p)}}, nil
}

func (d *Dispatcher) viewProduct(ctx context.Context, id int64, page int) ([]Reply, error) {
	p, err := d.catalog.GetByID(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) || (err == nil && !p.Available) {
		return []Reply{alert("Товар недоступен")}, nil
	}
	if err != nil {
		return nil, err
	}
	return []Reply{{
		Text:    fmt.Sprintf("📦 %s\nЦена: %s", p.Title, FormatRub(p.PriceMinor)),
		Photo:   p.PhotoFileID,
		Buttons: productButtons(p.ID, page),
	}}, nil
}

func (d *Dispatcher) addToCart(ctx context.Context, ev Event, id int64) ([]Reply, error) {
	p, err := d.catalog.GetByID(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return []Reply{alert("Товар недоступен")}, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = d.orders.AddProduct(ctx, ev.PrincipalID, p)
	switch {
	case errors.Is(err, cart.ErrProductUnavailable):
		return []Reply{alert("Товар недоступен")}, nil
	case errors.Is(err, cart.ErrUnknownPrincipal):
		return []Reply{alert(notRegistered)}, nil
	case err != nil:
		return nil, err
	}
	return []Reply{text("Добавлено в корзину")}, nil
}

// openCart - корзина участника или ответ с просьбой зарегистрироваться.
func (d *Dispatcher) openCart(ctx context.Context, ev Event) (int64, []Reply, error) {
	id, err := d.orders.GetOrCreateOpenCart(ctx, ev.PrincipalID)
	if errors.Is(err, cart.ErrUnknownPrincipal) {
		r := text(notRegistered)
		r.Alert = ev.Kind == KindButton
		return 0, []Reply{r}, nil
	}
	return id, nil, err
}

func (d *Dispatcher) showCart(ctx context.Context, ev Event) ([]Reply, error) {
	orderID, replies, err := d.openCart(ctx, ev)
	if replies != nil || err != nil {
		return replies, err
	}
	items, err := d.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Reply{text("Корзина пуста. Откройте «Каталог» и добавьте товары.")}, nil
	}

	totals := model.ComputeTotals(items, 0)
	lines := append([]string{"Корзина:"}, lineItems(items)...)
	lines = append(lines, "Итого по товарам: "+FormatRub(totals.SubtotalMinor))
	return []Reply{{Text: strings.Join(lines, "\n"), Buttons: cartButtons()}}, nil
}

func (d *Dispatcher) clearCart(ctx context.Context, ev Event) ([]Reply, error) {
	orderID, replies, err := d.openCart(ctx, ev)
	if replies != nil || err != nil {
		return replies, err
	}
	if err := d.orders.ClearCart(ctx, orderID); err != nil {
		return nil, err
	}

	p, err := d.catalog.ListPublic(ctx, catalog.Query{Page: 1, PageSize: d.pageSize})
	if err != nil {
		return nil, err
	}
	return []Reply{{Text: "Корзина очищена.", Buttons: productListButtons(p)}}, nil
}

func (d *Dispatcher) beginCheckout(ctx context.Context, ev Event) ([]Reply, error) {
	orderID, replies, err := d.openCart(ctx, ev)
	if replies != nil || err != nil {
		return replies, err
	}
	items, err := d.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Reply{alert("Корзина пуста.")}, nil
	}

	if _, err := d.orders.RecomputeTotals(ctx, orderID, 0); err != nil {
		return nil, err
	}
	fee, err := d.orders.CourierFee(ctx)
	if err != nil {
		return nil, err
	}
	return []Reply{{Text: "Выберите способ доставки:", Buttons: deliveryButtons(fee)}}, nil
}

func (d *Dispatcher) chooseDelivery(ctx context.Context, ev Event, kind model.DeliveryKind) ([]Reply, error) {
	orderID, replies, err := d.openCart(ctx, ev)
	if replies != nil || err != nil {
		return replies, err
	}

	var snapshot *model.AddressSnapshot
	if kind == model.DeliveryCourier {
		addr, err := d.identity.DefaultAddress(ctx, ev.PrincipalID)
		if err != nil {
			return nil, err
		}
		if addr == nil {
			return []Reply{alert("Сначала укажите адрес доставки в меню «Адрес доставки».")}, nil
		}
		snap := model.SnapshotOf(addr)
		snapshot = &snap
	}

	items, err := d.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Reply{alert("Корзина пуста.")}, nil
	}
	totals, err := d.orders.ChooseDelivery(ctx, orderID, kind)
	if err != nil {
		return nil, err
	}
	if err := d.states.UpdateScratch(ctx, ev.PrincipalID, state.Scratch{
		Checkout: &state.CheckoutDraft{Kind: kind, Address: snapshot},
	}); err != nil {
		return nil, err
	}

	lines := append([]string{"Заказ к подтверждению:"}, lineItems(items)...)
	lines = append(lines,
		"Товары: "+FormatRub(totals.SubtotalMinor),
		fmt.Sprintf("Доставка: %s (%s)", FormatRub(totals.DeliveryFeeMinor), deliveryTitle(kind)),
		"Итого: "+FormatRub(totals.TotalMinor),
	)
	if snapshot != nil {
		lines = append(lines, "Адрес: "+FormatAddress(*snapshot))
	}
	return []Reply{{Text: strings.Join(lines, "\n"), Buttons: confirmButtons(kind)}}, nil
}

func (d *Dispatcher) confirmOrder(ctx context.Context, ev Event, kind model.DeliveryKind) ([]Reply, error) {
	orderID, replies, err := d.openCart(ctx, ev)
	if replies != nil || err != nil {
		return replies, err
	}

	snapshot, err := d.checkoutAddress(ctx, ev.PrincipalID, kind)
	if err != nil {
		return nil, err
	}
	if kind == model.DeliveryCourier && snapshot == nil {
		return []Reply{alert("Сначала укажите адрес доставки в меню «Адрес доставки».")}, nil
	}

	// Повторное нажатие после оформления приходит в новую пустую корзину.
	items, err := d.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Reply{alert("Корзина пуста.")}, nil
	}
	if _, err := d.orders.ChooseDelivery(ctx, orderID, kind); err != nil {
		return nil, err
	}
	order, err := d.orders.Checkout(ctx, orderID, kind, snapshot)
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		return []Reply{alert("Корзина пуста.")}, nil
	case errors.Is(err, cart.ErrMissingAddress):
		return []Reply{alert("Сначала укажите адрес доставки в меню «Адрес доставки».")}, nil
	case err != nil:
		return nil, err
	}

	// снимок адреса больше не нужен; черновики других диалогов не трогаем
	if st, err := d.states.GetState(ctx, ev.PrincipalID); err == nil && st == state.StateNone {
		if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
			return nil, err
		}
	}

	return []Reply{{
		Text: fmt.Sprintf("Заказ #%d оформлен и отправлен на подтверждение.\nСтатус: %s.\nИтого к оплате: %s.",
			order.ID, order.Status, FormatRub(order.TotalMinor)),
		Buttons: paymentButtons("Оплатить онлайн (демо)", "Статус заказа (демо)"),
	}}, nil
}

// checkoutAddress - снимок, запомненный при выборе доставки, или текущий
// адрес по умолчанию, если черновик потерян.
func (d *Dispatcher) checkoutAddress(ctx context.Context, principalID int64, kind model.DeliveryKind) (*model.AddressSnapshot, error) {
	if kind != model.DeliveryCourier {
		return nil, nil
	}

	scratch, err := d.states.GetScratch(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if c := scratch.Checkout; c != nil && c.Kind == kind && c.Address != nil && !c.Address.Empty() {
		return c.Address, nil
	}

	addr, err := d.identity.DefaultAddress(ctx, principalID)
	if err != nil || addr == nil {
		return nil, err
	}
	snap := model.SnapshotOf(addr)
	return &snap, nil
}

func (d *Dispatcher) showProfile(ctx context.Context, ev Event) ([]Reply, error) {
	profile, err := d.identity.Profile(ctx, ev.PrincipalID)
	if errors.Is(err, identity.ErrNotRegistered) {
		return []Reply{text("Вы ещё не зарегистрированы. Нажмите /start.")}, nil
	}
	if err != nil {
		return nil, err
	}

	u := profile.User
	addrText := "Адрес не указан"
	if profile.Address != nil {
		addrText = FormatAddress(model.SnapshotOf(profile.Address))
	}
	status := "не подтверждён"
	if u.IsVerified {
		status = "подтверждён"
	}
	phone := u.Phone
	if phone == "" {
		phone = "не указан"
	}
	return []Reply{text(fmt.Sprintf("Профиль:\n- Имя: %s\n- Телефон: %s (%s)\n- Адрес по умолчанию: %s",
		u.Name, phone, status, addrText))}, nil
}
