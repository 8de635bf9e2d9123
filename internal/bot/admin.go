package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"shopbot/internal/admin"
	"shopbot/internal/cart"
	"shopbot/internal/logger"
	"shopbot/internal/model"
	"shopbot/internal/state"

	"go.uber.org/zap"
)

const adminListLimit = 50

const setUsage = "Использование: /set <order_id> <status>\n" +
	"Статусы: confirming, preparing, delivering, delivered, canceled"

func (d *Dispatcher) adminMenu(ev Event) ([]Reply, error) {
	if _, err := d.admins.Authorize(ev.PrincipalID); err != nil {
		return nil, err
	}
	return []Reply{{Text: "Админ-меню:", Buttons: adminButtons()}}, nil
}

func (d *Dispatcher) onAdminButton(ctx context.Context, ev Event, rest string) ([]Reply, error) {
	console, err := d.admins.Authorize(ev.PrincipalID)
	if err != nil {
		return nil, err
	}

	switch rest {
	case "back":
		return []Reply{{Text: "Админ-меню:", Buttons: adminButtons()}}, nil
	case "add_product":
		if err := d.states.UpdateScratch(ctx, ev.PrincipalID, state.Scratch{Product: &state.ProductDraft{}}); err != nil {
			return nil, err
		}
		if err := d.states.SetState(ctx, ev.PrincipalID, state.AdmTitle); err != nil {
			return nil, err
		}
		return []Reply{{Text: "Введите название товара (текстом):", Menu: cancelMenu()}}, nil
	case "list_products":
		return d.adminProducts(ctx, console, "Товары (последние 50):")
	case "orders":
		return d.adminOrders(ctx, console)
	case "tariff":
		fee, err := console.CourierFee(ctx)
		if err != nil {
			return nil, err
		}
		return []Reply{text(fmt.Sprintf("Текущий тариф курьера: %d ₽.\nОтправьте команду: /tariff <руб>", fee/100))}, nil
	}

	// prod:<id> или prod:<action>:<id>
	parts := strings.Split(rest, ":")
	if parts[0] != "prod" || len(parts) < 2 || len(parts) > 3 {
		return staleButton()
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return staleButton()
	}
	if len(parts) == 2 {
		p, err := console.Product(ctx, id)
		if err != nil {
			return nil, err
		}
		return []Reply{adminProductCard(p)}, nil
	}

	switch parts[1] {
	case "rename":
		return d.beginEdit(ctx, ev, id, state.AdmEditTitle, "Введите новое название товара:")
	case "price":
		return d.beginEdit(ctx, ev, id, state.AdmEditPrice, "Введите новую цену в рублях (целое число):")
	case "photo":
		return d.beginEdit(ctx, ev, id, state.AdmEditPhoto, "Пришлите новое фото для товара одним сообщением.")
	case "photo_del":
		if err := console.UpdatePhoto(ctx, id, ""); err != nil {
			return nil, err
		}
		return []Reply{alert("Фото удалено.")}, nil
	case "toggle":
		if _, err := console.ToggleAvailable(ctx, id); err != nil {
			return nil, err
		}
		p, err := console.Product(ctx, id)
		if err != nil {
			return nil, err
		}
		return []Reply{adminProductCard(p)}, nil
	case "delete":
		if err := console.DeleteProduct(ctx, id); err != nil {
			return nil, err
		}
		return d.adminProducts(ctx, console, "Товар удалён. Список:")
	}
	return staleButton()
}

func (d *Dispatcher) adminProducts(ctx context.Context, console *admin.Console, title string) ([]Reply, error) {
	products, err := console.ListProducts(ctx, adminListLimit)
	if err != nil {
		return nil, err
	}
	return []Reply{{Text: title, Buttons: adminProductsButtons(products)}}, nil
}

func (d *Dispatcher) adminOrders(ctx context.Context, console *admin.Console) ([]Reply, error) {
	orders, err := console.ActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []Reply{{Text: "Активных заказов нет.", Buttons: adminButtons()}}, nil
	}

	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		addr := "Самовывоз"
		if o.AddressSnapshot != nil && !o.AddressSnapshot.Empty() {
			addr = FormatAddress(*o.AddressSnapshot)
		}
		lines = append(lines, fmt.Sprintf("#%d | %s | %s | %s %s | %s",
			o.ID, o.Status, FormatRub(o.TotalMinor), o.CustomerName, o.CustomerPhone, addr))
	}
	return []Reply{{
		Text:    "Заказы:\n" + strings.Join(lines, "\n") + "\n\nСменить статус: /set <id> <status>",
		Buttons: adminButtons(),
	}}, nil
}

func (d *Dispatcher) beginEdit(ctx context.Context, ev Event, productID int64, st state.State, prompt string) ([]Reply, error) {
	if err := d.states.UpdateScratch(ctx, ev.PrincipalID, state.Scratch{Edit: &state.EditTarget{ProductID: productID}}); err != nil {
		return nil, err
	}
	if err := d.states.SetState(ctx, ev.PrincipalID, st); err != nil {
		return nil, err
	}
	return []Reply{{Text: prompt, Menu: cancelMenu()}}, nil
}

// stepConsole проверяет права на каждом шаге: список администраторов мог
// измениться, пока диалог ждал ввода.
func (d *Dispatcher) stepConsole(ctx context.Context, ev Event) (*admin.Console, error) {
	console, err := d.admins.Authorize(ev.PrincipalID)
	if err != nil {
		if clearErr := d.states.Clear(ctx, ev.PrincipalID); clearErr != nil {
			logger.L.Warn("Не удалось сбросить диалог", zap.Int64("principal_id", ev.PrincipalID), zap.Error(clearErr))
		}
		return nil, err
	}
	return console, nil
}

func (d *Dispatcher) addProductStep(ctx context.Context, ev Event, st state.State) ([]Reply, error) {
	console, err := d.stepConsole(ctx, ev)
	if err != nil {
		return nil, err
	}
	scratch, err := d.states.GetScratch(ctx, ev.PrincipalID)
	if err != nil {
		return nil, err
	}
	draft := state.ProductDraft{}
	if scratch.Product != nil {
		draft = *scratch.Product
	}
	msg := strings.TrimSpace(ev.Text)

	switch st {
	case state.AdmTitle:
		if !admin.ValidTitle(msg) {
			return []Reply{text("Название слишком короткое. Введите снова.")}, nil
		}
		draft.Title = msg
		return d.nextProductStep(ctx, ev.PrincipalID, draft, state.AdmPrice, "Введите цену в рублях (целое число), например 79:")
	case state.AdmPrice:
		price, ok := parseRub(msg)
		if !ok {
			return []Reply{text("Введите целое число больше нуля, например 79.")}, nil
		}
		draft.PriceMinor = price
		return d.nextProductStep(ctx, ev.PrincipalID, draft, state.AdmPhoto, "Отправьте фото товара одним сообщением или напишите «Пропустить».")
	}

	var photo string
	switch {
	case ev.Kind == KindPhoto:
		photo = ev.Photo
	case fold(msg) == fold("пропустить"), fold(msg) == "skip":
	default:
		return []Reply{text("Это не фото. Пришлите фото или напишите «Пропустить».")}, nil
	}

	if draft.Title == "" {
		if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
			return nil, err
		}
		return []Reply{{Text: "Черновик товара потерян. Начните заново.", Buttons: adminButtons()}}, nil
	}

	p, err := console.CreateProduct(ctx, 0, draft.Title, draft.PriceMinor, photo)
	if err != nil {
		return nil, err
	}
	if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
		return nil, err
	}
	return []Reply{{
		Text: fmt.Sprintf("Товар добавлен:\n- Название: %s\n- Цена: %s\n- SKU: %s\n- Фото: %s",
			p.Title, FormatRub(p.PriceMinor), p.SKU, yesNo(p.HasPhoto())),
		Buttons: adminButtons(),
	}}, nil
}

func (d *Dispatcher) nextProductStep(ctx context.Context, principalID int64, draft state.ProductDraft, next state.State, prompt string) ([]Reply, error) {
	if err := d.states.UpdateScratch(ctx, principalID, state.Scratch{Product: &draft}); err != nil {
		return nil, err
	}
	if err := d.states.SetState(ctx, principalID, next); err != nil {
		return nil, err
	}
	return []Reply{text(prompt)}, nil
}

func (d *Dispatcher) editProductStep(ctx context.Context, ev Event, st state.State) ([]Reply, error) {
	console, err := d.stepConsole(ctx, ev)
	if err != nil {
		return nil, err
	}
	scratch, err := d.states.GetScratch(ctx, ev.PrincipalID)
	if err != nil {
		return nil, err
	}
	if scratch.Edit == nil {
		if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
			return nil, err
		}
		return []Reply{{Text: "Товар для редактирования потерян. Откройте список товаров заново.", Buttons: adminButtons()}}, nil
	}
	id := scratch.Edit.ProductID
	msg := strings.TrimSpace(ev.Text)

	var done string
	switch st {
	case state.AdmEditTitle:
		if !admin.ValidTitle(msg) {
			return []Reply{text("Название слишком короткое. Введите снова.")}, nil
		}
		err, done = console.UpdateTitle(ctx, id, msg), "Название товара обновлено."
	case state.AdmEditPrice:
		price, ok := parseRub(msg)
		if !ok {
			return []Reply{text("Введите целое число больше нуля, например 79.")}, nil
		}
		err, done = console.UpdatePrice(ctx, id, price), "Цена обновлена."
	case state.AdmEditPhoto:
		if ev.Kind != KindPhoto {
			return []Reply{text("Это не фото. Пришлите фото одним сообщением или нажмите «Отмена».")}, nil
		}
		err, done = console.UpdatePhoto(ctx, id, ev.Photo), "Фото обновлено."
	}

	if clearErr := d.states.Clear(ctx, ev.PrincipalID); clearErr != nil {
		return nil, clearErr
	}
	if err != nil {
		return nil, err
	}
	return []Reply{{Text: done, Buttons: adminButtons()}}, nil
}

func (d *Dispatcher) onCommand(ctx context.Context, ev Event, msg string) ([]Reply, error) {
	name := command(msg)
	args := strings.Fields(msg)[1:]

	switch name {
	case "/set", "/tariff", "/seturl", "/refresh", "/sku", "/sort",
		"/categories", "/catadd", "/catrename", "/catdel":
	default:
		return []Reply{text("Неизвестная команда. Список команд: «Помощь».")}, nil
	}

	console, err := d.admins.Authorize(ev.PrincipalID)
	if err != nil {
		return nil, err
	}

	switch name {
	case "/set":
		return d.cmdSetStatus(ctx, console, args)
	case "/tariff":
		if len(args) != 1 {
			return []Reply{text("Использование: /tariff <руб>, например /tariff 150")}, nil
		}
		digits := digitsOnly(args[0])
		rub, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return []Reply{text("Введите число, например 150.")}, nil
		}
		if err := console.SetCourierFeeRub(ctx, rub); err != nil {
			if errors.Is(err, admin.ErrInvalidPrice) {
				return []Reply{text(fmt.Sprintf("Тариф должен быть от 0 до %d ₽.", admin.MaxPriceRub))}, nil
			}
			return nil, err
		}
		return []Reply{text(fmt.Sprintf("Тариф обновлён: %d ₽", rub))}, nil
	case "/seturl":
		if len(args) != 1 {
			return []Reply{text("Использование: /seturl <URL>")}, nil
		}
		if err := console.SetCatalogURL(ctx, args[0]); err != nil {
			if errors.Is(err, admin.ErrInvalidURL) {
				return []Reply{text("Некорректный URL. Нужен адрес вида https://example.com/catalog.json")}, nil
			}
			return nil, err
		}
		return []Reply{text("URL каталога сохранён. Обновить каталог: /refresh")}, nil
	case "/refresh":
		res, err := console.RefreshCatalog(ctx)
		if err != nil {
			logger.L.Error("Ошибка обновления каталога", zap.Error(err))
			return []Reply{text("Не удалось обновить каталог. Проверьте источник и попробуйте ещё раз.")}, nil
		}
		return []Reply{text(fmt.Sprintf("Каталог обновлён из %s: категорий %d, товаров %d.",
			res.Source, res.Categories, res.Products))}, nil
	case "/sku":
		id, ok := argID(args, 2)
		if !ok {
			return []Reply{text("Использование: /sku <id> <sku>")}, nil
		}
		err := console.RenameSKU(ctx, id, args[1])
		if errors.Is(err, admin.ErrSKUTaken) {
			return []Reply{text(fmt.Sprintf("SKU %s уже занят другим товаром.", args[1]))}, nil
		}
		if err != nil {
			return nil, err
		}
		return []Reply{text(fmt.Sprintf("SKU товара #%d: %s", id, args[1]))}, nil
	case "/sort":
		id, ok := argID(args, 2)
		if !ok {
			return []Reply{text("Использование: /sort <id> <n>")}, nil
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return []Reply{text("Порядок должен быть целым числом.")}, nil
		}
		if err := console.UpdateSortOrder(ctx, id, n); err != nil {
			return nil, err
		}
		return []Reply{text(fmt.Sprintf("Порядок товара #%d: %d", id, n))}, nil
	}
	return d.categoryCommand(ctx, console, name, args)
}

func (d *Dispatcher) cmdSetStatus(ctx context.Context, console *admin.Console, args []string) ([]Reply, error) {
	if len(args) != 2 {
		return []Reply{text(setUsage)}, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return []Reply{text("order_id должен быть числом.")}, nil
	}
	status, ok := model.ParseAdminStatus(args[1])
	if !ok {
		return []Reply{text("Неверный статус.\n" + setUsage)}, nil
	}

	_, err = console.SetOrderStatus(ctx, id, status)
	switch {
	case errors.Is(err, cart.ErrOrderNotFound):
		return []Reply{text(fmt.Sprintf("Заказ #%d не найден.", id))}, nil
	case errors.Is(err, cart.ErrNotCheckedOut):
		return []Reply{text(fmt.Sprintf("Заказ #%d ещё не оформлен.", id))}, nil
	case err != nil:
		return nil, err
	}
	return []Reply{text(fmt.Sprintf("Статус заказа #%d изменён на %s.", id, status))}, nil
}

func (d *Dispatcher) categoryCommand(ctx context.Context, console *admin.Console, name string, args []string) ([]Reply, error) {
	switch name {
	case "/categories":
		cats, err := console.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		lines := []string{"Категории:"}
		for _, c := range cats {
			lines = append(lines, fmt.Sprintf("#%d %s · %s", c.ID, c.Slug, c.Title))
		}
		return []Reply{text(strings.Join(lines, "\n"))}, nil
	case "/catadd":
		if len(args) == 0 {
			return []Reply{text("Использование: /catadd <название>")}, nil
		}
		c, err := console.CreateCategory(ctx, strings.Join(args, " "))
		if err != nil {
			return nil, err
		}
		return []Reply{text(fmt.Sprintf("Категория добавлена: #%d %s (%s)", c.ID, c.Title, c.Slug))}, nil
	case "/catrename":
		id, ok := argID(args, 2)
		if !ok {
			return []Reply{text("Использование: /catrename <id> <название>")}, nil
		}
		if err := console.UpdateCategoryTitle(ctx, id, strings.Join(args[1:], " ")); err != nil {
			return nil, err
		}
		return []Reply{text("Категория переименована.")}, nil
	case "/catdel":
		id, ok := argID(args, 1)
		if !ok {
			return []Reply{text("Использование: /catdel <id>")}, nil
		}
		err := console.DeleteCategory(ctx, id)
		if errors.Is(err, admin.ErrCategoryInUse) {
			return []Reply{text("Категорию нельзя удалить: в ней есть товары или она служебная.")}, nil
		}
		if err != nil {
			return nil, err
		}
		return []Reply{text("Категория удалена.")}, nil
	}
	return []Reply{text("Неизвестная команда. Список команд: «Помощь».")}, nil
}

// argID разбирает id из первого аргумента; аргументов должно быть не меньше minArgs.
func argID(args []string, minArgs int) (int64, bool) {
	if len(args) < minArgs {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseRub оставляет только цифры и переводит рубли в копейки. Ноль не принимается.
func parseRub(s string) (int64, bool) {
	rub, err := strconv.ParseInt(digitsOnly(s), 10, 64)
	if err != nil || rub <= 0 || rub > admin.MaxPriceRub {
		return 0, false
	}
	return rub * 100, true
}
