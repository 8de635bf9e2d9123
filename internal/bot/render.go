package bot

import (
	"fmt"
	"strconv"
	"strings"

	"shopbot/internal/catalog"
	"shopbot/internal/model"
)

// Тексты постоянного меню.
const (
	MenuCatalog = "Каталог"
	MenuCart    = "Корзина"
	MenuAddress = "Адрес доставки"
	MenuProfile = "Мой профиль"
	MenuHelp    = "Помощь"
	MenuPay     = "Оплатить онлайн"
	MenuAdmin   = "Админ"
	MenuCancel  = "Отмена"
)

const helpText = "Помощь:\n" +
	"- /start - начать, регистрация (имя и телефон).\n" +
	"- Каталог - выбирайте товары и добавляйте в корзину.\n" +
	"- Корзина - просмотр и оформление.\n" +
	"- Адрес доставки - сохраните адрес для курьера.\n" +
	"- Оплатить онлайн - демо-кнопки, без реального списания.\n" +
	"Статусы заказа: confirming → preparing → delivering → delivered.\n" +
	"Админ-команды: /set <id> <status>, /tariff <руб>, /seturl <URL>, /refresh, " +
	"/sku <id> <sku>, /sort <id> <n>, /categories, /catadd <название>, " +
	"/catrename <id> <название>, /catdel <id>"

// FormatRub форматирует сумму в копейках как "123.45 ₽".
func FormatRub(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d ₽", sign, minor/100, minor%100)
}

// FormatAddress собирает адрес в одну строку, пропуская пустые части.
func FormatAddress(a model.AddressSnapshot) string {
	parts := []string{a.Line}
	add := func(prefix string, v *string) {
		if v != nil && *v != "" {
			parts = append(parts, prefix+*v)
		}
	}
	add("кв/оф ", a.Apt)
	add("подъезд ", a.Entrance)
	add("этаж ", a.Floor)
	add("коммент: ", a.Comment)

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func mainMenu(isAdmin bool) [][]string {
	menu := [][]string{
		{MenuCatalog, MenuCart},
		{MenuAddress, MenuProfile},
		{MenuPay, MenuHelp},
	}
	if isAdmin {
		menu = append(menu, []string{MenuAdmin})
	}
	return menu
}

func cancelMenu() [][]string {
	return [][]string{{MenuCancel}}
}

func contactPrompt(s string) Reply {
	return Reply{Text: s, Menu: cancelMenu(), RequestContact: true}
}

func lineItems(items []model.OrderItem) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("- %s x%d = %s", it.Title, it.Qty, FormatRub(it.LineTotal())))
	}
	return lines
}

func productListButtons(page catalog.Page) [][]Button {
	rows := make([][]Button, 0, len(page.Items)+1)
	for _, p := range page.Items {
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("🔍 %s · %d ₽", p.Title, p.PriceMinor/100),
			Data: fmt.Sprintf("view:%d:p:%d", p.ID, page.Page),
		}})
	}

	var nav []Button
	if page.Page > 1 {
		nav = append(nav, Button{Text: "⬅️ Назад", Data: "plist:" + strconv.Itoa(page.Page-1)})
	}
	if page.Page < page.Pages() {
		nav = append(nav, Button{Text: "Вперёд ➡️", Data: "plist:" + strconv.Itoa(page.Page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	if len(rows) == 0 {
		rows = append(rows, []Button{{Text: "Каталог пуст", Data: "noop"}})
	}
	return rows
}

func productButtons(id int64, page int) [][]Button {
	return [][]Button{
		{{Text: "Добавить в корзину", Data: fmt.Sprintf("add:%d", id)}},
		{{Text: "Назад к списку", Data: "plist:" + strconv.Itoa(page)}},
	}
}

func cartButtons() [][]Button {
	return [][]Button{
		{{Text: "Оформить заказ", Data: "checkout"}},
		{{Text: "Очистить корзину", Data: "cart_clear"}},
		{{Text: "Назад к каталогу", Data: "plist:1"}},
	}
}

func deliveryButtons(courierFeeMinor int64) [][]Button {
	return [][]Button{
		{{Text: "Самовывоз (0 ₽)", Data: "deliv:pickup"}},
		{{Text: fmt.Sprintf("Курьер (%d ₽ по городу)", courierFeeMinor/100), Data: "deliv:courier"}},
	}
}

func confirmButtons(kind model.DeliveryKind) [][]Button {
	return [][]Button{
		{{Text: "Подтвердить заказ", Data: "confirm:" + string(kind)}},
		{{Text: "Назад к каталогу", Data: "plist:1"}},
	}
}

func paymentButtons(payText, statusText string) [][]Button {
	return [][]Button{
		{{Text: payText, Data: "demo_pay"}},
		{{Text: statusText, Data: "demo_status"}},
	}
}

func adminButtons() [][]Button {
	return [][]Button{
		{{Text: "Добавить товар", Data: "adm:add_product"}},
		{{Text: "Список товаров", Data: "adm:list_products"}},
		{{Text: "Заказы в работе", Data: "adm:orders"}},
		{{Text: "Тариф доставки", Data: "adm:tariff"}},
	}
}

func onOff(available bool) string {
	if available {
		return "ON"
	}
	return "OFF"
}

func yesNo(v bool) string {
	if v {
		return "есть"
	}
	return "нет"
}

func adminProductsButtons(products []model.Product) [][]Button {
	rows := make([][]Button, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("#%d %s · %d ₽ [%s]", p.ID, p.Title, (p.PriceMinor+50)/100, onOff(p.Available)),
			Data: fmt.Sprintf("adm:prod:%d", p.ID),
		}})
	}
	if len(rows) == 0 {
		rows = append(rows, []Button{{Text: "Нет товаров", Data: "noop"}})
	}
	return append(rows, []Button{{Text: "Назад (Админ)", Data: "adm:back"}})
}

func adminProductCard(p *model.Product) Reply {
	toggle := "Включить (ON)"
	if p.Available {
		toggle = "Выключить (OFF)"
	}
	id := strconv.FormatInt(p.ID, 10)
	return Reply{
		Text: fmt.Sprintf("Товар #%d\nНазвание: %s\nSKU: %s\nЦена: %s\nФото: %s\nСтатус: %s",
			p.ID, p.Title, p.SKU, FormatRub(p.PriceMinor), yesNo(p.HasPhoto()), onOff(p.Available)),
		Buttons: [][]Button{
			{{Text: "Изменить название", Data: "adm:prod:rename:" + id}},
			{{Text: "Изменить цену", Data: "adm:prod:price:" + id}},
			{{Text: "Изменить картинку", Data: "adm:prod:photo:" + id}},
			{{Text: "Удалить картинку", Data: "adm:prod:photo_del:" + id}},
			{{Text: toggle, Data: "adm:prod:toggle:" + id}},
			{{Text: "Удалить товар навсегда", Data: "adm:prod:delete:" + id}},
			{{Text: "Назад к списку", Data: "adm:list_products"}},
		},
	}
}

func deliveryTitle(kind model.DeliveryKind) string {
	if kind == model.DeliveryCourier {
		return "Курьер"
	}
	return "Самовывоз"
}
