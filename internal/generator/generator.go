// Package generator создает тестовые данные: каталог для seed и поток
// событий участников для продюсера.
package generator

import (
	"fmt"
	"math"
	"strconv"

	"shopbot/internal/admin"
	"shopbot/internal/bot"
	"shopbot/internal/catalog"

	"github.com/brianvoe/gofakeit/v6"
)

// Generator - детерминированный при одинаковом seed источник данных.
type Generator struct {
	faker *gofakeit.Faker
}

// New создает генератор. seed == 0 - случайный.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Catalog генерирует документ каталога с уникальными slug и SKU.
func (g *Generator) Catalog(categories, itemsPerCategory int) catalog.Document {
	doc := catalog.Document{}
	slugs := make(map[string]int)
	skus := make(map[string]int)

	for i := 0; i < categories; i++ {
		title := g.faker.ProductCategory()
		cat := catalog.CategoryDoc{
			Slug:  unique(slugs, admin.Slugify(title)),
			Title: title,
		}
		for j := 0; j < itemsPerCategory; j++ {
			name := g.faker.ProductName()
			available := g.faker.Number(1, 10) > 1 // ~10% товаров скрыты
			cat.Items = append(cat.Items, catalog.ItemDoc{
				SKU:       unique(skus, admin.Slugify(name)),
				Title:     name,
				PriceRub:  math.Round(g.faker.Price(50, 3000)*100) / 100,
				Available: &available,
			})
		}
		doc.Categories = append(doc.Categories, cat)
	}
	return doc
}

func unique(seen map[string]int, base string) string {
	seen[base]++
	if n := seen[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

// Phone - случайный российский мобильный номер в формате +79XXXXXXXXX.
func (g *Generator) Phone() string {
	return "+79" + g.faker.Numerify("#########")
}

// Script - типовой сценарий участника: регистрация, каталог, корзина.
// Коды OTP неизвестны генератору, поэтому шаг подтверждения отправляет
// случайный код и проверяет обработку ошибок.
func (g *Generator) Script(principalID int64) []bot.Event {
	text := func(s string) bot.Event {
		return bot.Event{PrincipalID: principalID, Kind: bot.KindText, Text: s}
	}
	button := func(data string) bot.Event {
		return bot.Event{PrincipalID: principalID, Kind: bot.KindButton, Button: data}
	}

	start := text("/start")
	start.Name = g.faker.FirstName()
	return []bot.Event{
		start,
		text(start.Name),
		{PrincipalID: principalID, Kind: bot.KindContact, ContactPhone: g.Phone()},
		text(g.faker.Numerify("####")),
		text(bot.MenuCatalog),
		button("plist:" + strconv.Itoa(g.faker.Number(1, 3))),
		text(bot.MenuCart),
		text(bot.MenuHelp),
		text("/cancel"),
	}
}

// Event - одиночное случайное событие для нагрузочного потока.
func (g *Generator) Event(maxPrincipal int64) bot.Event {
	if maxPrincipal < 1 {
		maxPrincipal = 1
	}
	id := int64(g.faker.Number(1, int(maxPrincipal)))

	switch g.faker.Number(0, 5) {
	case 0:
		return bot.Event{PrincipalID: id, Kind: bot.KindText, Text: "/start", Name: g.faker.FirstName()}
	case 1:
		return bot.Event{PrincipalID: id, Kind: bot.KindContact, ContactPhone: g.Phone()}
	case 2:
		return bot.Event{PrincipalID: id, Kind: bot.KindButton, Button: "plist:1"}
	case 3:
		return bot.Event{PrincipalID: id, Kind: bot.KindText, Text: bot.MenuCart}
	case 4:
		return bot.Event{PrincipalID: id, Kind: bot.KindText, Text: g.faker.RandomString([]string{
			bot.MenuCatalog, bot.MenuProfile, bot.MenuHelp, bot.MenuAddress,
		})}
	default:
		return bot.Event{PrincipalID: id, Kind: bot.KindText, Text: g.faker.Street()}
	}
}
