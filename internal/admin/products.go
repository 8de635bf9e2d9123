package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"shopbot/internal/apperr"
	"shopbot/internal/database"
	"shopbot/internal/logger"
	"shopbot/internal/model"

	"go.uber.org/zap"
)

const (
	// MinTitleLength - минимальная длина названия товара или категории.
	MinTitleLength = 2
	maxSKUAttempts = 1000
)

// ValidTitle - не короче MinTitleLength символов без пробелов по краям.
func ValidTitle(title string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(title)) >= MinTitleLength
}

// CreateProduct добавляет товар. SKU выводится из названия, при совпадении
// добавляется суффикс -2, -3 и так далее. categoryID 0 - категория general.
func (c *Console) CreateProduct(ctx context.Context, categoryID int64, title string, priceMinor int64, photoFileID string) (*model.Product, error) {
	title = strings.TrimSpace(title)
	if !ValidTitle(title) {
		return nil, ErrInvalidTitle
	}
	if !validPrice(priceMinor) {
		return nil, ErrInvalidPrice
	}

	if categoryID == 0 {
		id, err := c.store.EnsureCategory(ctx, model.GeneralCategorySlug, model.GeneralCategoryTitle)
		if err != nil {
			return nil, err
		}
		categoryID = id
	}

	base := Slugify(title)
	p := model.Product{
		CategoryID:  categoryID,
		Title:       title,
		PriceMinor:  priceMinor,
		Available:   true,
		PhotoFileID: photoFileID,
	}
	for attempt := 1; attempt <= maxSKUAttempts; attempt++ {
		p.SKU = base
		if attempt > 1 {
			p.SKU = fmt.Sprintf("%s-%d", base, attempt)
		}
		id, err := c.store.CreateProduct(ctx, p)
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		p.ID = id
		logger.L.Info("Товар добавлен",
			zap.Int64("admin", c.principalID),
			zap.Int64("product_id", id),
			zap.String("sku", p.SKU))
		return &p, nil
	}
	return nil, fmt.Errorf("не удалось подобрать свободный SKU для %q", base)
}

func (c *Console) Product(ctx context.Context, id int64) (*model.Product, error) {
	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return nil, productErr(err)
	}
	return p, nil
}

// ListProducts - все товары, включая скрытые.
func (c *Console) ListProducts(ctx context.Context, limit int) ([]model.Product, error) {
	return c.store.ListProducts(ctx, limit)
}

func (c *Console) UpdateTitle(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if !ValidTitle(title) {
		return ErrInvalidTitle
	}
	return c.mutated(ctx, id, c.store.UpdateProductTitle(ctx, id, title))
}

func (c *Console) UpdatePrice(ctx context.Context, id int64, priceMinor int64) error {
	if !validPrice(priceMinor) {
		return ErrInvalidPrice
	}
	return c.mutated(ctx, id, c.store.UpdateProductPrice(ctx, id, priceMinor))
}

func validPrice(priceMinor int64) bool {
	return priceMinor >= 0 && priceMinor <= MaxPriceRub*100
}

// UpdatePhoto с пустым идентификатором удаляет фото.
func (c *Console) UpdatePhoto(ctx context.Context, id int64, photoFileID string) error {
	return c.mutated(ctx, id, c.store.UpdateProductPhoto(ctx, id, photoFileID))
}

func (c *Console) UpdateSortOrder(ctx context.Context, id int64, sortOrder int) error {
	return c.mutated(ctx, id, c.store.UpdateProductSortOrder(ctx, id, sortOrder))
}

func (c *Console) SetAvailable(ctx context.Context, id int64, available bool) error {
	return c.mutated(ctx, id, c.store.SetProductAvailable(ctx, id, available))
}

// ToggleAvailable инвертирует доступность и возвращает новое значение.
func (c *Console) ToggleAvailable(ctx context.Context, id int64) (bool, error) {
	available, err := c.store.ToggleProductAvailable(ctx, id)
	return available, c.mutated(ctx, id, err)
}

// RenameSKU задаёт товару новый SKU. Занятый другим товаром - ErrSKUTaken.
func (c *Console) RenameSKU(ctx context.Context, id int64, sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" || strings.ContainsAny(sku, " \t\n") {
		return ErrInvalidSKU
	}
	err := c.store.UpdateProductSKU(ctx, id, sku)
	if errors.Is(err, database.ErrDuplicate) {
		return ErrSKUTaken
	}
	return c.mutated(ctx, id, err)
}

// DeleteProduct удаляет товар. Позиции заказов сохраняют свой снимок.
func (c *Console) DeleteProduct(ctx context.Context, id int64) error {
	return c.mutated(ctx, id, c.store.DeleteProduct(ctx, id))
}

// mutated сбрасывает кэш после успешного изменения товара.
func (c *Console) mutated(ctx context.Context, id int64, err error) error {
	if err != nil {
		return productErr(err)
	}
	c.catalog.Invalidate(ctx, id)
	return nil
}

func productErr(err error) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return ErrNoSuchProduct
	}
	return err
}
