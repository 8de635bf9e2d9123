package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shopbot/internal/apperr"
	"shopbot/internal/database"
	"shopbot/internal/model"
)

func (c *Console) ListCategories(ctx context.Context) ([]model.Category, error) {
	return c.store.ListCategories(ctx)
}

// CreateCategory добавляет категорию со slug из названия (с суффиксом при совпадении).
func (c *Console) CreateCategory(ctx context.Context, title string) (*model.Category, error) {
	title = strings.TrimSpace(title)
	if !ValidTitle(title) {
		return nil, ErrInvalidTitle
	}

	base := Slugify(title)
	for attempt := 1; attempt <= maxSKUAttempts; attempt++ {
		slug := base
		if attempt > 1 {
			slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		id, err := c.store.CreateCategory(ctx, slug, title)
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &model.Category{ID: id, Slug: slug, Title: title}, nil
	}
	return nil, fmt.Errorf("не удалось подобрать свободный slug для %q", base)
}

func (c *Console) UpdateCategoryTitle(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if !ValidTitle(title) {
		return ErrInvalidTitle
	}
	return categoryErr(c.store.UpdateCategoryTitle(ctx, id, title))
}

// DeleteCategory удаляет пустую категорию. general и категории с товарами
// не удаляются.
func (c *Console) DeleteCategory(ctx context.Context, id int64) error {
	cat, err := c.store.GetCategory(ctx, id)
	if err != nil {
		return categoryErr(err)
	}
	if cat.Slug == model.GeneralCategorySlug {
		return fmt.Errorf("%w: служебная категория", ErrCategoryInUse)
	}

	n, err := c.store.CountProductsInCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: в категории %d товаров", ErrCategoryInUse, n)
	}
	return categoryErr(c.store.DeleteCategory(ctx, id))
}

func categoryErr(err error) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return ErrNoSuchCategory
	}
	return err
}
