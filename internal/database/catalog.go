package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shopbot/internal/model"
)

// likeEscaper экранирует служебные символы LIKE; парный ESCAPE '\' в запросе.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

const productColumns = `id, category_id, sku, title, price_minor, available, COALESCE(photo_file_id, '') AS photo_file_id, sort_order`

// ListPublicProducts возвращает страницу доступных товаров и их общее количество.
func (s *sqlStorage) ListPublicProducts(ctx context.Context, f ProductFilter, limit, offset int) ([]model.Product, int, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ListPublicProducts")
	defer span.End()

	where := []string{"available = ?"}
	args := []any{true}
	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(f.Search)) + "%"
		where = append(where, `(LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(sku) LIKE LOWER(?) ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.CategoryID > 0 {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(*) FROM products WHERE `+cond), args...); err != nil {
		return nil, 0, s.fail("count_products", "ошибка подсчёта товаров", err)
	}

	query := s.q(`SELECT ` + productColumns + ` FROM products WHERE ` + cond +
		` ORDER BY sort_order ASC, id DESC LIMIT ? OFFSET ?`)
	products := []model.Product{}
	if err := s.db.SelectContext(ctx, &products, query, append(args, limit, offset)...); err != nil {
		return nil, 0, s.fail("list_products", "ошибка получения каталога", err)
	}
	return products, total, nil
}

// ListProducts возвращает все товары (включая недоступные) для админки и
// прогрева кэша. limit <= 0 - без ограничения.
func (s *sqlStorage) ListProducts(ctx context.Context, limit int) ([]model.Product, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ListProducts")
	defer span.End()

	query := `SELECT ` + productColumns + ` FROM products ORDER BY sort_order ASC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	products := []model.Product{}
	if err := s.db.SelectContext(ctx, &products, s.q(query), args...); err != nil {
		return nil, s.fail("list_all_products", "ошибка получения товаров", err)
	}
	return products, nil
}

func (s *sqlStorage) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetProduct")
	defer span.End()

	var p model.Product
	if err := s.db.GetContext(ctx, &p, s.q(`SELECT `+productColumns+` FROM products WHERE id = ?`), id); err != nil {
		return nil, s.fail("get_product", fmt.Sprintf("не удалось получить товар %d", id), err)
	}
	return &p, nil
}

func (s *sqlStorage) GetProductBySKU(ctx context.Context, sku string) (*model.Product, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetProductBySKU")
	defer span.End()

	var p model.Product
	if err := s.db.GetContext(ctx, &p, s.q(`SELECT `+productColumns+` FROM products WHERE sku = ?`), sku); err != nil {
		return nil, s.fail("get_product", fmt.Sprintf("не удалось получить товар %q", sku), err)
	}
	return &p, nil
}

// CreateProduct вставляет товар. Занятый SKU - ErrDuplicate.
func (s *sqlStorage) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.CreateProduct")
	defer span.End()

	query := s.q(`
        INSERT INTO products (category_id, sku, title, price_minor, available, photo_file_id, sort_order)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        RETURNING id`)
	var id int64
	if err := s.db.GetContext(ctx, &id, query, p.CategoryID, p.SKU, p.Title, p.PriceMinor, p.Available, nullString(p.PhotoFileID), p.SortOrder); err != nil {
		return 0, s.fail("create_product", "не удалось создать товар", err)
	}
	return id, nil
}

// UpsertProductBySKU используется синхронизацией каталога: фото и порядок
// сортировки, выставленные администратором, не перезаписываются.
func (s *sqlStorage) UpsertProductBySKU(ctx context.Context, p model.Product) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.UpsertProductBySKU")
	defer span.End()

	query := s.q(`
        INSERT INTO products (category_id, sku, title, price_minor, available, sort_order)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (sku) DO UPDATE SET
            category_id = excluded.category_id,
            title = excluded.title,
            price_minor = excluded.price_minor,
            available = excluded.available
        RETURNING id`)
	var id int64
	if err := s.db.GetContext(ctx, &id, query, p.CategoryID, p.SKU, p.Title, p.PriceMinor, p.Available, p.SortOrder); err != nil {
		return 0, s.fail("upsert_product", fmt.Sprintf("не удалось сохранить товар %q", p.SKU), err)
	}
	return id, nil
}

func (s *sqlStorage) updateProduct(ctx context.Context, column string, id int64, value any) error {
	ctx, span := s.tracer.Start(ctx, "DB.UpdateProduct."+column)
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE products SET `+column+` = ? WHERE id = ?`), value, id)
	return s.exactlyOne("update_product", fmt.Sprintf("не удалось обновить товар %d", id), res, err)
}

func (s *sqlStorage) UpdateProductTitle(ctx context.Context, id int64, title string) error {
	return s.updateProduct(ctx, "title", id, title)
}

func (s *sqlStorage) UpdateProductPrice(ctx context.Context, id int64, priceMinor int64) error {
	return s.updateProduct(ctx, "price_minor", id, priceMinor)
}

// UpdateProductPhoto с пустым идентификатором удаляет фото.
func (s *sqlStorage) UpdateProductPhoto(ctx context.Context, id int64, photoFileID string) error {
	return s.updateProduct(ctx, "photo_file_id", id, nullString(photoFileID))
}

func (s *sqlStorage) UpdateProductSortOrder(ctx context.Context, id int64, sortOrder int) error {
	return s.updateProduct(ctx, "sort_order", id, sortOrder)
}

func (s *sqlStorage) UpdateProductSKU(ctx context.Context, id int64, sku string) error {
	return s.updateProduct(ctx, "sku", id, sku)
}

func (s *sqlStorage) SetProductAvailable(ctx context.Context, id int64, available bool) error {
	return s.updateProduct(ctx, "available", id, available)
}

// ToggleProductAvailable инвертирует доступность одним запросом и возвращает новое значение.
func (s *sqlStorage) ToggleProductAvailable(ctx context.Context, id int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ToggleProductAvailable")
	defer span.End()

	var available bool
	query := s.q(`UPDATE products SET available = NOT available WHERE id = ? RETURNING available`)
	if err := s.db.GetContext(ctx, &available, query, id); err != nil {
		return false, s.fail("toggle_product", fmt.Sprintf("не удалось переключить товар %d", id), err)
	}
	return available, nil
}

// DeleteProduct удаляет товар. Позиции заказов хранят свой снимок и не затрагиваются.
func (s *sqlStorage) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "DB.DeleteProduct")
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM products WHERE id = ?`), id)
	return s.exactlyOne("delete_product", fmt.Sprintf("не удалось удалить товар %d", id), res, err)
}

func (s *sqlStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ListCategories")
	defer span.End()

	categories := []model.Category{}
	if err := s.db.SelectContext(ctx, &categories, `SELECT id, slug, title FROM categories ORDER BY id`); err != nil {
		return nil, s.fail("list_categories", "ошибка получения категорий", err)
	}
	return categories, nil
}

func (s *sqlStorage) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetCategory")
	defer span.End()

	var c model.Category
	if err := s.db.GetContext(ctx, &c, s.q(`SELECT id, slug, title FROM categories WHERE id = ?`), id); err != nil {
		return nil, s.fail("get_category", fmt.Sprintf("не удалось получить категорию %d", id), err)
	}
	return &c, nil
}

// CreateCategory вставляет категорию. Занятый slug - ErrDuplicate.
func (s *sqlStorage) CreateCategory(ctx context.Context, slug, title string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.CreateCategory")
	defer span.End()

	var id int64
	query := s.q(`INSERT INTO categories (slug, title) VALUES (?, ?) RETURNING id`)
	if err := s.db.GetContext(ctx, &id, query, slug, title); err != nil {
		return 0, s.fail("create_category", "не удалось создать категорию", err)
	}
	return id, nil
}

// UpsertCategory создаёт категорию или обновляет её название по slug.
func (s *sqlStorage) UpsertCategory(ctx context.Context, slug, title string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.UpsertCategory")
	defer span.End()

	var id int64
	query := s.q(`
        INSERT INTO categories (slug, title) VALUES (?, ?)
        ON CONFLICT (slug) DO UPDATE SET title = excluded.title
        RETURNING id`)
	if err := s.db.GetContext(ctx, &id, query, slug, title); err != nil {
		return 0, s.fail("upsert_category", fmt.Sprintf("не удалось сохранить категорию %q", slug), err)
	}
	return id, nil
}

// EnsureCategory возвращает id категории, создавая её только при отсутствии.
func (s *sqlStorage) EnsureCategory(ctx context.Context, slug, title string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.EnsureCategory")
	defer span.End()

	insert := s.q(`INSERT INTO categories (slug, title) VALUES (?, ?) ON CONFLICT (slug) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, insert, slug, title); err != nil {
		return 0, s.fail("ensure_category", "не удалось создать категорию", err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, s.q(`SELECT id FROM categories WHERE slug = ?`), slug); err != nil {
		return 0, s.fail("ensure_category", "не удалось получить категорию", err)
	}
	return id, nil
}

func (s *sqlStorage) UpdateCategoryTitle(ctx context.Context, id int64, title string) error {
	ctx, span := s.tracer.Start(ctx, "DB.UpdateCategoryTitle")
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE categories SET title = ? WHERE id = ?`), title, id)
	return s.exactlyOne("update_category", fmt.Sprintf("не удалось переименовать категорию %d", id), res, err)
}

func (s *sqlStorage) CountProductsInCategory(ctx context.Context, id int64) (int, error) {
	ctx, span := s.tracer.Start(ctx, "DB.CountProductsInCategory")
	defer span.End()

	var n int
	if err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM products WHERE category_id = ?`), id); err != nil {
		return 0, s.fail("count_category", "ошибка подсчёта товаров категории", err)
	}
	return n, nil
}

func (s *sqlStorage) DeleteCategory(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "DB.DeleteCategory")
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM categories WHERE id = ?`), id)
	return s.exactlyOne("delete_category", fmt.Sprintf("не удалось удалить категорию %d", id), res, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
