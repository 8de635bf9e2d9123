package database

import (
	"context"
	"fmt"
	"time"

	"shopbot/internal/model"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, status, COALESCE(delivery_type, '') AS delivery_type, delivery_fee_minor,
            subtotal_minor, total_minor, address_snapshot, created_at`

// OpenCart возвращает открытую корзину пользователя, создавая её при
// отсутствии. Частичный уникальный индекс по (user_id) WHERE status = 'cart'
// сводит конкурентные вызовы к одной строке.
func (s *sqlStorage) OpenCart(ctx context.Context, userID int64, now time.Time) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "DB.OpenCart")
	defer span.End()

	find := s.q(`SELECT id FROM orders WHERE user_id = ? AND status = ? ORDER BY id DESC LIMIT 1`)

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, find, userID, model.StatusCart); err != nil {
		return 0, s.fail("open_cart", "ошибка поиска корзины", err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	insert := s.q(`
        INSERT INTO orders (user_id, status, delivery_fee_minor, subtotal_minor, total_minor, created_at)
        VALUES (?, ?, 0, 0, 0, ?)
        ON CONFLICT DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, insert, userID, model.StatusCart, now); err != nil {
		return 0, s.fail("open_cart", "ошибка создания корзины", err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, find, userID, model.StatusCart); err != nil {
		return 0, s.fail("open_cart", "корзина не найдена после создания", err)
	}
	return id, nil
}

// AddItem добавляет позицию с qty=1 или увеличивает qty существующей.
// Вставка условная: в заказ не в статусе cart строка не попадает, и
// вызывающий получает ErrWrongStatus.
func (s *sqlStorage) AddItem(ctx context.Context, orderID int64, sku, title string, unitPriceMinor int64) error {
	ctx, span := s.tracer.Start(ctx, "DB.AddItem")
	defer span.End()

	query := s.q(`
        INSERT INTO order_items (order_id, sku, title, unit_price_minor, qty)
        SELECT ?, ?, ?, ?, 1
        WHERE EXISTS (SELECT 1 FROM orders WHERE id = ? AND status = ?)
        ON CONFLICT (order_id, sku) DO UPDATE SET qty = order_items.qty + 1`)
	res, err := s.db.ExecContext(ctx, query, orderID, sku, title, unitPriceMinor, orderID, model.StatusCart)
	if err != nil {
		return s.fail("add_item", "не удалось добавить товар в корзину", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("add_item", "не удалось добавить товар в корзину", err)
	}
	if n == 0 {
		return fmt.Errorf("добавление в заказ %d: %w", orderID, ErrWrongStatus)
	}
	return nil
}

func (s *sqlStorage) ListItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ListItems")
	defer span.End()

	items := []model.OrderItem{}
	query := s.q(`SELECT id, order_id, sku, title, unit_price_minor, qty FROM order_items WHERE order_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &items, query, orderID); err != nil {
		return nil, s.fail("list_items", "не удалось получить позиции заказа", err)
	}
	return items, nil
}

// RecomputeTotals пересчитывает итоги по всем позициям в одной транзакции.
// Допустим только для заказа в статусе cart.
func (s *sqlStorage) RecomputeTotals(ctx context.Context, orderID int64, feeMinor int64) (model.Totals, error) {
	ctx, span := s.tracer.Start(ctx, "DB.RecomputeTotals")
	defer span.End()

	var totals model.Totals
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var status model.Status
		if err := tx.GetContext(ctx, &status, s.q(`SELECT status FROM orders WHERE id = ?`), orderID); err != nil {
			return s.fail("recompute", fmt.Sprintf("заказ %d", orderID), err)
		}
		if status != model.StatusCart {
			return fmt.Errorf("пересчёт заказа %d в статусе %s: %w", orderID, status, ErrWrongStatus)
		}

		var items []model.OrderItem
		query := s.q(`SELECT id, order_id, sku, title, unit_price_minor, qty FROM order_items WHERE order_id = ?`)
		if err := tx.SelectContext(ctx, &items, query, orderID); err != nil {
			return s.fail("recompute", "ошибка чтения позиций", err)
		}

		totals = model.ComputeTotals(items, feeMinor)
		update := s.q(`
            UPDATE orders SET subtotal_minor = ?, delivery_fee_minor = ?, total_minor = ?
            WHERE id = ? AND status = ?`)
		_, err := tx.ExecContext(ctx, update, totals.SubtotalMinor, totals.DeliveryFeeMinor, totals.TotalMinor, orderID, model.StatusCart)
		if err != nil {
			return s.fail("recompute", "ошибка сохранения итогов", err)
		}
		return nil
	})
	if err != nil {
		return model.Totals{}, err
	}
	return totals, nil
}

// ClearCart удаляет позиции и обнуляет итоги. Статус остаётся cart.
func (s *sqlStorage) ClearCart(ctx context.Context, orderID int64) error {
	ctx, span := s.tracer.Start(ctx, "DB.ClearCart")
	defer span.End()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		reset := s.q(`
            UPDATE orders SET subtotal_minor = 0, delivery_fee_minor = 0, total_minor = 0
            WHERE id = ? AND status = ?`)
		res, err := tx.ExecContext(ctx, reset, orderID, model.StatusCart)
		if err != nil {
			return s.fail("clear_cart", "ошибка сброса итогов", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return s.fail("clear_cart", "ошибка сброса итогов", err)
		} else if n == 0 {
			return fmt.Errorf("очистка заказа %d: %w", orderID, ErrWrongStatus)
		}

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM order_items WHERE order_id = ?`), orderID); err != nil {
			return s.fail("clear_cart", "ошибка удаления позиций", err)
		}
		return nil
	})
}

// Checkout переводит непустую корзину в confirming одним условным UPDATE.
// false означает, что заказ не в статусе cart или в нём нет позиций.
func (s *sqlStorage) Checkout(ctx context.Context, orderID int64, kind model.DeliveryKind, snapshot model.AddressSnapshot) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "DB.Checkout")
	defer span.End()

	query := s.q(`
        UPDATE orders SET status = ?, delivery_type = ?, address_snapshot = ?
        WHERE id = ? AND status = ?
          AND EXISTS (SELECT 1 FROM order_items WHERE order_id = ?)`)
	res, err := s.db.ExecContext(ctx, query, model.StatusConfirming, kind, snapshot, orderID, model.StatusCart, orderID)
	if err != nil {
		return false, s.fail("checkout", "ошибка оформления заказа", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("checkout", "ошибка оформления заказа", err)
	}
	return n == 1, nil
}

func (s *sqlStorage) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetOrder")
	defer span.End()

	var o model.Order
	if err := s.db.GetContext(ctx, &o, s.q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), orderID); err != nil {
		return nil, s.fail("get_order", fmt.Sprintf("не удалось получить заказ %d", orderID), err)
	}
	return &o, nil
}

// SetOrderStatus меняет статус оформленного заказа. false - заказ ещё корзина
// (или не существует, это различает вызывающий).
func (s *sqlStorage) SetOrderStatus(ctx context.Context, orderID int64, status model.Status) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "DB.SetOrderStatus")
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE orders SET status = ? WHERE id = ? AND status <> ?`), status, orderID, model.StatusCart)
	if err != nil {
		return false, s.fail("set_status", "ошибка смены статуса", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("set_status", "ошибка смены статуса", err)
	}
	return n == 1, nil
}

// ListActiveOrders возвращает свежие заказы, ожидающие обработки, с контактами покупателя.
func (s *sqlStorage) ListActiveOrders(ctx context.Context, limit int) ([]model.ActiveOrder, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ListActiveOrders")
	defer span.End()

	query, args, err := sqlx.In(`
        SELECT o.id, o.user_id, o.status, COALESCE(o.delivery_type, '') AS delivery_type,
               o.delivery_fee_minor, o.subtotal_minor, o.total_minor, o.address_snapshot, o.created_at,
               u.name, u.phone, u.principal_id
        FROM orders o
        JOIN users u ON u.id = o.user_id
        WHERE o.status IN (?)
        ORDER BY o.id DESC
        LIMIT ?`, model.ActiveStatuses, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	orders := []model.ActiveOrder{}
	if err := s.db.SelectContext(ctx, &orders, s.q(query), args...); err != nil {
		return nil, s.fail("list_active_orders", "ошибка получения активных заказов", err)
	}
	return orders, nil
}
