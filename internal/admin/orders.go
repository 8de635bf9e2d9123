package admin

import (
	"context"
	"strings"

	"shopbot/internal/catalog"
	"shopbot/internal/model"
	"shopbot/internal/validator"
)

// ActiveOrdersLimit - сколько заказов показывать в списке администратора.
const ActiveOrdersLimit = 20

func (c *Console) ActiveOrders(ctx context.Context) ([]model.ActiveOrder, error) {
	return c.orders.ActiveOrders(ctx, ActiveOrdersLimit)
}

func (c *Console) SetOrderStatus(ctx context.Context, orderID int64, status model.Status) (*model.Order, error) {
	return c.orders.SetStatus(ctx, orderID, status)
}

func (c *Console) CourierFee(ctx context.Context) (int64, error) {
	return c.orders.CourierFee(ctx)
}

// SetCourierFeeRub задаёт тариф курьера в рублях.
func (c *Console) SetCourierFeeRub(ctx context.Context, rub int64) error {
	if rub < 0 || rub > MaxPriceRub {
		return ErrInvalidPrice
	}
	return c.orders.SetCourierFee(ctx, rub*100)
}

// SetCatalogURL сохраняет адрес внешнего каталога для синхронизации.
func (c *Console) SetCatalogURL(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if err := validator.ValidateVar(raw, "required,httpurl"); err != nil {
		return ErrInvalidURL
	}
	return c.store.SetSetting(ctx, model.SettingCatalogURL, raw)
}

// RefreshCatalog запускает синхронизацию каталога.
func (c *Console) RefreshCatalog(ctx context.Context) (catalog.Result, error) {
	return c.syncer.Load(ctx)
}
