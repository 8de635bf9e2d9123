// Package admin - управление ассортиментом, категориями, заказами и
// настройками магазина. Все операции доступны только через Console,
// которую выдаёт Authorizer после проверки прав.
package admin

import (
	"context"
	"fmt"

	"shopbot/internal/apperr"
	"shopbot/internal/catalog"
	"shopbot/internal/model"
)

// MaxPriceRub - верхняя граница цены и тарифа в рублях. В копейках она
// оставляет запас до переполнения int64 при суммировании итогов.
const MaxPriceRub = 1 << 40

var (
	ErrForbidden      = fmt.Errorf("%w: нет доступа", apperr.ErrForbidden)
	ErrSKUTaken       = fmt.Errorf("%w: SKU уже занят", apperr.ErrConflict)
	ErrCategoryInUse  = fmt.Errorf("%w: категория используется", apperr.ErrConflict)
	ErrInvalidTitle   = fmt.Errorf("%w: название слишком короткое", apperr.ErrValidation)
	ErrInvalidPrice   = fmt.Errorf("%w: цена вне допустимого диапазона", apperr.ErrValidation)
	ErrInvalidSKU     = fmt.Errorf("%w: некорректный SKU", apperr.ErrValidation)
	ErrInvalidURL     = fmt.Errorf("%w: некорректный URL каталога", apperr.ErrValidation)
	ErrNoSuchCategory = fmt.Errorf("%w: категория не найдена", apperr.ErrNotFound)
	ErrNoSuchProduct  = fmt.Errorf("%w: товар не найден", apperr.ErrNotFound)
)

// Store - операции хранилища, доступные администратору.
type Store interface {
	ListProducts(ctx context.Context, limit int) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	UpdateProductTitle(ctx context.Context, id int64, title string) error
	UpdateProductPrice(ctx context.Context, id int64, priceMinor int64) error
	UpdateProductPhoto(ctx context.Context, id int64, photoFileID string) error
	UpdateProductSortOrder(ctx context.Context, id int64, sortOrder int) error
	UpdateProductSKU(ctx context.Context, id int64, sku string) error
	SetProductAvailable(ctx context.Context, id int64, available bool) error
	ToggleProductAvailable(ctx context.Context, id int64) (bool, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	CreateCategory(ctx context.Context, slug, title string) (int64, error)
	EnsureCategory(ctx context.Context, slug, title string) (int64, error)
	UpdateCategoryTitle(ctx context.Context, id int64, title string) error
	CountProductsInCategory(ctx context.Context, id int64) (int, error)
	DeleteCategory(ctx context.Context, id int64) error

	SetSetting(ctx context.Context, key, value string) error
}

// Invalidator сбрасывает товар в кэше каталога.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64)
}

// Orders - операции движка заказов для администратора.
type Orders interface {
	ActiveOrders(ctx context.Context, limit int) ([]model.ActiveOrder, error)
	SetStatus(ctx context.Context, orderID int64, status model.Status) (*model.Order, error)
	CourierFee(ctx context.Context) (int64, error)
	SetCourierFee(ctx context.Context, feeMinor int64) error
}

// Syncer загружает каталог из внешнего источника.
type Syncer interface {
	Load(ctx context.Context) (catalog.Result, error)
}

// Authorizer - единственная точка проверки прав администратора.
type Authorizer struct {
	admins map[int64]struct{}
	deps   deps
}

type deps struct {
	store   Store
	catalog Invalidator
	orders  Orders
	syncer  Syncer
}

func NewAuthorizer(adminIDs []int64, store Store, catalog Invalidator, orders Orders, syncer Syncer) *Authorizer {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Authorizer{
		admins: admins,
		deps:   deps{store: store, catalog: catalog, orders: orders, syncer: syncer},
	}
}

func (a *Authorizer) IsAdmin(principalID int64) bool {
	_, ok := a.admins[principalID]
	return ok
}

// Authorize возвращает консоль администратора или ErrForbidden.
func (a *Authorizer) Authorize(principalID int64) (*Console, error) {
	if !a.IsAdmin(principalID) {
		return nil, ErrForbidden
	}
	return &Console{principalID: principalID, deps: a.deps}, nil
}

// Console - набор операций администратора.
type Console struct {
	principalID int64
	deps
}

func (c *Console) PrincipalID() int64 {
	return c.principalID
}
