package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopbot/internal/apperr"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"
	"shopbot/internal/model"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	// sqliteDriver - sqlite3 с юникодной LOWER, нужной для поиска по кириллице.
	sqliteDriver = "sqlite3_shopbot"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrationsFS embed.FS

// ErrDuplicate - нарушение ограничения уникальности (sku, slug).
var ErrDuplicate = fmt.Errorf("%w: запись уже существует", apperr.ErrConflict)

// ErrWrongStatus - заказ находится в статусе, не допускающем операцию.
var ErrWrongStatus = fmt.Errorf("%w: недопустимый статус заказа", apperr.ErrConflict)

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

// UserStorage - участники диалога и их OTP.
type UserStorage interface {
	GetUserByPrincipal(ctx context.Context, principalID int64) (*model.User, error)
	UpsertUser(ctx context.Context, principalID int64, name string, now time.Time) (*model.User, error)
	SetPhoneOTP(ctx context.Context, principalID int64, phone, codeHash string, expiresAt time.Time) error
	// MarkVerified снимает OTP, только если хэш в базе всё ещё равен codeHash.
	MarkVerified(ctx context.Context, principalID int64, codeHash string) (bool, error)
}

// AddressStorage - журнал адресов с указателем на адрес по умолчанию.
type AddressStorage interface {
	GetDefaultAddress(ctx context.Context, userID int64) (*model.Address, error)
	SaveDefaultAddress(ctx context.Context, userID int64, addr model.Address) (int64, error)
}

// ProductFilter - условия публичной выдачи каталога.
type ProductFilter struct {
	Search     string
	CategoryID int64
}

// CatalogStorage - категории и товары.
type CatalogStorage interface {
	ListPublicProducts(ctx context.Context, f ProductFilter, limit, offset int) ([]model.Product, int, error)
	ListProducts(ctx context.Context, limit int) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	UpsertProductBySKU(ctx context.Context, p model.Product) (int64, error)
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
	UpsertCategory(ctx context.Context, slug, title string) (int64, error)
	EnsureCategory(ctx context.Context, slug, title string) (int64, error)
	UpdateCategoryTitle(ctx context.Context, id int64, title string) error
	CountProductsInCategory(ctx context.Context, id int64) (int, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// OrderStorage - корзины, позиции и оформленные заказы.
type OrderStorage interface {
	OpenCart(ctx context.Context, userID int64, now time.Time) (int64, error)
	AddItem(ctx context.Context, orderID int64, sku, title string, unitPriceMinor int64) error
	ListItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	RecomputeTotals(ctx context.Context, orderID int64, feeMinor int64) (model.Totals, error)
	ClearCart(ctx context.Context, orderID int64) error
	Checkout(ctx context.Context, orderID int64, kind model.DeliveryKind, snapshot model.AddressSnapshot) (bool, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, status model.Status) (bool, error)
	ListActiveOrders(ctx context.Context, limit int) ([]model.ActiveOrder, error)
}

// SettingsStorage - плоские настройки магазина.
type SettingsStorage interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	EnsureSetting(ctx context.Context, key, value string) error
}

// Storage объединяет все репозитории сервиса.
type Storage interface {
	UserStorage
	AddressStorage
	CatalogStorage
	OrderStorage
	SettingsStorage
	Ping(ctx context.Context) error
	Close() error
}

// sqlStorage - реализация Storage поверх sqlx для PostgreSQL и SQLite.
// Запросы пишутся с '?' и переводятся в нужный формат через Rebind.
type sqlStorage struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// New применяет миграции, подключается к БД и возвращает Storage.
func New(driver, dbURL string) (Storage, error) {
	if err := Migrate(driver, dbURL); err != nil {
		return nil, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = sqlx.Connect(DriverPostgres, dbURL)
	case DriverSQLite:
		db, err = connectSQLite(dbURL)
	default:
		return nil, fmt.Errorf("%w: неизвестный драйвер БД %q", apperr.ErrValidation, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB оборачивает готовое подключение (используется в тестах).
func NewWithDB(db *sqlx.DB) Storage {
	return &sqlStorage{
		db:     db,
		tracer: otel.Tracer("sql-storage"),
	}
}

func connectSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(sqliteDriver, path)
	if err != nil {
		return nil, err
	}
	// Одно соединение: SQLite сериализует запись, а прагмы живут на соединении.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// Migrate выполняет встроенные миграции БД до последней версии.
func Migrate(driver, dbURL string) error {
	logger.L.Info("Поиск и применение миграций...", zap.String("driver", driver))

	var migrateURL string
	switch driver {
	case DriverPostgres:
		migrateURL = dbURL
	case DriverSQLite:
		migrateURL = "sqlite3://" + dbURL
	default:
		return fmt.Errorf("%w: неизвестный драйвер БД %q", apperr.ErrValidation, driver)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("не удалось открыть встроенные миграции: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL)
	if err != nil {
		return fmt.Errorf("не удалось создать экземпляр миграции: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.L.Warn("Ошибка закрытия мигратора", zap.NamedError("source", srcErr), zap.NamedError("db", dbErr))
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("не удалось получить версию миграции: %w", err)
	}
	if dirty {
		logger.L.Warn("БД в 'грязном' состоянии (dirty), рекомендуется проверка", zap.Uint("version", version))
	}

	logger.L.Info("Миграции успешно применены", zap.Uint("version", version))
	return nil
}

func (s *sqlStorage) q(query string) string {
	return s.db.Rebind(query)
}

// fail переводит ошибку драйвера в таксономию apperr и считает метрику.
func (s *sqlStorage) fail(op, msg string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", msg, ErrDuplicate)
	}
	metrics.DBErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w", msg, err)
}

// exactlyOne проверяет, что UPDATE/DELETE затронул строку, иначе ErrNotFound.
func (s *sqlStorage) exactlyOne(op, msg string, res sql.Result, err error) error {
	if err != nil {
		return s.fail(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail(op, msg, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	}
	return nil
}

func (s *sqlStorage) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.L.Error("Ошибка отката транзакции", zap.NamedError("cause", err), zap.Error(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (s *sqlStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает соединение с БД.
func (s *sqlStorage) Close() error {
	return s.db.Close()
}
