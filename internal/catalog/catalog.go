// Package catalog - модель чтения каталога: публичная выдача, точечные
// запросы через LRU-кэш и синхронизация с внешним источником.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"shopbot/internal/apperr"
	"shopbot/internal/cache"
	"shopbot/internal/database"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"
	"shopbot/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrProductNotFound = fmt.Errorf("%w: товар не найден", apperr.ErrNotFound)

// Store - запросы к хранилищу, нужные модели чтения.
type Store interface {
	ListPublicProducts(ctx context.Context, f database.ProductFilter, limit, offset int) ([]model.Product, int, error)
	ListProducts(ctx context.Context, limit int) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*model.Product, error)
}

// Query - параметры публичной выдачи. Page начинается с 1.
type Query struct {
	Page       int
	PageSize   int
	Search     string
	CategoryID int64
}

// Page - страница выдачи.
type Page struct {
	Items    []model.Product
	Total    int
	Page     int
	PageSize int
}

// Pages - число страниц (не меньше одной).
func (p Page) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

type cacheBox struct {
	cache.Cache
}

type Service struct {
	store    Store
	capacity int
	current  atomic.Pointer[cacheBox]
	reloads  singleflight.Group

	// mu упорядочивает заполнение кэша относительно инвалидаций: строка,
	// прочитанная до Invalidate или Reload, в кэш уже не попадает.
	mu        sync.Mutex
	gen       uint64
	reloading bool
	dropped   []int64
}

func New(store Store, capacity int) *Service {
	s := &Service{store: store, capacity: capacity}
	s.current.Store(&cacheBox{cache.NewLRUCache(capacity)})
	return s
}

func (s *Service) lru() cache.Cache {
	return s.current.Load().Cache
}

// ListPublic возвращает доступные товары постранично, новые сверху внутри
// одного sort_order. Страница меньше 1 считается первой.
func (s *Service) ListPublic(ctx context.Context, q Query) (Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}

	filter := database.ProductFilter{Search: strings.TrimSpace(q.Search), CategoryID: q.CategoryID}
	items, total, err := s.store.ListPublicProducts(ctx, filter, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// GetByID читает товар через кэш.
func (s *Service) GetByID(ctx context.Context, id int64) (model.Product, error) {
	if p, ok := s.lru().Get(ctx, id); ok {
		metrics.CacheHits.Inc()
		return p, nil
	}
	metrics.CacheMisses.Inc()

	gen := s.generation()
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return model.Product{}, notFound(err)
	}
	s.fill(ctx, gen, *p)
	return *p, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (model.Product, error) {
	if p, ok := s.lru().GetBySKU(ctx, sku); ok {
		metrics.CacheHits.Inc()
		return p, nil
	}
	metrics.CacheMisses.Inc()

	gen := s.generation()
	p, err := s.store.GetProductBySKU(ctx, sku)
	if err != nil {
		return model.Product{}, notFound(err)
	}
	s.fill(ctx, gen, *p)
	return *p, nil
}

func (s *Service) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// fill кладёт прочитанную строку в кэш, только если с момента чтения
// не было инвалидаций.
func (s *Service) fill(ctx context.Context, gen uint64, p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.lru().Set(ctx, p)
}

// Invalidate выбрасывает товар из кэша после изменения.
func (s *Service) Invalidate(ctx context.Context, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.reloading {
		s.dropped = append(s.dropped, id)
	}
	s.lru().Delete(ctx, id)
}

// Reload строит свежий кэш из БД и подменяет текущий целиком.
// Одновременные вызовы схлопываются в одну загрузку.
func (s *Service) Reload(ctx context.Context) error {
	_, err, shared := s.reloads.Do("reload", func() (any, error) {
		s.mu.Lock()
		s.reloading = true
		s.dropped = nil
		s.mu.Unlock()

		fresh, err := cache.WarmUp(ctx, s.store, s.capacity)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.reloading = false
		if err != nil {
			metrics.CacheReloads.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("ошибка перезагрузки кэша каталога: %w", err)
		}
		// Товары, изменённые во время прогрева, могли попасть в снимок старыми.
		for _, id := range s.dropped {
			fresh.Delete(ctx, id)
		}
		s.dropped = nil
		s.gen++
		s.current.Store(&cacheBox{fresh})
		metrics.CacheReloads.WithLabelValues("ok").Inc()
		return nil, nil
	})
	if shared {
		logger.L.Debug("Перезагрузка кэша присоединена к уже идущей", zap.Error(err))
	}
	return err
}

func notFound(err error) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return ErrProductNotFound
	}
	return err
}
