package cache

import (
	"container/list"
	"context"
	"sync"

	"shopbot/internal/logger"
	"shopbot/internal/metrics"
	"shopbot/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Cache - кэш товаров каталога по id с вторичным индексом по SKU.
// Хранит значения, поэтому читатель всегда получает собственную копию.
type Cache interface {
	Set(ctx context.Context, p model.Product)
	Get(ctx context.Context, id int64) (model.Product, bool)
	GetBySKU(ctx context.Context, sku string) (model.Product, bool)
	Delete(ctx context.Context, id int64)
	Len() int
}

// ProductLister - источник данных для прогрева.
type ProductLister interface {
	ListProducts(ctx context.Context, limit int) ([]model.Product, error)
}

// lruCache реализует LRU (Least Recently Used) кэш.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[int64]*list.Element
	bySKU    map[string]int64
	queue    *list.List
	tracer   trace.Tracer
}

// NewLRUCache создает новый LRU-кэш с заданной емкостью.
func NewLRUCache(capacity int) Cache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[int64]*list.Element),
		bySKU:    make(map[string]int64),
		queue:    list.New(),
		tracer:   otel.Tracer("lru-cache"),
	}
}

func (c *lruCache) Set(ctx context.Context, p model.Product) {
	_, span := c.tracer.Start(ctx, "Cache.Set")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}

	if element, exists := c.items[p.ID]; exists {
		old := element.Value.(model.Product)
		if old.SKU != p.SKU {
			delete(c.bySKU, old.SKU)
		}
		element.Value = p
		c.bySKU[p.SKU] = p.ID
		c.queue.MoveToFront(element)
		return
	}

	if c.queue.Len() >= c.capacity {
		c.removeOldest()
	}

	c.items[p.ID] = c.queue.PushFront(p)
	c.bySKU[p.SKU] = p.ID

	metrics.CacheSize.Set(float64(c.queue.Len()))
}

func (c *lruCache) Get(ctx context.Context, id int64) (model.Product, bool) {
	_, span := c.tracer.Start(ctx, "Cache.Get")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.get(id)
}

func (c *lruCache) GetBySKU(ctx context.Context, sku string) (model.Product, bool) {
	_, span := c.tracer.Start(ctx, "Cache.GetBySKU")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.bySKU[sku]
	if !ok {
		return model.Product{}, false
	}
	return c.get(id)
}

func (c *lruCache) get(id int64) (model.Product, bool) {
	if element, exists := c.items[id]; exists {
		c.queue.MoveToFront(element)
		return element.Value.(model.Product), true
	}
	return model.Product{}, false
}

// Delete убирает товар из кэша (после изменения администратором).
func (c *lruCache) Delete(ctx context.Context, id int64) {
	_, span := c.tracer.Start(ctx, "Cache.Delete")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[id]; exists {
		c.remove(element)
		metrics.CacheSize.Set(float64(c.queue.Len()))
	}
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// removeOldest удаляет самый старый элемент (мьютекс уже захвачен).
func (c *lruCache) removeOldest() {
	if element := c.queue.Back(); element != nil {
		c.remove(element)
		metrics.CacheEvictions.Inc()
		metrics.CacheSize.Set(float64(c.queue.Len()))
	}
}

func (c *lruCache) remove(element *list.Element) {
	p := c.queue.Remove(element).(model.Product)
	delete(c.items, p.ID)
	if c.bySKU[p.SKU] == p.ID {
		delete(c.bySKU, p.SKU)
	}
}

// WarmUp строит новый кэш и наполняет его товарами из БД. Старый кэш не
// трогается: вызывающий подменяет его целиком.
func WarmUp(ctx context.Context, storage ProductLister, capacity int) (Cache, error) {
	logger.L.Info("Выполняется прогрев кэша каталога...")
	products, err := storage.ListProducts(ctx, capacity)
	if err != nil {
		return nil, err
	}

	cache := NewLRUCache(capacity)
	// С конца, чтобы первые по сортировке товары оказались самыми свежими.
	for i := len(products) - 1; i >= 0; i-- {
		cache.Set(ctx, products[i])
	}

	logger.L.Info("Кэш каталога прогрет", zap.Int("products", cache.Len()))
	return cache, nil
}
