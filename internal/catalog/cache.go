package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"vitrine/internal/domain"
	"vitrine/internal/pubsub"
	"vitrine/internal/storage"
)

// Ключ локальных правок остатков: id товара -> актуальный остаток
const stockKey = "estoque"

var (
	// ErrNotFound товар отсутствует в каталоге
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock остатка не хватает на запрошенное количество
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Cache кэш каталога с локальными правками остатков.
// Загружается один раз за сессию, правки переживают перезапуск через KV
// и сразу видимы читателям. Каждая зафиксированная мутация публикуется подписчикам.
type Cache struct {
	mu        sync.RWMutex
	source    Source
	kv        storage.KV
	byID      map[int]domain.Product
	promoIDs  []int
	newIDs    []int
	overrides map[int]int
	loadSeq   int
	subject   *pubsub.Subject[[]domain.Product]
}

func NewCache(source Source, kv storage.KV) *Cache {
	return &Cache{
		source:    source,
		kv:        kv,
		byID:      make(map[int]domain.Product),
		overrides: make(map[int]int),
		subject:   pubsub.NewSubject[[]domain.Product](nil),
	}
}

// Load загружает каталог и накладывает сохранённые правки остатков (правка побеждает).
// Мягкий отказ: при ошибке прежнее состояние остаётся как есть.
// Из конкурирующих загрузок публикуется только последняя начатая.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	data, err := c.source.Fetch(ctx)
	if err != nil {
		log.Printf("catalog load failed, keeping previous state: %v", err)
		return err
	}

	c.mu.Lock()
	if seq != c.loadSeq {
		// superseded by a newer load
		c.mu.Unlock()
		return nil
	}
	// Правки читаются под тем же замком, под которым мутации их фиксируют
	overrides := c.loadOverrides(ctx)
	c.byID = make(map[int]domain.Product, len(data.Promotions)+len(data.NewArrivals))
	c.promoIDs = c.promoIDs[:0]
	c.newIDs = c.newIDs[:0]
	c.overrides = overrides
	for _, p := range data.Promotions {
		if s, ok := overrides[p.ID]; ok {
			p.Stock = s
		}
		c.byID[p.ID] = p
		c.promoIDs = append(c.promoIDs, p.ID)
	}
	for _, p := range data.NewArrivals {
		if s, ok := overrides[p.ID]; ok {
			p.Stock = s
		}
		c.byID[p.ID] = p
		c.newIDs = append(c.newIDs, p.ID)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.subject.Publish(snapshot)
	return nil
}

// GetByID возвращает текущий товар по id
func (c *Cache) GetByID(id int) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

// Products все товары каталога
func (c *Cache) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Promotions список акционных товаров
func (c *Cache) Promotions() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collectLocked(c.promoIDs)
}

// NewArrivals список новинок
func (c *Cache) NewArrivals() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collectLocked(c.newIDs)
}

// DecrementStock уменьшает остаток товара, не опускаясь ниже нуля.
// Правка сразу сохраняется и публикуется.
func (c *Cache) DecrementStock(ctx context.Context, id, amount int) error {
	return c.adjust(ctx, id, -amount)
}

// RestoreStock возвращает товар на остаток
func (c *Cache) RestoreStock(ctx context.Context, id, amount int) error {
	return c.adjust(ctx, id, amount)
}

func (c *Cache) adjust(ctx context.Context, id, delta int) error {
	c.mu.Lock()
	p, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	p.Stock += delta
	if p.Stock < 0 {
		p.Stock = 0
	}
	c.byID[id] = p
	c.overrides[id] = p.Stock
	persistErr := c.persistOverridesLocked(ctx)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.subject.Publish(snapshot)
	return persistErr
}

// DecrementAll атомарно списывает остатки по всем позициям: сначала проверка
// каждой позиции по текущему остатку, затем применение — всё или ничего.
func (c *Cache) DecrementAll(ctx context.Context, items []domain.OrderItem) error {
	c.mu.Lock()
	for _, it := range items {
		p, ok := c.byID[it.ProductID]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
		}
		if p.Stock < it.Quantity {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, p.Name, p.Stock, it.Quantity)
		}
	}
	for _, it := range items {
		p := c.byID[it.ProductID]
		p.Stock -= it.Quantity
		c.byID[it.ProductID] = p
		c.overrides[it.ProductID] = p.Stock
	}
	persistErr := c.persistOverridesLocked(ctx)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.subject.Publish(snapshot)
	return persistErr
}

// RestoreAll возвращает остатки по всем позициям одной фиксацией
func (c *Cache) RestoreAll(ctx context.Context, items []domain.OrderItem) error {
	c.mu.Lock()
	for _, it := range items {
		p, ok := c.byID[it.ProductID]
		if !ok {
			continue
		}
		p.Stock += it.Quantity
		c.byID[it.ProductID] = p
		c.overrides[it.ProductID] = p.Stock
	}
	persistErr := c.persistOverridesLocked(ctx)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.subject.Publish(snapshot)
	return persistErr
}

// Subscribe подписка на каждое зафиксированное состояние каталога
func (c *Cache) Subscribe(fn func([]domain.Product)) (cancel func()) {
	return c.subject.Subscribe(fn)
}

func (c *Cache) snapshotLocked() []domain.Product {
	out := make([]domain.Product, 0, len(c.promoIDs)+len(c.newIDs))
	out = append(out, c.collectLocked(c.promoIDs)...)
	out = append(out, c.collectLocked(c.newIDs)...)
	return out
}

func (c *Cache) collectLocked(ids []int) []domain.Product {
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.byID[id])
	}
	return out
}

// JSON-объекты держат строковые ключи, правки сериализуются как map[string]int
func (c *Cache) loadOverrides(ctx context.Context) map[int]int {
	var doc map[string]int
	if err := c.kv.Get(ctx, stockKey, &doc); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("stock overrides load: %v", err)
		}
		return make(map[int]int)
	}
	out := make(map[int]int, len(doc))
	for k, v := range doc {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out
}

func (c *Cache) persistOverridesLocked(ctx context.Context) error {
	doc := make(map[string]int, len(c.overrides))
	for id, s := range c.overrides {
		doc[strconv.Itoa(id)] = s
	}
	return c.kv.Set(ctx, stockKey, doc)
}
