package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"vitrine/internal/domain"
	"vitrine/internal/storage"
)

type stubSource struct {
	data Data
	err  error
}

func (s stubSource) Fetch(context.Context) (Data, error) { return s.data, s.err }

// gatedSource сигналит о входе в Fetch и ждёт разрешения продолжить
type gatedSource struct {
	data    Data
	started chan struct{}
	release chan struct{}
}

func (s gatedSource) Fetch(context.Context) (Data, error) {
	close(s.started)
	<-s.release
	return s.data, nil
}

func product(id int, name string, price string, stock int) domain.Product {
	return domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func setup(t *testing.T, kv storage.KV, products ...domain.Product) *Cache {
	t.Helper()
	c := NewCache(stubSource{data: Data{Promotions: products}}, kv)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestLoad_OverridesWin(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	if err := kv.Set(ctx, stockKey, map[string]int{"1": 2}); err != nil {
		t.Fatal(err)
	}

	c := setup(t, kv, product(1, "A", "10", 9), product(2, "B", "20", 5))
	p1, err := c.GetByID(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p1.Stock != 2 {
		t.Fatalf("override not applied: stock %d", p1.Stock)
	}
	p2, _ := c.GetByID(2)
	if p2.Stock != 5 {
		t.Fatalf("untouched product changed: stock %d", p2.Stock)
	}
}

func TestLoad_FailureKeepsPreviousState(t *testing.T) {
	kv := storage.NewMemory()
	c := setup(t, kv, product(1, "A", "10", 5))

	c.source = stubSource{err: errors.New("boom")}
	if err := c.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if _, err := c.GetByID(1); err != nil {
		t.Fatalf("previous state lost: %v", err)
	}
}

func TestLoad_StaleConcurrentLoadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	c := setup(t, storage.NewMemory(), product(1, "Velho", "10", 9))

	gate := gatedSource{
		data:    Data{Promotions: []domain.Product{product(1, "Velho", "10", 99)}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c.source = gate
	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-gate.started

	// a newer load starts and finishes while the first is still fetching
	c.source = stubSource{data: Data{Promotions: []domain.Product{product(1, "Novo", "10", 7)}}}
	if err := c.Load(ctx); err != nil {
		t.Fatalf("second load: %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first load: %v", err)
	}

	p, _ := c.GetByID(1)
	if p == nil || p.Name != "Novo" || p.Stock != 7 {
		t.Fatalf("stale load clobbered the newer one: %+v", p)
	}
}

func TestReload_KeepsConcurrentDecrement(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	c := setup(t, kv, product(1, "A", "10", 5))

	gate := gatedSource{
		data:    Data{Promotions: []domain.Product{product(1, "A", "10", 5)}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c.source = gate
	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-gate.started

	// a sale commits while the reload is still fetching
	if err := c.DecrementStock(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("reload: %v", err)
	}

	p, _ := c.GetByID(1)
	if p.Stock != 3 {
		t.Fatalf("reload reverted committed decrement: stock %d", p.Stock)
	}
	var doc map[string]int
	if err := kv.Get(ctx, stockKey, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["1"] != 3 {
		t.Fatalf("persisted override reverted: %v", doc)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	c := setup(t, storage.NewMemory(), product(1, "A", "10", 5))
	if _, err := c.GetByID(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecrementStock_ClampsAtZero(t *testing.T) {
	ctx := context.Background()
	c := setup(t, storage.NewMemory(), product(1, "A", "10", 3))

	if err := c.DecrementStock(ctx, 1, 5); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	p, _ := c.GetByID(1)
	if p.Stock != 0 {
		t.Fatalf("expected clamp to 0, got %d", p.Stock)
	}

	// restore brings it back up
	if err := c.RestoreStock(ctx, 1, 2); err != nil {
		t.Fatalf("restore: %v", err)
	}
	p, _ = c.GetByID(1)
	if p.Stock != 2 {
		t.Fatalf("expected 2 after restore, got %d", p.Stock)
	}
}

func TestStockMutation_IsDurable(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	c := setup(t, kv, product(1, "A", "10", 9))
	if err := c.DecrementStock(ctx, 1, 4); err != nil {
		t.Fatal(err)
	}

	// a fresh cache over the same KV sees the persisted override
	c2 := setup(t, kv, product(1, "A", "10", 9))
	p, _ := c2.GetByID(1)
	if p.Stock != 5 {
		t.Fatalf("override not durable: stock %d", p.Stock)
	}
}

func TestMutation_PublishesToSubscribers(t *testing.T) {
	ctx := context.Background()
	c := setup(t, storage.NewMemory(), product(1, "A", "10", 9))

	var last []domain.Product
	c.Subscribe(func(ps []domain.Product) { last = ps })
	if len(last) != 1 || last[0].Stock != 9 {
		t.Fatalf("initial delivery: %v", last)
	}

	if err := c.DecrementStock(ctx, 1, 1); err != nil {
		t.Fatal(err)
	}
	if last[0].Stock != 8 {
		t.Fatalf("mutation not published: stock %d", last[0].Stock)
	}
}

func TestDecrementAll_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	c := setup(t, storage.NewMemory(), product(1, "A", "10", 5), product(2, "B", "20", 1))

	err := c.DecrementAll(ctx, []domain.OrderItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 3}, // exceeds stock
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// no partial decrement committed
	p1, _ := c.GetByID(1)
	p2, _ := c.GetByID(2)
	if p1.Stock != 5 || p2.Stock != 1 {
		t.Fatalf("partial decrement leaked: %d %d", p1.Stock, p2.Stock)
	}

	// a valid batch applies atomically
	if err := c.DecrementAll(ctx, []domain.OrderItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}); err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	p1, _ = c.GetByID(1)
	p2, _ = c.GetByID(2)
	if p1.Stock != 3 || p2.Stock != 0 {
		t.Fatalf("batch not applied: %d %d", p1.Stock, p2.Stock)
	}
}
