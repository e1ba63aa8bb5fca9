package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"vitrine/internal/catalog"
	"vitrine/internal/domain"
	"vitrine/internal/pubsub"
	"vitrine/internal/storage"
)

const storageKey = "carrinho"

// MaxQuantityPerProduct фиксированный потолок количества на товар
const MaxQuantityPerProduct = 10

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrQuantityLimit     = errors.New("quantity limit exceeded")
	ErrNotFound          = errors.New("cart line not found")
)

// ValidationError итог провалившейся проверки корзины перед оформлением
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "cart validation failed: " + strings.Join(e.Problems, "; ")
}

// Store реактивное хранилище корзины. Строки уникальны по id товара,
// порядок вставки сохраняется. Каждая мутация фиксируется в KV и публикуется.
type Store struct {
	mu      sync.Mutex
	catalog *catalog.Cache
	kv      storage.KV
	lines   []domain.CartLine
	subject *pubsub.Subject[[]domain.CartLine]
}

// NewStore создаёт хранилище и поднимает сохранённую корзину
func NewStore(ctx context.Context, cat *catalog.Cache, kv storage.KV) *Store {
	s := &Store{catalog: cat, kv: kv, subject: pubsub.NewSubject[[]domain.CartLine](nil)}
	var saved []domain.CartLine
	if err := kv.Get(ctx, storageKey, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("cart load: %v", err)
		}
	} else {
		s.lines = saved
		s.subject.Publish(s.copyLinesLocked())
	}
	return s
}

// AddItem добавляет товар или наращивает количество существующей строки.
// Остаток берётся из каталога, а не из снимка вызывающего.
func (s *Store) AddItem(ctx context.Context, product domain.Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidInput
	}
	current, err := s.catalog.GetByID(product.ID)
	if err != nil {
		return err
	}
	if current.Stock == 0 {
		return ErrOutOfStock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := quantity
	idx := s.indexOfLocked(product.ID)
	if idx >= 0 {
		candidate = s.lines[idx].Quantity + quantity
	}
	if candidate > current.Stock {
		return ErrInsufficientStock
	}
	if candidate > MaxQuantityPerProduct {
		return ErrQuantityLimit
	}

	if idx >= 0 {
		s.lines[idx].Quantity = candidate
		s.lines[idx].Product = *current
	} else {
		s.lines = append(s.lines, domain.CartLine{Product: *current, Quantity: candidate})
	}
	return s.commitLocked(ctx)
}

// RemoveItem удаляет строку, повторный вызов — no-op
func (s *Store) RemoveItem(ctx context.Context, productID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.lines[:0]
	for _, l := range s.lines {
		if l.Product.ID != productID {
			kept = append(kept, l)
		}
	}
	s.lines = kept
	return s.commitLocked(ctx)
}

// SetQuantity выставляет количество строки; quantity <= 0 эквивалентно удалению.
// При превышении остатка или потолка состояние не меняется.
func (s *Store) SetQuantity(ctx context.Context, productID, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, productID)
	}
	current, err := s.catalog.GetByID(productID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOfLocked(productID)
	if idx < 0 {
		return ErrNotFound
	}
	if quantity > current.Stock {
		return ErrInsufficientStock
	}
	if quantity > MaxQuantityPerProduct {
		return ErrQuantityLimit
	}
	s.lines[idx].Quantity = quantity
	s.lines[idx].Product = *current
	return s.commitLocked(ctx)
}

// Clear опустошает корзину и убирает сохранённое представление
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	err := s.kv.Remove(ctx, storageKey)
	s.subject.Publish(nil)
	return err
}

// Lines копия строк корзины в порядке вставки
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLinesLocked()
}

// Subtotal сумма по вложенным снимкам цен — стабильна между перерисовками
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// TotalItemCount суммарное количество по всем строкам
func (s *Store) TotalItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// ValidateForCheckout перепроверяет каждую строку по текущему остатку.
// Возвращает ok либо по одной проблеме на строку, в порядке корзины.
func (s *Store) ValidateForCheckout() (bool, []string) {
	s.mu.Lock()
	lines := s.copyLinesLocked()
	s.mu.Unlock()

	var problems []string
	for _, l := range lines {
		current, err := s.catalog.GetByID(l.Product.ID)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: product no longer available", l.Product.Name))
			continue
		}
		if current.Stock == 0 {
			problems = append(problems, fmt.Sprintf("%s: out of stock", l.Product.Name))
			continue
		}
		if l.Quantity > current.Stock {
			problems = append(problems, fmt.Sprintf("%s: only %d in stock, requested %d", l.Product.Name, current.Stock, l.Quantity))
		}
	}
	return len(problems) == 0, problems
}

// Subscribe подписка на зафиксированные состояния корзины
func (s *Store) Subscribe(fn func([]domain.CartLine)) (cancel func()) {
	return s.subject.Subscribe(fn)
}

func (s *Store) indexOfLocked(productID int) int {
	for i, l := range s.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) copyLinesLocked() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) commitLocked(ctx context.Context) error {
	err := s.kv.Set(ctx, storageKey, s.lines)
	s.subject.Publish(s.copyLinesLocked())
	return err
}

// Стоимость доставки — политика, не состояние корзины.
// От 200 бесплатно, самовывоз всегда бесплатно.
var (
	freeShippingMin = decimal.NewFromInt(200)
	flatShipping    = decimal.RequireFromString("29.90")
)

// ShippingFor стоимость доставки для данного промежуточного итога
func ShippingFor(subtotal decimal.Decimal, fulfillment domain.Fulfillment) decimal.Decimal {
	if fulfillment == domain.FulfillmentPickup {
		return decimal.Zero
	}
	if subtotal.IsZero() || subtotal.GreaterThanOrEqual(freeShippingMin) {
		return decimal.Zero
	}
	return flatShipping
}
