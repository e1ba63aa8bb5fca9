package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vitrine/internal/cart"
	"vitrine/internal/catalog"
	"vitrine/internal/domain"
	"vitrine/internal/pubsub"
	"vitrine/internal/storage"
)

const (
	ordersKey    = "pedidos"
	lastOrderKey = "ultimoPedido"
)

const deliveryEstimate = "2-5 dias úteis"

var (
	ErrNotFound            = errors.New("order not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPickupStoreRequired = errors.New("pickup store required")
	ErrStockConflict       = errors.New("stock conflict")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidStatus       = errors.New("invalid status")
)

// CheckoutForm данные оформления, собранные UI-слоем
type CheckoutForm struct {
	Customer      domain.Customer
	PaymentMethod string
	Address       *domain.Address
	Store         *domain.Store
}

// Store хранилище заказов. Заказ создаётся один раз при оформлении,
// дальше меняется только статус. Список никогда не редактируется точечно,
// только добавление в начало и полная очистка.
type Store struct {
	mu      sync.Mutex
	catalog *catalog.Cache
	cart    *cart.Store
	kv      storage.KV
	orders  []domain.Order
	subject *pubsub.Subject[[]domain.Order]
}

// NewStore создаёт хранилище и поднимает сохранённые заказы.
// Даты приезжают ISO-строками и восстанавливаются в time.Time при десериализации.
func NewStore(ctx context.Context, cat *catalog.Cache, c *cart.Store, kv storage.KV) *Store {
	s := &Store{catalog: cat, cart: c, kv: kv, subject: pubsub.NewSubject[[]domain.Order](nil)}
	var saved []domain.Order
	if err := kv.Get(ctx, ordersKey, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("orders load: %v", err)
		}
	} else {
		s.orders = saved
		s.subject.Publish(s.copyOrdersLocked())
	}
	return s
}

// Place оформляет заказ из текущей корзины.
// Списание остатков атомарно: либо по всем позициям, либо ни по одной.
func (s *Store) Place(ctx context.Context, form CheckoutForm, fulfillment domain.Fulfillment) (*domain.Order, error) {
	lines := s.cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if ok, problems := s.cart.ValidateForCheckout(); !ok {
		return nil, &cart.ValidationError{Problems: problems}
	}
	if fulfillment == domain.FulfillmentPickup && form.Store == nil {
		return nil, ErrPickupStoreRequired
	}

	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		items = append(items, domain.OrderItem{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
			Image:     l.Product.Image,
		})
		subtotal = subtotal.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	if err := s.catalog.DecrementAll(ctx, items); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) || errors.Is(err, catalog.ErrNotFound) {
			// stock changed between validation and commit
			return nil, fmt.Errorf("%w: %v", ErrStockConflict, err)
		}
		return nil, err
	}

	shipping := cart.ShippingFor(subtotal, fulfillment)
	o := domain.Order{
		ID:               uuid.New(),
		Date:             time.Now().UTC(),
		Items:            items,
		Subtotal:         subtotal,
		Shipping:         shipping,
		Total:            subtotal.Add(shipping),
		PaymentMethod:    domain.PaymentMethodLabel(form.PaymentMethod),
		Fulfillment:      fulfillment,
		DeliveryEstimate: deliveryEstimate,
		Customer:         form.Customer,
		Status:           domain.StatusAwaitingPayment,
	}
	if fulfillment == domain.FulfillmentPickup {
		o.StoreID = form.Store.ID
		o.StoreName = form.Store.Name
	} else {
		o.Address = form.Address
	}

	s.mu.Lock()
	o.Number = s.newNumberLocked()
	s.orders = append([]domain.Order{o}, s.orders...)
	persistErr := s.commitLocked(ctx)
	if persistErr == nil {
		persistErr = s.kv.Set(ctx, lastOrderKey, o)
	}
	s.mu.Unlock()

	if err := s.cart.Clear(ctx); err != nil {
		log.Printf("cart clear after checkout: %v", err)
	}
	return &o, persistErr
}

// Cancel переводит незавершённый заказ в cancelled и возвращает остатки
func (s *Store) Cancel(ctx context.Context, number string) (*domain.Order, error) {
	return s.transition(ctx, number, domain.StatusCancelled)
}

// UpdateStatus общий переход статуса; отмена — единственный переход с побочным
// эффектом возврата остатков
func (s *Store) UpdateStatus(ctx context.Context, number string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.transition(ctx, number, status)
}

func (s *Store) transition(ctx context.Context, number string, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.orders {
		if s.orders[i].Number == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if s.orders[idx].Status.Terminal() {
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	now := time.Now().UTC()
	s.orders[idx].Status = status
	s.orders[idx].UpdatedAt = &now
	updated := s.orders[idx]
	persistErr := s.commitLocked(ctx)
	s.mu.Unlock()

	if status == domain.StatusCancelled {
		if err := s.catalog.RestoreAll(ctx, updated.Items); err != nil {
			log.Printf("stock restore for %s: %v", number, err)
		}
	}
	return &updated, persistErr
}

// Orders все заказы, новые первыми
func (s *Store) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOrdersLocked()
}

// ByNumber заказ по номеру
func (s *Store) ByNumber(number string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].Number == number {
			cp := s.orders[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Latest последний оформленный заказ — для страницы подтверждения
func (s *Store) Latest(ctx context.Context) (*domain.Order, error) {
	var o domain.Order
	if err := s.kv.Get(ctx, lastOrderKey, &o); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// TotalOrders количество заказов
func (s *Store) TotalOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// ClearAll полная очистка истории заказов
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = nil
	if err := s.kv.Remove(ctx, ordersKey); err != nil {
		return err
	}
	if err := s.kv.Remove(ctx, lastOrderKey); err != nil {
		return err
	}
	s.subject.Publish(nil)
	return nil
}

// Subscribe подписка на зафиксированные состояния списка заказов
func (s *Store) Subscribe(fn func([]domain.Order)) (cancel func()) {
	return s.subject.Subscribe(fn)
}

func (s *Store) copyOrdersLocked() []domain.Order {
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

func (s *Store) commitLocked(ctx context.Context) error {
	err := s.kv.Set(ctx, ordersKey, s.orders)
	s.subject.Publish(s.copyOrdersLocked())
	return err
}

// Номер в формате источника каталога, с перегенерацией при коллизии
func (s *Store) newNumberLocked() string {
	for {
		n := fmt.Sprintf("#CC-%06d", rand.IntN(900000)+100000)
		taken := false
		for i := range s.orders {
			if s.orders[i].Number == n {
				taken = true
				break
			}
		}
		if !taken {
			return n
		}
	}
}
