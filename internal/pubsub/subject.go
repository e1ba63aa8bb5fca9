package pubsub

import "sync"

// Subject хранит текущее значение и список подписчиков.
// Подписчик сразу получает текущее значение, дальше — каждое зафиксированное.
// Уведомления идут после коммита, частичное состояние наружу не попадает.
type Subject[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]func(T)
	next  int
}

func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial, subs: make(map[int]func(T))}
}

// Value текущее зафиксированное значение
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Publish сохраняет значение и синхронно уведомляет подписчиков
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	s.value = v
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe регистрирует подписчика и возвращает функцию отписки.
// Стартовое значение доставляется под замком: конкурирующий Publish не может
// вклинить более новое значение перед ним. Колбэк не должен звать Subject.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	fn(s.value)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
