package storage

import (
	"context"
	"errors"
)

// ErrNotFound возвращается, когда ключ отсутствует в хранилище
var ErrNotFound = errors.New("not found")

// KV узкий порт персистентности: строковые ключи, JSON-значения.
// Ядро зависит только от этого интерфейса, конкретный носитель выбирается при сборке.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}
