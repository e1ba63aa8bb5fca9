package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"vitrine/internal/domain"
)

// ErrNotFound пункт самовывоза не найден
var ErrNotFound = errors.New("store not found")

// Документ списка магазинов с португальскими ключами
type storesDoc struct {
	Stores []storeDoc `json:"lojas"`
}

type storeDoc struct {
	ID        int        `json:"id"`
	Name      string     `json:"nome"`
	Phone     string     `json:"telefone"`
	Available bool       `json:"disponivel"`
	Address   addressDoc `json:"endereco"`
}

type addressDoc struct {
	Street     string `json:"logradouro"`
	Number     string `json:"numero"`
	Complement string `json:"complemento"`
	District   string `json:"bairro"`
	City       string `json:"cidade"`
	State      string `json:"estado"`
	CEP        string `json:"cep"`
}

func (d storeDoc) toDomain() domain.Store {
	return domain.Store{
		ID:        d.ID,
		Name:      d.Name,
		Phone:     d.Phone,
		Available: d.Available,
		Address: domain.Address{
			Street:     d.Address.Street,
			Number:     d.Address.Number,
			Complement: d.Address.Complement,
			District:   d.Address.District,
			City:       d.Address.City,
			State:      d.Address.State,
			CEP:        d.Address.CEP,
		},
	}
}

// Source источник списка магазинов
type Source interface {
	Fetch(ctx context.Context) ([]domain.Store, error)
}

// FileSource читает магазины из локального JSON-файла
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) ([]domain.Store, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read stores: %w", err)
	}
	var doc storesDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode stores: %w", err)
	}
	out := make([]domain.Store, 0, len(doc.Stores))
	for _, d := range doc.Stores {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Locator справочник пунктов самовывоза. Расстояние до CEP симулируется
// разницей числовых значений CEP, не настоящей геолокацией.
type Locator struct {
	mu     sync.RWMutex
	source Source
	stores []domain.Store
}

func NewLocator(source Source) *Locator {
	return &Locator{source: source}
}

// Load загружает список магазинов; при ошибке прежнее состояние сохраняется
func (l *Locator) Load(ctx context.Context) error {
	stores, err := l.source.Fetch(ctx)
	if err != nil {
		log.Printf("stores load failed, keeping previous state: %v", err)
		return err
	}
	l.mu.Lock()
	l.stores = stores
	l.mu.Unlock()
	return nil
}

// All доступные магазины
func (l *Locator) All() []domain.Store {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Store, 0, len(l.stores))
	for _, s := range l.stores {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// ByCity доступные магазины в городе, подстрока без учёта регистра
func (l *Locator) ByCity(city string) []domain.Store {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Store, 0)
	for _, s := range l.stores {
		if s.Available && strings.Contains(strings.ToLower(s.Address.City), strings.ToLower(city)) {
			out = append(out, s)
		}
	}
	return out
}

// ByID магазин по id
func (l *Locator) ByID(id int) (*domain.Store, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.stores {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// NearCEP до трёх ближайших доступных магазинов, отсортированных по симулированному
// расстоянию от CEP
func (l *Locator) NearCEP(cep string) []domain.Store {
	cepNum, err := strconv.Atoi(digitsOnly(cep))
	if err != nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Store, 0, len(l.stores))
	for _, s := range l.stores {
		if !s.Available {
			continue
		}
		storeNum, err := strconv.Atoi(digitsOnly(s.Address.CEP))
		if err != nil {
			continue
		}
		diff := cepNum - storeNum
		if diff < 0 {
			diff = -diff
		}
		dist := math.Min(float64(diff)/10000, 50)
		cp := s
		cp.Distance = math.Round(dist*10) / 10
		cp.EstimatedTime = estimatedTime(dist)
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// Loaded сообщает, загружен ли справочник
func (l *Locator) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.stores) > 0
}

// Total количество магазинов в справочнике
func (l *Locator) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.stores)
}

// TotalAvailable количество доступных магазинов
func (l *Locator) TotalAvailable() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, s := range l.stores {
		if s.Available {
			n++
		}
	}
	return n
}

// FullAddress полный адрес магазина одной строкой
func FullAddress(s domain.Store) string {
	a := s.Address
	complement := ""
	if a.Complement != "" {
		complement = ", " + a.Complement
	}
	return fmt.Sprintf("%s, %s%s - %s, %s - %s, %s", a.Street, a.Number, complement, a.District, a.City, a.State, a.CEP)
}

func estimatedTime(distance float64) string {
	switch {
	case distance < 5:
		return "15-20 min"
	case distance < 10:
		return "20-30 min"
	case distance < 20:
		return "30-45 min"
	default:
		return "45-60 min"
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
