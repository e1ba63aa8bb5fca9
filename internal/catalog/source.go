package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/shopspring/decimal"

	"vitrine/internal/domain"
)

// Документ каталога: два именованных списка товаров с португальскими ключами
type catalogDoc struct {
	Promotions  []productDoc `json:"promocoes"`
	NewArrivals []productDoc `json:"lancamentos"`
}

type productDoc struct {
	ID           int              `json:"id"`
	Name         string           `json:"nome"`
	Price        decimal.Decimal  `json:"preco"`
	OldPrice     *decimal.Decimal `json:"precoAntigo,omitempty"`
	Image        string           `json:"imagem"`
	Rating       float64          `json:"rating"`
	Installments int              `json:"parcelas"`
	Category     string           `json:"categoria,omitempty"`
	Description  string           `json:"descricao,omitempty"`
	Stock        int              `json:"estoque"`
}

func (d productDoc) toDomain() domain.Product {
	return domain.Product{
		ID:           d.ID,
		Name:         d.Name,
		Price:        d.Price,
		OldPrice:     d.OldPrice,
		Image:        d.Image,
		Rating:       d.Rating,
		Installments: d.Installments,
		Category:     d.Category,
		Description:  d.Description,
		Stock:        d.Stock,
	}
}

// Data результат загрузки каталога
type Data struct {
	Promotions  []domain.Product
	NewArrivals []domain.Product
}

// Source источник каталога
type Source interface {
	Fetch(ctx context.Context) (Data, error)
}

// FileSource читает каталог из локального JSON-файла
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (Data, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Data{}, fmt.Errorf("read catalog: %w", err)
	}
	return decodeDoc(raw)
}

// HTTPSource читает каталог по URL
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Fetch(ctx context.Context) (Data, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Data{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Data{}, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Data{}, fmt.Errorf("fetch catalog: status %d", resp.StatusCode)
	}
	var doc catalogDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Data{}, fmt.Errorf("decode catalog: %w", err)
	}
	return docToData(doc), nil
}

func decodeDoc(raw []byte) (Data, error) {
	var doc catalogDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Data{}, fmt.Errorf("decode catalog: %w", err)
	}
	return docToData(doc), nil
}

func docToData(doc catalogDoc) Data {
	var d Data
	for _, p := range doc.Promotions {
		d.Promotions = append(d.Promotions, p.toDomain())
	}
	for _, p := range doc.NewArrivals {
		d.NewArrivals = append(d.NewArrivals, p.toDomain())
	}
	return d
}
