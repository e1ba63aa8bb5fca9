package cep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://viacep.com.br"

var (
	// ErrInvalidCEP CEP не состоит из восьми цифр
	ErrInvalidCEP = errors.New("invalid cep")
	// ErrNotFound сервис не знает такой CEP
	ErrNotFound = errors.New("cep not found")
)

// Result адрес по CEP
type Result struct {
	CEP      string `json:"cep"`
	Street   string `json:"street"`
	District string `json:"district"`
	City     string `json:"city"`
	State    string `json:"state"`
}

// Client тонкая обёртка над ViaCEP
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup возвращает адрес по восьмизначному CEP
func (c *Client) Lookup(ctx context.Context, cep string) (*Result, error) {
	digits := digitsOnly(cep)
	if len(digits) != 8 {
		return nil, ErrInvalidCEP
	}
	url := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, digits)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cep lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cep lookup: status %d", resp.StatusCode)
	}

	var body struct {
		CEP      string `json:"cep"`
		Street   string `json:"logradouro"`
		District string `json:"bairro"`
		City     string `json:"localidade"`
		State    string `json:"uf"`
		// ViaCEP отдаёт erro то как true, то как "true"
		Erro json.RawMessage `json:"erro"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("cep lookup: %w", err)
	}
	if erro := string(body.Erro); erro == "true" || erro == `"true"` {
		return nil, ErrNotFound
	}
	return &Result{
		CEP:      body.CEP,
		Street:   body.Street,
		District: body.District,
		City:     body.City,
		State:    body.State,
	}, nil
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
