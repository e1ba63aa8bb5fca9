package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"vitrine/internal/cart"
	"vitrine/internal/catalog"
	"vitrine/internal/cep"
	"vitrine/internal/domain"
	"vitrine/internal/order"
	"vitrine/internal/storage"
	"vitrine/internal/stores"
)

type catalogStub struct {
	data catalog.Data
}

func (s catalogStub) Fetch(context.Context) (catalog.Data, error) { return s.data, nil }

type storesStub struct {
	stores []domain.Store
}

func (s storesStub) Fetch(context.Context) ([]domain.Store, error) { return s.stores, nil }

func setupServer(t *testing.T, cepBase string) *Server {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemory()

	cat := catalog.NewCache(catalogStub{data: catalog.Data{
		Promotions: []domain.Product{
			{ID: 1, Name: "Fone Bluetooth", Price: decimal.RequireFromString("10.00"), Stock: 5},
		},
		NewArrivals: []domain.Product{
			{ID: 2, Name: "Smartwatch", Price: decimal.RequireFromString("300.00"), Stock: 4},
		},
	}}, kv)
	if err := cat.Load(ctx); err != nil {
		t.Fatal(err)
	}

	cartStore := cart.NewStore(ctx, cat, kv)
	orderStore := order.NewStore(ctx, cat, cartStore, kv)

	locator := stores.NewLocator(storesStub{stores: []domain.Store{
		{ID: 1, Name: "Loja Centro", Available: true, Address: domain.Address{City: "São Paulo", CEP: "01001-000"}},
		{ID: 2, Name: "Loja Paulista", Available: true, Address: domain.Address{City: "São Paulo", CEP: "01310-200"}},
	}})
	if err := locator.Load(ctx); err != nil {
		t.Fatal(err)
	}

	return NewServer(cat, cartStore, orderStore, locator, cep.NewClient(cepBase))
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func checkoutBody() map[string]any {
	return map[string]any{
		"name":           "John Doe",
		"email":          "john@example.com",
		"phone":          "11999990000",
		"document":       "12345678901",
		"fulfillment":    "delivery",
		"payment_method": "pix",
		"address": map[string]any{
			"street":   "Rua Principal",
			"number":   "100",
			"district": "Centro",
			"city":     "São Paulo",
			"state":    "SP",
			"cep":      "01001-000",
		},
	}
}

func TestCartFlow(t *testing.T) {
	s := setupServer(t, "")

	// add
	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": 1, "quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add code %v: %s", w.Code, w.Body.String())
	}

	// cart view with totals
	w = doJSON(t, s, http.MethodGet, "/api/v1/cart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get cart %v", w.Code)
	}
	var view struct {
		Subtotal   string `json:"subtotal"`
		Shipping   string `json:"shipping"`
		Total      string `json:"total"`
		TotalItems int    `json:"total_items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Subtotal != "20.00" || view.Shipping != "29.90" || view.Total != "49.90" || view.TotalItems != 2 {
		t.Fatalf("cart view: %+v", view)
	}

	// set quantity
	w = doJSON(t, s, http.MethodPut, "/api/v1/cart/items/1", map[string]any{"quantity": 4})
	if w.Code != http.StatusOK {
		t.Fatalf("set quantity %v", w.Code)
	}

	// beyond stock
	w = doJSON(t, s, http.MethodPut, "/api/v1/cart/items/1", map[string]any{"quantity": 6})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 beyond stock, got %v", w.Code)
	}

	// validate
	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/validate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate %v", w.Code)
	}

	// remove + clear
	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/items/1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("remove %v", w.Code)
	}
	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear %v", w.Code)
	}
}

func TestCheckoutFlow_Delivery(t *testing.T) {
	s := setupServer(t, "")

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": 1, "quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", checkoutBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout %v: %s", w.Code, w.Body.String())
	}
	var placed struct {
		Number string `json:"number"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &placed); err != nil {
		t.Fatal(err)
	}
	if placed.Status != "awaiting_payment" {
		t.Fatalf("status: %q", placed.Status)
	}

	// stock decreased
	w = doJSON(t, s, http.MethodGet, "/api/v1/catalog/1", nil)
	var p struct {
		Stock int `json:"stock"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Stock != 3 {
		t.Fatalf("stock after checkout: %d", p.Stock)
	}

	// order listed and retrievable
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/"+placed.Number, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/latest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("latest %v", w.Code)
	}

	// cancel restores stock, second cancel conflicts
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+placed.Number+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/catalog/1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Stock != 5 {
		t.Fatalf("stock after cancel: %d", p.Stock)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/orders/"+placed.Number+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", w.Code)
	}
}

func TestCheckoutFlow_Pickup(t *testing.T) {
	s := setupServer(t, "")

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": 2, "quantity": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("add %v", w.Code)
	}

	body := checkoutBody()
	body["fulfillment"] = "pickup"
	delete(body, "address")

	// no store selected
	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without store, got %v", w.Code)
	}

	body["store_id"] = 2
	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("pickup checkout %v: %s", w.Code, w.Body.String())
	}
	var placed struct {
		StoreName string `json:"store_name"`
		Shipping  string `json:"shipping"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &placed); err != nil {
		t.Fatal(err)
	}
	if placed.StoreName != "Loja Paulista" {
		t.Fatalf("store: %q", placed.StoreName)
	}
	if placed.Shipping != "0" {
		t.Fatalf("pickup shipping: %q", placed.Shipping)
	}
}

func TestCheckout_EmptyCartAndBadForm(t *testing.T) {
	s := setupServer(t, "")

	// empty cart
	w := doJSON(t, s, http.MethodPost, "/api/v1/checkout", checkoutBody())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %v", w.Code)
	}

	_ = doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": 1, "quantity": 1})

	// invalid email
	body := checkoutBody()
	body["email"] = "not-an-email"
	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %v", w.Code)
	}

	// card payment without card details
	body = checkoutBody()
	body["payment_method"] = "credito"
	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing card, got %v", w.Code)
	}
}

func TestHTTP_BadRequestsAndNotFound(t *testing.T) {
	s := setupServer(t, "")

	w := doJSON(t, s, http.MethodGet, "/api/v1/catalog/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/catalog/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/orders/%23CC-000000", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": 999})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %v", w.Code)
	}
}

func TestStoresEndpoints(t *testing.T) {
	s := setupServer(t, "")

	w := doJSON(t, s, http.MethodGet, "/api/v1/stores", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stores %v", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/stores/near", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without cep, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/stores/near?cep=01001-000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("near %v", w.Code)
	}
	var near []domain.Store
	if err := json.Unmarshal(w.Body.Bytes(), &near); err != nil {
		t.Fatal(err)
	}
	if len(near) != 2 || near[0].ID != 1 {
		t.Fatalf("near ranking: %v", near)
	}
}

func TestCEPEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/ws/01001000/json/" {
			w.Write([]byte(`{"cep":"01001-000","logradouro":"Praça da Sé","bairro":"Sé","localidade":"São Paulo","uf":"SP"}`))
			return
		}
		w.Write([]byte(`{"erro": true}`))
	}))
	defer upstream.Close()

	s := setupServer(t, upstream.URL)

	w := doJSON(t, s, http.MethodGet, "/api/v1/cep/01001-000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cep %v: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/cep/99999999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/api/v1/cep/123", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
}
