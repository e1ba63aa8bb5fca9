package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product представляет товар каталога
type Product struct {
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	OldPrice     *decimal.Decimal `json:"old_price,omitempty"`
	Image        string           `json:"image"`
	Rating       float64          `json:"rating"`
	Installments int              `json:"installments"`
	Category     string           `json:"category,omitempty"`
	Description  string           `json:"description,omitempty"`
	Stock        int              `json:"stock"`
}

// CartLine позиция корзины: снимок товара плюс количество
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Fulfillment способ получения заказа
type Fulfillment string

const (
	FulfillmentDelivery Fulfillment = "delivery"
	FulfillmentPickup   Fulfillment = "pickup"
)

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	StatusAwaitingPayment  OrderStatus = "awaiting_payment"
	StatusPaymentConfirmed OrderStatus = "payment_confirmed"
	StatusPicking          OrderStatus = "picking"
	StatusShipping         OrderStatus = "shipping"
	StatusDelivered        OrderStatus = "delivered"
	StatusCancelled        OrderStatus = "cancelled"
)

// Terminal сообщает, является ли статус конечным
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Valid проверяет, что значение принадлежит машине статусов
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusAwaitingPayment, StatusPaymentConfirmed, StatusPicking,
		StatusShipping, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// OrderItem снимок позиции на момент оформления, не ссылается на живой каталог
type OrderItem struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// Address адрес доставки
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	CEP        string `json:"cep"`
}

// Customer контактные данные покупателя
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// Store пункт самовывоза
type Store struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone,omitempty"`
	Address       Address `json:"address"`
	Available     bool    `json:"available"`
	Distance      float64 `json:"distance,omitempty"`
	EstimatedTime string  `json:"estimated_time,omitempty"`
}

// Order сущность заказа. Items — независимые копии, итоги фиксируются при оформлении
type Order struct {
	ID               uuid.UUID       `json:"id"`
	Number           string          `json:"number"`
	Date             time.Time       `json:"date"`
	Items            []OrderItem     `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Shipping         decimal.Decimal `json:"shipping"`
	Total            decimal.Decimal `json:"total"`
	PaymentMethod    string          `json:"payment_method"`
	Fulfillment      Fulfillment     `json:"fulfillment"`
	Address          *Address        `json:"address,omitempty"`
	StoreID          int             `json:"store_id,omitempty"`
	StoreName        string          `json:"store_name,omitempty"`
	DeliveryEstimate string          `json:"delivery_estimate"`
	Customer         Customer        `json:"customer"`
	Status           OrderStatus     `json:"status"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

// PaymentMethodLabel отображаемое название способа оплаты
func PaymentMethodLabel(code string) string {
	switch code {
	case "credito":
		return "Cartão de Crédito"
	case "debito":
		return "Cartão de Débito"
	case "pix":
		return "PIX"
	case "boleto":
		return "Boleto Bancário"
	default:
		return "Não informado"
	}
}
