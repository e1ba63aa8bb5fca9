package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"vitrine/internal/cart"
	"vitrine/internal/catalog"
	"vitrine/internal/cep"
	"vitrine/internal/domain"
	"vitrine/internal/order"
	"vitrine/internal/stores"
)

type Server struct {
	engine  *gin.Engine
	catalog *catalog.Cache
	cart    *cart.Store
	orders  *order.Store
	locator *stores.Locator
	cep     *cep.Client
}

func NewServer(cat *catalog.Cache, c *cart.Store, o *order.Store, l *stores.Locator, cepClient *cep.Client) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	s := &Server{engine: r, catalog: cat, cart: c, orders: o, locator: l, cep: cepClient}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	{
		cat := v1.Group("/catalog")
		cat.GET("", s.listCatalog)
		cat.GET("/promotions", s.listPromotions)
		cat.GET("/new", s.listNewArrivals)
		cat.GET("/:id", s.getProduct)
		cat.POST("/reload", s.reloadCatalog)

		crt := v1.Group("/cart")
		crt.GET("", s.getCart)
		crt.POST("/items", s.addCartItem)
		crt.PUT("/items/:id", s.setCartQuantity)
		crt.DELETE("/items/:id", s.removeCartItem)
		crt.DELETE("", s.clearCart)
		crt.POST("/validate", s.validateCart)

		v1.POST("/checkout", s.checkout)

		ord := v1.Group("/orders")
		ord.GET("", s.listOrders)
		ord.GET("/latest", s.latestOrder)
		ord.GET("/:number", s.getOrder)
		ord.POST("/:number/cancel", s.cancelOrder)
		ord.PUT("/:number/status", s.updateOrderStatus)

		v1.GET("/cep/:cep", s.lookupCEP)
		v1.GET("/stores", s.listStores)
		v1.GET("/stores/near", s.nearbyStores)
	}
}

// Catalog handlers

// @Summary List full catalog
// @Tags catalog
// @Produce json
// @Success 200 {array} domain.Product
// @Router /catalog [get]
func (s *Server) listCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Products())
}

// @Summary List promotions
// @Tags catalog
// @Produce json
// @Success 200 {array} domain.Product
// @Router /catalog/promotions [get]
func (s *Server) listPromotions(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Promotions())
}

// @Summary List new arrivals
// @Tags catalog
// @Produce json
// @Success 200 {array} domain.Product
// @Router /catalog/new [get]
func (s *Server) listNewArrivals(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.NewArrivals())
}

// @Summary Get product by id
// @Tags catalog
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /catalog/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := s.catalog.GetByID(id)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Reload catalog from source
// @Tags catalog
// @Success 204
// @Failure 502 {object} map[string]string
// @Router /catalog/reload [post]
func (s *Server) reloadCatalog(c *gin.Context) {
	if err := s.catalog.Load(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Cart handlers

type cartView struct {
	Items      []domain.CartLine `json:"items"`
	Subtotal   string            `json:"subtotal"`
	Shipping   string            `json:"shipping"`
	Total      string            `json:"total"`
	TotalItems int               `json:"total_items"`
}

// @Summary Current cart with totals
// @Tags cart
// @Produce json
// @Success 200 {object} cartView
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	subtotal := s.cart.Subtotal()
	shipping := cart.ShippingFor(subtotal, domain.FulfillmentDelivery)
	c.JSON(http.StatusOK, cartView{
		Items:      s.cart.Lines(),
		Subtotal:   subtotal.StringFixed(2),
		Shipping:   shipping.StringFixed(2),
		Total:      subtotal.Add(shipping).StringFixed(2),
		TotalItems: s.cart.TotalItemCount(),
	})
}

type addItemReq struct {
	ProductID int `json:"product_id" binding:"required"`
	Quantity  int `json:"quantity"`
}

// @Summary Add product to cart
// @Tags cart
// @Accept json
// @Produce json
// @Param input body addItemReq true "Item"
// @Success 200 {array} domain.CartLine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	p, err := s.catalog.GetByID(req.ProductID)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := s.cart.AddItem(c.Request.Context(), *p, req.Quantity); err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.cart.Lines())
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

// @Summary Set cart line quantity
// @Tags cart
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body setQuantityReq true "Quantity"
// @Success 200 {array} domain.CartLine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items/{id} [put]
func (s *Server) setCartQuantity(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req setQuantityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.cart.SetQuantity(c.Request.Context(), id, req.Quantity); err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.cart.Lines())
}

// @Summary Remove cart line
// @Tags cart
// @Param id path int true "Product ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /cart/items/{id} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.cart.RemoveItem(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Clear cart
// @Tags cart
// @Success 204
// @Router /cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	if err := s.cart.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Validate cart against current stock
// @Tags cart
// @Produce json
// @Success 200 {object} map[string]any
// @Router /cart/validate [post]
func (s *Server) validateCart(c *gin.Context) {
	ok, problems := s.cart.ValidateForCheckout()
	c.JSON(http.StatusOK, gin.H{"ok": ok, "problems": problems})
}

// Checkout

type addressReq struct {
	Street     string `json:"street" binding:"required"`
	Number     string `json:"number" binding:"required"`
	Complement string `json:"complement"`
	District   string `json:"district" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	CEP        string `json:"cep" binding:"required,min=8"`
}

type checkoutReq struct {
	Name          string      `json:"name" binding:"required,min=3"`
	Email         string      `json:"email" binding:"required,email"`
	Phone         string      `json:"phone" binding:"required,min=10"`
	Document      string      `json:"document" binding:"required,min=11"`
	Fulfillment   string      `json:"fulfillment" binding:"required,oneof=delivery pickup"`
	PaymentMethod string      `json:"payment_method" binding:"required,oneof=credito debito pix boleto"`
	CardNumber    string      `json:"card_number"`
	CardName      string      `json:"card_name"`
	CardExpiry    string      `json:"card_expiry"`
	CardCVV       string      `json:"card_cvv"`
	Address       *addressReq `json:"address"`
	StoreID       int         `json:"store_id"`
}

// @Summary Place order from current cart
// @Tags checkout
// @Accept json
// @Produce json
// @Param input body checkoutReq true "Checkout form"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /checkout [post]
func (s *Server) checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fulfillment := domain.Fulfillment(req.Fulfillment)

	// conditional blocks the binding tags can't express
	if fulfillment == domain.FulfillmentDelivery && req.Address == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address required for delivery"})
		return
	}
	if req.PaymentMethod == "credito" || req.PaymentMethod == "debito" {
		if req.CardNumber == "" || req.CardName == "" || req.CardExpiry == "" || req.CardCVV == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "card details required"})
			return
		}
	}

	form := order.CheckoutForm{
		Customer: domain.Customer{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			Document: req.Document,
		},
		PaymentMethod: req.PaymentMethod,
	}
	if req.Address != nil {
		form.Address = &domain.Address{
			Street:     req.Address.Street,
			Number:     req.Address.Number,
			Complement: req.Address.Complement,
			District:   req.Address.District,
			City:       req.Address.City,
			State:      req.Address.State,
			CEP:        req.Address.CEP,
		}
	}
	if fulfillment == domain.FulfillmentPickup && req.StoreID != 0 {
		st, err := s.locator.ByID(req.StoreID)
		if err != nil {
			c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
			return
		}
		form.Store = st
	}

	o, err := s.orders.Place(c.Request.Context(), form, fulfillment)
	if err != nil {
		var verr *cart.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "problems": verr.Problems})
			return
		}
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, o)
}

// Order handlers

// @Summary List orders, newest first
// @Tags orders
// @Produce json
// @Success 200 {array} domain.Order
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.orders.Orders())
}

// @Summary Latest placed order
// @Tags orders
// @Produce json
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Router /orders/latest [get]
func (s *Server) latestOrder(c *gin.Context) {
	o, err := s.orders.Latest(c.Request.Context())
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Get order by number
// @Tags orders
// @Produce json
// @Param number path string true "Order number"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Router /orders/{number} [get]
func (s *Server) getOrder(c *gin.Context) {
	o, err := s.orders.ByNumber(c.Param("number"))
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Cancel order and restore stock
// @Tags orders
// @Produce json
// @Param number path string true "Order number"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{number}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	o, err := s.orders.Cancel(c.Request.Context(), c.Param("number"))
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, o)
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

// @Summary Update order status
// @Tags orders
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param input body updateStatusReq true "New status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{number}/status [put]
func (s *Server) updateOrderStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.UpdateStatus(c.Request.Context(), c.Param("number"), domain.OrderStatus(req.Status))
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, o)
}

// Collaborators

// @Summary Address by postal code
// @Tags lookup
// @Produce json
// @Param cep path string true "CEP, 8 digits"
// @Success 200 {object} cep.Result
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cep/{cep} [get]
func (s *Server) lookupCEP(c *gin.Context) {
	res, err := s.cep.Lookup(c.Request.Context(), c.Param("cep"))
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary List pickup stores
// @Tags lookup
// @Produce json
// @Param city query string false "City contains"
// @Success 200 {array} domain.Store
// @Router /stores [get]
func (s *Server) listStores(c *gin.Context) {
	if city := c.Query("city"); city != "" {
		c.JSON(http.StatusOK, s.locator.ByCity(city))
		return
	}
	c.JSON(http.StatusOK, s.locator.All())
}

// @Summary Up to 3 pickup stores nearest to a CEP
// @Tags lookup
// @Produce json
// @Param cep query string true "CEP"
// @Success 200 {array} domain.Store
// @Failure 400 {object} map[string]string
// @Router /stores/near [get]
func (s *Server) nearbyStores(c *gin.Context) {
	cepParam := c.Query("cep")
	if cepParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cep is required"})
		return
	}
	c.JSON(http.StatusOK, s.locator.NearCEP(cepParam))
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, stores.ErrNotFound),
		errors.Is(err, cep.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidInput),
		errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, cart.ErrQuantityLimit),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrPickupStoreRequired),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, cep.ErrInvalidCEP):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrStockConflict),
		errors.Is(err, order.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
