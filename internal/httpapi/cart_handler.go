package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Hrithik248/busy-buy/internal/cartsync"
	"github.com/Hrithik248/busy-buy/internal/catalog"
	"github.com/Hrithik248/busy-buy/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartHandler struct {
	cart    *cartsync.Service
	catalog catalog.RepoInterface
	log     *zap.Logger
}

func NewCartHandler(cart *cartsync.Service, cat catalog.RepoInterface, log *zap.Logger) *CartHandler {
	return &CartHandler{cart: cart, catalog: cat, log: log}
}

type addItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	if !requireBoundUser(w, r, h.cart.UserID()) {
		return
	}

	items := h.cart.Cart()
	var total float64
	for _, it := range items {
		total += it.Price * float64(it.Qty)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

// AddItem resolves the product from the catalog and adds one unit to the
// cart, denormalizing name, price, and image at insertion time.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !requireBoundUser(w, r, h.cart.UserID()) {
		return
	}

	var req addItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	err = h.cart.AddToCart(r.Context(), domain.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		ImageURL:  product.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !requireBoundUser(w, r, h.cart.UserID()) {
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	if err := h.cart.RemoveFromCart(r.Context(), productID); err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
