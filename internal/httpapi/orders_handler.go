package httpapi

import (
	"net/http"

	"github.com/Hrithik248/busy-buy/internal/cartsync"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	cart *cartsync.Service
	log  *zap.Logger
}

func NewOrdersHandler(cart *cartsync.Service, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{cart: cart, log: log}
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if !requireBoundUser(w, r, h.cart.UserID()) {
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": h.cart.Orders(),
	})
}

// PlaceOrder turns the current cart snapshot into an order. The response is
// sent only after the order is visible in the synchronized snapshot.
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if !requireBoundUser(w, r, h.cart.UserID()) {
		return
	}

	orderID, err := h.cart.PlaceOrder(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}
