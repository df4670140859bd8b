// Package httpapi is the HTTP surface over the storefront services: chi
// routing, bearer-token auth, JSON DTOs.
package httpapi

import (
	"net/http"
	"time"

	"github.com/Hrithik248/busy-buy/internal/cartsync"
	"github.com/Hrithik248/busy-buy/internal/catalog"
	"github.com/Hrithik248/busy-buy/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Sessions *session.Manager
	Cart     *cartsync.Service
	Catalog  catalog.RepoInterface
	Resolver TokenResolver
	Log      *zap.Logger

	RequestTimeout time.Duration
}

// NewRouter assembles the route tree. Catalog browsing is public; cart and
// order routes require a valid session token.
func NewRouter(deps Deps) http.Handler {
	if deps.RequestTimeout == 0 {
		deps.RequestTimeout = 30 * time.Second
	}

	auth := NewAuthHandler(deps.Sessions, deps.Log)
	products := NewProductHandler(deps.Catalog, deps.Log)
	cart := NewCartHandler(deps.Cart, deps.Catalog, deps.Log)
	orders := NewOrdersHandler(deps.Cart, deps.Log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", auth.SignUp)
		r.Post("/signin", auth.SignIn)
		r.Post("/signout", auth.SignOut)
		r.Get("/session", auth.Session)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", products.ListProducts)
		r.Get("/{productID}", products.GetProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(deps.Resolver))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Post("/items", cart.AddItem)
			r.Delete("/items/{productID}", cart.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Post("/", orders.PlaceOrder)
		})
	})

	return r
}
