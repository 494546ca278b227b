package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yourorg/stock-trader/internal/auth"
	"github.com/yourorg/stock-trader/internal/domain"
)

func NewRouter(h *Handlers, hub *Hub, jwtSvc *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5174"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/admin-register", h.AdminRegister)
	r.Post("/api/auth/login", h.Login)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(jwtSvc))

		r.Get("/profile", h.GetProfile)
		r.Get("/market", h.ListMarket)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleCustomer))
			r.Get("/holdings", h.GetHoldings)
			r.Get("/orders", h.ListOrders)
			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/settle", h.SettleOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Get("/transactions", h.ListTransactions)
			r.Post("/funds/deposit", h.Deposit)
			r.Post("/funds/withdraw", h.Withdraw)
			r.Get("/payment-methods", h.ListPaymentMethods)
			r.Post("/payment-methods", h.AddPaymentMethod)
			r.Post("/payment-methods/{id}/default", h.SetDefaultPaymentMethod)
			r.Delete("/payment-methods/{id}", h.RemovePaymentMethod)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleAdmin))
			r.Post("/stocks", h.CreateStock)
			r.Put("/stocks/{id}", h.UpdateStock)
			r.Delete("/stocks/{id}", h.DeleteStock)
		})
	})

	r.Get("/ws", ServeWS(hub, h.logger))

	return r
}
