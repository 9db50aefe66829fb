package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orderflowhq/orderflow-backend/api/controllers"
	"github.com/orderflowhq/orderflow-backend/api/middleware"
	"github.com/orderflowhq/orderflow-backend/internal/checkout"
	"github.com/orderflowhq/orderflow-backend/internal/compensation"
	"github.com/orderflowhq/orderflow-backend/internal/inventory"
	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/payment"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/config"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	pkgredis "github.com/orderflowhq/orderflow-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.ReadinessProbe
	Redis        *pkgredis.Client
	Inventory    inventory.Service
	Orders       orders.Service
	Reservations reservation.Service
	Checkout     *checkout.Saga
	Payments     payment.Service
	Compensation *compensation.Coordinator
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	probes := []controllers.ReadinessProbe{deps.DB}
	var idempotencyStore pkgredis.IdempotencyStore
	if deps.Redis != nil {
		probes = append(probes, controllers.ReadinessProbe{Name: "redis", Ping: deps.Redis.Ping})
		idempotencyStore = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, probes...))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/", controllers.CreateInventoryItem(deps.Inventory, logg))
			r.Get("/sku/{sku}/stock", controllers.GetStockBySKU(deps.Inventory, logg))
			r.Route("/{inventoryID}", func(r chi.Router) {
				r.Get("/stock", controllers.GetStock(deps.Inventory, logg))
				r.Post("/adjust", controllers.AdjustStock(deps.Inventory, logg))
				r.Get("/history", controllers.ListStockHistory(deps.Inventory, logg))
			})
		})

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", controllers.OrderDetail(deps.Orders, logg))
				r.Post("/pay", controllers.PayOrder(deps.Payments, logg))
				r.Post("/cancel", controllers.CancelOrder(deps.Compensation, logg))
				r.Post("/integration-failure", controllers.ReportIntegrationFailure(deps.Payments, logg))
				r.Get("/reservations", controllers.OrderReservations(deps.Reservations, logg))
			})
		})

		r.Get("/reservations/{reservationID}", controllers.GetReservation(deps.Reservations, logg))
	})

	return r
}
