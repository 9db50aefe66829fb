package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orderflowhq/orderflow-backend/api/controllers"
	"github.com/orderflowhq/orderflow-backend/api/routes"
	"github.com/orderflowhq/orderflow-backend/internal/checkout"
	"github.com/orderflowhq/orderflow-backend/internal/compensation"
	"github.com/orderflowhq/orderflow-backend/internal/inventory"
	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/payment"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/config"
	"github.com/orderflowhq/orderflow-backend/pkg/db"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/metrics"
	"github.com/orderflowhq/orderflow-backend/pkg/migrate"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox"
	"github.com/orderflowhq/orderflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	invRepo := inventory.NewRepository(dbClient.DB())
	inventorySvc, err := inventory.NewService(invRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	reservationSvc, err := reservation.NewService(
		reservation.NewRepository(dbClient.DB()),
		invRepo,
		dbClient,
		cfg.Checkout,
		logg,
		metrics.NewReservationMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersSvc, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	saga, err := checkout.NewSaga(
		ordersRepo,
		reservationSvc,
		outboxSvc,
		inventory.NewPriceResolver(invRepo),
		nil,
		dbClient,
		cfg.Checkout,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout saga", err)
		os.Exit(1)
	}

	paymentSvc, err := payment.NewService(ordersRepo, reservationSvc, outboxSvc, nil, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	coordinator, err := compensation.NewCoordinator(
		ordersRepo,
		reservationSvc,
		outboxSvc,
		outbox.NewDLQRepository(dbClient.DB()),
		dbClient,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create compensation coordinator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": "api",
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           controllers.ReadinessProbe{Name: "database", Ping: dbClient.Ping},
			Redis:        redisClient,
			Inventory:    inventorySvc,
			Orders:       ordersSvc,
			Reservations: reservationSvc,
			Checkout:     saga,
			Payments:     paymentSvc,
			Compensation: coordinator,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
