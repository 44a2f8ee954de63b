package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/ebook_shop/internal/config"
	"github.com/Skotchmaster/ebook_shop/internal/es"
	"github.com/Skotchmaster/ebook_shop/internal/handlers"
	"github.com/Skotchmaster/ebook_shop/internal/handlers/cart"
	"github.com/Skotchmaster/ebook_shop/internal/handlers/download"
	"github.com/Skotchmaster/ebook_shop/internal/handlers/order"
	"github.com/Skotchmaster/ebook_shop/internal/logging"
	"github.com/Skotchmaster/ebook_shop/internal/mykafka"
	"github.com/Skotchmaster/ebook_shop/internal/service"
	"github.com/Skotchmaster/ebook_shop/internal/service/fulfillment"
	httpserver "github.com/Skotchmaster/ebook_shop/internal/transport/http"
)

func main() {
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Ошибка инициализации БД: %v", err)
	}

	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(logging.New(configuration.LOG_LEVEL))

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	brokers := []string{configuration.KAFKA_ADDRESS}
	topics := []string{"user_events", "cart_events", "book_events", "order_events", "download_events"}
	prod, err := mykafka.NewProducer(brokers, topics)
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	svc := &fulfillment.Service{
		DB: db,
		Cfg: fulfillment.Config{
			BaseURL:              configuration.BASE_URL,
			LinkTTL:              configuration.DOWNLOAD_TTL,
			OneTimeLinks:         configuration.DOWNLOAD_ONE_TIME,
			DefaultDownloadLimit: configuration.DEFAULT_DOWNLOAD_LIMIT,
		},
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	// Request-scoped logger: service paths pull it back out with
	// logging.FromContext.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := slog.Default().With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			ctx := logging.IntoContext(c.Request().Context(), l)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		DB:              db,
		AuthHandler:     &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: prod},
		BookHandler:     &handlers.BookHandler{DB: db, Producer: prod, JWTSecret: jwtSecret},
		AddressHandler:  &handlers.AddressHandler{DB: db, JWTSecret: jwtSecret},
		CartHandler:     &cart.CartHandler{DB: db, Producer: prod, JWTSecret: jwtSecret},
		OrderHandler:    &order.OrderHandler{DB: db, Svc: svc, Producer: prod, JWTSecret: jwtSecret},
		DownloadHandler: &download.DownloadHandler{DB: db, Svc: svc, Producer: prod, JWTSecret: jwtSecret},
		ServiceHandler:  &service.TokenService{DB: db, RefreshSecret: refreshSecret, JWTSecret: jwtSecret},
		SearchHandler:   &handlers.SearchHandler{ES: esClient, Index: "book"},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
