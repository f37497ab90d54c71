package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"parkwise/config"
	"parkwise/database"
	"parkwise/events"
	"parkwise/handlers"
	"parkwise/routes"
	"parkwise/services"
	"parkwise/store"
	"parkwise/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	publisher := openPublisher(cfg)
	defer publisher.Close()

	clock := services.SystemClock{}
	registry := services.NewSpotRegistry(st)
	ledger := services.NewLedger(st, clock)
	lots := services.NewLotService(st, registry, clock)
	auditor := services.NewAuditor(st, clock)

	opts := []services.EngineOption{services.WithPublisher(publisher)}
	if cfg.AESKey != "" {
		fieldCipher, err := utils.NewFieldCipher(cfg.AESKey)
		if err != nil {
			log.Fatalf("Failed to initialize crypto: %v", err)
		}
		opts = append(opts, services.WithFieldSealer(fieldCipher))
		log.Println("Contact encryption enabled")
	}
	engine := services.NewReservationEngine(st, registry, ledger, clock, opts...)

	// 確保營運帳戶存在
	ctx := context.Background()
	operator, err := ledger.EnsureOperator(ctx, cfg.OperatorAccountID, cfg.OperatorName, cfg.OperatorInitialBalance)
	if err != nil {
		log.Fatalf("Failed to ensure operator account: %v", err)
	}
	log.Printf("Operator account ready: account_id=%d, balance=%.2f", operator.AccountID, operator.Balance)

	gin.SetMode(cfg.GinMode)
	log.Printf("Gin mode set to %s", cfg.GinMode)

	r := gin.Default()
	api := r.Group("/api")
	{
		routes.Path(api, handlers.New(lots, engine, ledger, auditor), []byte(cfg.JWTSecret))
	}

	// 定期檢查車位占用與預約是否一致
	c := cron.New()
	_, err = c.AddFunc(cfg.AuditSchedule, func() {
		log.Println("Running occupancy audit...")
		if _, err := auditor.Run(context.Background()); err != nil {
			log.Printf("Failed to run occupancy audit: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule occupancy audit cron job: %v", err)
	}
	c.Start()
	log.Println("Cron jobs started")

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "bolt" {
		log.Printf("Using BoltDB store at %s", cfg.BoltPath)
		return store.NewBoltStore(cfg.BoltPath)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return store.NewGormStore(db), nil
}

func openPublisher(cfg *config.Config) events.Publisher {
	if cfg.RabbitMQURL == "" {
		log.Println("RABBITMQ_URL not set, events will be logged only")
		return events.LogPublisher{}
	}
	publisher, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventExchange)
	if err != nil {
		log.Printf("Failed to connect event publisher, falling back to log: %v", err)
		return events.LogPublisher{}
	}
	log.Printf("Publishing events to exchange %s", cfg.EventExchange)
	return publisher
}
