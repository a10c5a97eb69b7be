package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-market/config"
	"ticket-market/handlers"
	"ticket-market/internal/services/payproc"
	"ticket-market/internal/services/payproc/stripeish"
	_ "ticket-market/migrations"
	"ticket-market/monitoring"
	"ticket-market/security"
	"ticket-market/services"
	"ticket-market/utils"
)

func main() {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor, err := buildProcessor(ctx, cfg)
	if err != nil {
		log.Fatalf("payment processor: %v", err)
	}
	defer processor.Close(context.Background())

	balanceFeeRate := decimal.NewFromFloat(cfg.BalanceFeeRate)
	cardFeeRate := decimal.NewFromFloat(cfg.CardFeeRate)

	store := services.NewRecordStore(app)
	balanceService := services.NewBalanceService(app, redisClient)
	ticketService := services.NewTicketService(app)
	listingService := services.NewListingService(app)

	provisioner := services.NewProvisioner(store, redisClient, processor, cfg.ReservationTTL, cardFeeRate, cfg.Currency)
	breaker := utils.NewCircuitBreaker("payment-processor")
	resolver := services.NewResolver(store, balanceService, processor, breaker, balanceFeeRate, cardFeeRate, cfg.PaymentTimeout)
	notifier := services.NewNotifier(redisClient, &services.PubNubPublisher{PN: pn})
	catalog := &services.ServiceCatalog{
		Tickets:  ticketService,
		Listings: listingService,
		Balances: balanceService,
	}
	purchaseService := services.NewPurchaseService(provisioner, resolver, notifier, catalog)

	purchaseHandler := handlers.NewPurchaseHandler(app, purchaseService)
	listingHandler := handlers.NewListingHandler(app, listingService)
	balanceHandler := handlers.NewBalanceHandler(app, balanceService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	adminHandler := handlers.NewAdminHandler(app, ticketService, balanceService, resolver, store, cfg.AdminAPIKeyHash)

	rateLimiter := security.NewRateLimiter(redisClient)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		monitor := monitoring.NewMonitor(redisClient)
		purchaseService.SetMetrics(monitor)
		resolver.SetMetrics(monitor)
		monitoring.ServeOps(":"+cfg.MetricsPort, rateLimiter.OpsRateLimit())
	}

	go restoreReservationState(redisClient)
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Catalog endpoints
		e.Router.GET("/api/market/events", ticketHandler.Events)
		e.Router.GET("/api/market/events/{eventId}", ticketHandler.Event)
		e.Router.GET("/api/market/events/{eventId}/tiers", ticketHandler.Tiers)
		e.Router.GET("/api/market/events/{eventId}/listings", listingHandler.ByEvent)
		e.Router.GET("/api/market/tickets/mine", ticketHandler.MyTickets)

		// Purchase session endpoints
		purchases := e.Router.Group("/api/market/purchase")
		purchases.BindFunc(rateLimiter.PurchaseRateLimit(20))
		purchases.POST("/sessions", purchaseHandler.StartSession)
		purchases.GET("/sessions/{sessionId}", purchaseHandler.GetSession)
		purchases.PATCH("/sessions/{sessionId}/selection", purchaseHandler.UpdateSelection)
		purchases.POST("/sessions/{sessionId}/confirm", purchaseHandler.Confirm)
		purchases.POST("/sessions/{sessionId}/payment", purchaseHandler.SubmitPayment)
		purchases.POST("/sessions/{sessionId}/cancel", purchaseHandler.Cancel)
		purchases.GET("/sessions/{sessionId}/receipt", purchaseHandler.Receipt)

		// Listing endpoints
		e.Router.POST("/api/market/listings", listingHandler.Create)
		e.Router.GET("/api/market/listings/mine", listingHandler.Mine)
		e.Router.POST("/api/market/listings/{listingId}/cancel", listingHandler.Cancel)

		// Balance endpoints
		e.Router.GET("/api/market/balance", balanceHandler.Current)
		e.Router.GET("/api/market/balance/history", balanceHandler.History)

		// Admin endpoints
		e.Router.POST("/api/market/admin/tickets/generate", adminHandler.GenerateTickets)
		e.Router.POST("/api/market/admin/transactions/{transactionId}/refund", adminHandler.RefundTransaction)
		e.Router.GET("/api/market/admin/balances/{userId}/audit", adminHandler.AuditBalance)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

// buildProcessor picks the card processor backend. Development runs
// against the in-memory mock; anything else talks to the real gateway.
func buildProcessor(ctx context.Context, cfg *config.Config) (payproc.Processor, error) {
	factory := payproc.NewFactory()

	if cfg.Environment == "development" {
		return factory.CreateProcessor(ctx, payproc.ProviderMock, nil)
	}

	return factory.CreateProcessor(ctx, payproc.ProviderStripeish, &stripeish.Config{
		BaseURL:   cfg.ProcessorBaseURL,
		AccountID: cfg.ProcessorAccountID,
		ClientID:  cfg.ProcessorClientID,
		ClientKey: cfg.ProcessorClientKey,
		HMACKey:   cfg.ProcessorHMACKey,
		Currency:  cfg.Currency,
		PNSubKey:  cfg.ProcessorPNSubKey,
		PNUUID:    cfg.ProcessorPNUUID,
		PNChannel: cfg.ProcessorPNChannel,
	})
}

// restoreReservationState reports the reservations that survived a
// restart. Reservations carry their own TTL, so nothing needs rebuilding;
// the log line is for the operator.
func restoreReservationState(redisClient *redis.Client) {
	ctx := context.Background()

	for _, kind := range []string{"ticket", "listing"} {
		keys, err := redisClient.Keys(ctx, "reserve:"+kind+":*").Result()
		if err != nil {
			log.Printf("Error scanning %s reservations: %v", kind, err)
			continue
		}
		if len(keys) > 0 {
			log.Printf("Restored %d live %s reservations", len(keys), kind)
		}
	}
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")
	cancel()
}
