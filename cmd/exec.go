package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"ticket-issuer/config"
	"ticket-issuer/internal/handlers"
	"ticket-issuer/internal/services"
	"ticket-issuer/internal/services/credential"
	"ticket-issuer/internal/services/notify"
	"ticket-issuer/internal/services/payment"
	"ticket-issuer/internal/services/realtime"
	"ticket-issuer/internal/services/store"
	_ "ticket-issuer/migrations"
	"ticket-issuer/models"
	"ticket-issuer/monitoring"
	"ticket-issuer/security"
	"ticket-issuer/utils"
)

// components is everything the HTTP layer and background jobs need.
type components struct {
	repo       store.TicketRepository
	notifier   *notify.Notifier
	feed       realtime.Publisher
	issuance   *services.IssuanceService
	validation *services.ValidationService
	orders     *services.OrderService
}

func Start() error {
	app := pocketbase.New()
	logger := slog.Default().With("service", "ticket-issuer")

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
	}

	c, err := build(app, cfg, redisClient, logger)
	if err != nil {
		return err
	}

	orderHandler := handlers.NewOrderHandler(c.orders, cfg, logger)
	ticketHandler := handlers.NewTicketHandler(c.issuance, c.validation, cfg, logger)
	systemHandler := handlers.NewSystemHandler(cfg, redisClient)

	staffGuard := security.NewStaffGuard(cfg.StaffKeyHash)
	if !staffGuard.Enabled() {
		logger.Warn("STAFF_KEY_HASH not set, staff endpoints are open outside production")
	}
	var limiter *security.RateLimiter
	if redisClient != nil {
		limiter = security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, logger)
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: !cfg.IsProduction(),
	})
	app.RootCmd.AddCommand(staffKeyCommand())

	ctx, cancel := context.WithCancel(context.Background())

	go monitoring.NewMonitor(c.orders).Run(ctx)

	setupTicketHooks(app, c.feed, logger)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		public := func(route *router.Route[*core.RequestEvent]) {}
		if limiter != nil {
			public = func(route *router.Route[*core.RequestEvent]) { route.BindFunc(limiter.Limit) }
		}

		e.Router.GET("/api/health", systemHandler.Health)
		e.Router.GET("/api/config", systemHandler.Config)

		// Purchase endpoints
		public(e.Router.POST("/api/create-order", orderHandler.CreateOrder))
		public(e.Router.POST("/api/paypal/create-order", orderHandler.CreateCardOrder))
		public(e.Router.POST("/api/paypal/capture", orderHandler.CaptureOrder))
		public(e.Router.POST("/api/paypal/capture-order", orderHandler.CaptureOrder))

		// Staff endpoints
		e.Router.POST("/api/confirm-transfer", orderHandler.ConfirmTransfer).BindFunc(staffGuard.Require)
		e.Router.POST("/api/validate", ticketHandler.Validate).BindFunc(staffGuard.Require)

		if cfg.EnableTestIssuance {
			logger.Warn("test issuance endpoint enabled")
			e.Router.POST("/api/test/issue-ticket", ticketHandler.IssueTestTicket).BindFunc(staffGuard.Require)
		}

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		if cfg.PublicDir != "" {
			e.Router.GET("/{path...}", apis.Static(os.DirFS(cfg.PublicDir), true))
		}

		logger.Info("server routes registered",
			"store", cfg.TicketStore,
			"email", cfg.EmailProvider,
			"rate_limit", limiter != nil,
		)
		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		c.notifier.Wait()
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}
		return e.Next()
	})

	defer cancel()
	return app.Start()
}

// build wires repositories and services from configuration.
func build(app core.App, cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) (*components, error) {
	repo, err := store.New(store.Backend(cfg.TicketStore), store.Options{
		FilePath: cfg.TicketStoreFile,
		Redis:    redisClient,
		App:      app,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket store: %w", err)
	}

	sender, err := notify.NewSender(notify.Options{
		Provider:     notify.Provider(cfg.EmailProvider),
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUser:     cfg.SMTPUser,
		SMTPPass:     cfg.SMTPPass,
		SMTPTLS:      cfg.SMTPTLS,
		ResendAPIKey: cfg.ResendAPIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	notifier := notify.NewNotifier(sender, notify.NotifierConfig{
		Event:    cfg.Event(),
		Currency: cfg.Currency,
		IBAN:     cfg.IBAN,
		BIC:      cfg.BIC,
		Timeout:  cfg.EmailTimeout,
	}, logger)

	provider, err := payment.New(payment.Options{
		Env:         cfg.PayPalEnv,
		ClientID:    cfg.PayPalClientID,
		Secret:      cfg.PayPalSecret,
		Timeout:     cfg.PaymentTimeout,
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}

	feed := realtime.New(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubUserID, cfg.PubNubScanChannel, logger)
	codec := credential.NewCodec(cfg.JWTSecret, credential.WithTTL(cfg.TicketTTL))

	issuance := services.NewIssuanceService(repo, codec, notifier, feed, services.IssuanceConfig{
		TicketPrefix: cfg.TicketPrefix,
		StoreTimeout: cfg.StoreTimeout,
	}, logger)
	validation := services.NewValidationService(repo, codec, feed, cfg.StoreTimeout, logger)
	orders := services.NewOrderService(provider, issuance, notifier, services.OrderConfig{
		Prices:          cfg.Prices(),
		Currency:        cfg.Currency,
		ReferencePrefix: cfg.TicketPrefix,
		PaymentTimeout:  cfg.PaymentTimeout,
	}, logger)

	logger.Info("issuer configured",
		"store", cfg.TicketStore,
		"payment", provider.Name(),
		"event", cfg.EventName,
	)

	return &components{
		repo:       repo,
		notifier:   notifier,
		feed:       feed,
		issuance:   issuance,
		validation: validation,
		orders:     orders,
	}, nil
}

// setupTicketHooks audits ticket edits made through the admin dashboard so
// manual redemptions still reach the door feed.
func setupTicketHooks(app core.App, feed realtime.Publisher, logger *slog.Logger) {
	app.OnRecordUpdateRequest(store.TicketsCollection).BindFunc(func(e *core.RecordRequestEvent) error {
		before := e.Record.Original().GetString("status")
		if err := e.Next(); err != nil {
			return err
		}

		after := e.Record.GetString("status")
		ticketID := e.Record.GetString("ticket_id")
		logger.Warn("ticket edited from dashboard",
			"ticket_id", ticketID,
			"status_before", before,
			"status_after", after,
		)
		if before != after && after == string(models.StatusUsed) {
			feed.Publish(realtime.Event{
				Kind:     realtime.EventRedeemed,
				TicketID: ticketID,
				Type:     e.Record.GetString("ticket_type"),
				Reason:   "manual",
				At:       e.Record.GetDateTime("used_at").Time(),
			})
		}
		return nil
	})
}

func staffKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "staff-key [key]",
		Short: "Print the bcrypt hash to put in STAFF_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := security.HashStaffKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
