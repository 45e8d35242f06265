package cmd

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/controller"
	"github.com/vibast-solutions/ms-go-ledger/app/provider"
	"github.com/vibast-solutions/ms-go-ledger/app/repository"
	"github.com/vibast-solutions/ms-go-ledger/app/service"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
	"github.com/vibast-solutions/ms-go-ledger/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the ledger service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, services, cleanup := mustCreateServices()
	defer cleanup()

	paymentController := controller.NewPaymentController(services.Payments)
	walletController := controller.NewWalletController(services.Wallets, services.Payments)

	e := setupHTTPServer(paymentController, walletController, cfg.App.APIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	walletController *controller.WalletController,
	apiKey string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(requireRequestID())
	e.Use(requireAPIKey(apiKey))

	e.GET("/health", paymentController.Health)

	payments := e.Group("/payments")
	payments.POST("", paymentController.CreatePayment)
	payments.GET("", paymentController.ListTransactions)
	payments.GET("/:id", paymentController.GetTransaction)
	payments.POST("/:id/refund", paymentController.RefundPayment)

	wallets := e.Group("/wallets")
	wallets.GET("/:account_id", walletController.GetWallet)
	wallets.POST("/:account_id/payouts", walletController.Payout)

	webhooks := e.Group("/webhooks/providers")
	webhooks.POST("/:provider/:hash", paymentController.HandleProviderCallback)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

// requireAPIKey guards the internal API. Webhooks and health stay open;
// webhook senders authenticate with signatures instead.
func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			path := ctx.Request().URL.Path
			if path == "/health" || strings.HasPrefix(path, "/webhooks/") {
				return next(ctx)
			}
			if apiKey == "" {
				return next(ctx)
			}

			presented := strings.TrimSpace(ctx.Request().Header.Get("X-API-Key"))
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid api key"})
			}
			return next(ctx)
		}
	}
}

type services struct {
	Payments *service.PaymentService
	Wallets  *service.WalletService
}

func mustCreateServices() (*config.Config, *services, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	transactionRepo := repository.NewTransactionRepository(db)
	eventRepo := repository.NewTransactionEventRepository(db)
	callbackRepo := repository.NewProviderCallbackRepository(db)
	walletRepo := repository.NewWalletRepository(db)

	walletService := service.NewWalletService(walletRepo)

	paymobProvider := provider.NewPaymobProvider(provider.PaymobConfig{
		APIKey:                  cfg.Paymob.APIKey,
		IntegrationID:           cfg.Paymob.IntegrationID,
		IframeID:                cfg.Paymob.IframeID,
		HMACSecret:              cfg.Paymob.HMACSecret,
		APIBaseURL:              cfg.Paymob.APIBaseURL,
		ProviderCallbackBaseURL: cfg.Paymob.ProviderCallbackBaseURL,
		HTTPTimeout:             cfg.Paymob.HTTPTimeout,
	})
	stripeProvider := provider.NewStripeProvider(provider.StripeConfig{
		SecretKey:                 cfg.Stripe.SecretKey,
		WebhookSecret:             cfg.Stripe.WebhookSecret,
		APIBaseURL:                cfg.Stripe.APIBaseURL,
		ProviderCallbackBaseURL:   cfg.Stripe.ProviderCallbackBaseURL,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
	})
	walletProvider := provider.NewWalletProvider(walletService)

	providerRegistry := provider.NewRegistry(paymobProvider, stripeProvider, walletProvider)
	paymentService := service.NewPaymentService(
		transactionRepo,
		eventRepo,
		callbackRepo,
		walletService,
		providerRegistry,
		cfg.Payments,
		cfg.App.APIKey,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, &services{Payments: paymentService, Wallets: walletService}, cleanup
}
