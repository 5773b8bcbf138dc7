package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fatchip/computop-checkout/internal/adapters/computop"
	"github.com/fatchip/computop-checkout/internal/adapters/postgres"
	redisadapter "github.com/fatchip/computop-checkout/internal/adapters/redis"
	"github.com/fatchip/computop-checkout/internal/adapters/secrets"
	"github.com/fatchip/computop-checkout/internal/adapters/zaplog"
	"github.com/fatchip/computop-checkout/internal/config"
	checkoutHandler "github.com/fatchip/computop-checkout/internal/handlers/checkout"
	riskHandler "github.com/fatchip/computop-checkout/internal/handlers/risk"
	"github.com/fatchip/computop-checkout/internal/middleware"
	checkoutService "github.com/fatchip/computop-checkout/internal/services/checkout"
	riskService "github.com/fatchip/computop-checkout/internal/services/risk"
	pkgerrors "github.com/fatchip/computop-checkout/pkg/errors"
	httpclient "github.com/fatchip/computop-checkout/pkg/http"
	pkgmiddleware "github.com/fatchip/computop-checkout/pkg/middleware"
	"github.com/fatchip/computop-checkout/pkg/observability"
	"github.com/fatchip/computop-checkout/pkg/shutdown"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("configuration error: %v", err))
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("starting computop checkout service",
		zap.String("creditcard_mode", cfg.Checkout.CreditCardMode),
		zap.String("gateway", cfg.Gateway.BaseURL),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// merchant credentials
	secretManager := initSecretManager(ctx, cfg, logger)
	creds, err := secrets.LoadCredentials(ctx, secretManager, cfg.Secrets.CredentialsPath)
	if err != nil {
		logger.Fatal("merchant credentials unavailable",
			zap.String("path", cfg.Secrets.CredentialsPath),
			zap.Error(err),
		)
	}

	// paygate clients share one pooled transport, all calls hit a single host
	httpClient := httpclient.NewHTTPClient(httpclient.PaygateClientConfig(),
		time.Duration(cfg.Gateway.Timeout)*time.Second)
	gatewayCfg := computop.Config{BaseURL: cfg.Gateway.BaseURL}

	gateway, err := computop.NewGatewayAdapter(gatewayCfg, creds, httpClient, logger)
	if err != nil {
		logger.Fatal("paygate adapter init failed", zap.Error(err))
	}
	scorer, err := computop.NewCRIFAdapter(gatewayCfg, creds, httpClient, logger)
	if err != nil {
		logger.Fatal("risk scorer init failed", zap.Error(err))
	}

	// storage
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DatabaseURL: cfg.Database.ConnectionString(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	orders := postgres.NewOrderRepository(pool)
	addresses := postgres.NewAddressRepository(pool)
	apiLog := postgres.NewAPILogRepository(pool)

	sessions, err := redisadapter.NewSessionStore(ctx, redisadapter.Config{
		Addr:       cfg.Redis.Addr,
		Username:   cfg.Redis.Username,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		SessionTTL: cfg.Redis.SessionTTL,
	})
	if err != nil {
		logger.Fatal("session store init failed", zap.Error(err))
	}

	// services
	portLogger := zaplog.New(logger)
	mode := checkoutService.Mode(cfg.Checkout.CreditCardMode)

	flow := checkoutService.NewService(
		gateway, orders, sessions, apiLog,
		checkoutService.DefaultMethods(mode),
		func(code, description string) *pkgerrors.GatewayError {
			return computop.GetResponseCode(code).ToGatewayError(description)
		},
		checkoutService.Config{
			CreditCardMode:    mode,
			CreditCardCaption: cfg.Checkout.CreditCardCaption,
			AutoCapture:       cfg.Checkout.AutoCapture,
		},
		portLogger,
	)

	risk := riskService.NewService(scorer, addresses, sessions, apiLog,
		riskService.Config{
			InvalidateAfterDays: cfg.Risk.InvalidateAfterDays,
			AutoCorrectAddress:  cfg.Risk.AutoCorrectAddress,
		},
		portLogger,
	)

	// HTTP surface
	rateLimiter := pkgmiddleware.NewRateLimiter(20, 40)
	securityHeaders := middleware.NewSecurityHeaders(cfg.Logger.Development, shopOrigin(cfg.Checkout.FinishURL))

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))
	router.Use(securityHeaders.Middleware)
	router.Use(rateLimiter.Middleware)

	router.Mount("/checkout", checkoutHandler.NewHandler(flow, checkoutHandler.URLs{
		FinishURL:     cfg.Checkout.FinishURL,
		FailureURL:    cfg.Checkout.FailureURL,
		ConfirmURL:    cfg.Checkout.ConfirmURL,
		PublicBaseURL: cfg.Server.PublicBaseURL,
	}, logger).Routes())
	router.Mount("/risk", riskHandler.NewHandler(risk, logger).Routes())

	healthChecker := observability.NewHealthChecker(pool, sessions.Client())
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// teardown in reverse registration order: servers first, storage last
	manager := shutdown.NewManager(logger, 30*time.Second)
	manager.RegisterNoErr("database_pool", pool.Close)
	manager.RegisterCloser("session_store", sessions)
	manager.RegisterNoErr("rate_limiter", rateLimiter.Shutdown)
	manager.Register("metrics_server", metricsServer.Shutdown)
	manager.Register("http_server", httpServer.Shutdown)
	manager.WaitForShutdown()
}

// shopOrigin extracts scheme://host from a shop page URL so the CSP can
// allow exactly that origin to frame checkout pages.
func shopOrigin(shopURL string) string {
	u, err := url.Parse(shopURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
