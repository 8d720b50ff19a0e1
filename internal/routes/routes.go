package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/auth"
	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/funding"
	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/limits"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/moneyrequest"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/otp"
	"github.com/congo-pay/walletcore/internal/transfer"
	"github.com/congo-pay/walletcore/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Events receives notifications next to the log sink, e.g. a Kafka emitter.
	Events notification.Emitter
	// Deliverer sends OTP codes. Defaults to the debug log.
	Deliverer otp.Deliverer
	Acquirer  funding.Acquirer
}

// Services exposes the parts of the core the server drives outside requests.
type Services struct {
	Requests *moneyrequest.Service
}

type stores struct {
	accounts account.Store
	users    identity.Repository
	tx       transfer.Store
	requests moneyrequest.Store
	otp      otp.Store
}

func newStores(d Deps) stores {
	var s stores
	if d.DB != nil {
		s.accounts = account.NewPostgresStore(d.DB)
		s.users = identity.NewPostgresRepository(d.DB)
		s.tx = transfer.NewPostgresStore(d.DB)
		s.requests = moneyrequest.NewPostgresStore(d.DB)
	} else {
		s.accounts = account.NewMemoryStore()
		s.users = identity.NewMemoryRepository()
		s.tx = transfer.NewMemoryStore()
		s.requests = moneyrequest.NewMemoryStore()
	}
	if d.Cache != nil {
		s.otp = otp.NewRedisStore(d.Cache, nil)
	} else {
		s.otp = otp.NewMemoryStore()
	}
	return s
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	cfg := d.Cfg
	logger := d.Logger

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Metrics())
	app.Use(middleware.Audit(logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	st := newStores(d)

	var notifier notification.Emitter = notification.NewLoggerNotifier(logger)
	if d.Events != nil {
		notifier = notification.Fanout{notifier, d.Events}
	}
	deliverer := d.Deliverer
	if deliverer == nil {
		deliverer = otp.NewLogDeliverer(logger)
	}
	acquirer := d.Acquirer
	if acquirer == nil {
		acquirer = funding.StaticAcquirer{}
	}

	ledgerSvc := ledger.NewService(st.accounts, nil)
	tracker := limits.NewTracker(st.accounts, limits.Policy{Bounds: cfg.Bounds(), Location: cfg.LimitLocation}, nil)
	gate := otp.NewGate(st.otp, deliverer, otp.Config{
		Secret:      []byte(cfg.OTPSecret),
		TTL:         cfg.OTPTTL,
		Length:      cfg.OTPLength,
		MaxAttempts: cfg.OTPMaxAttempts,
	}, logger, nil)

	defaults := identity.Limits{Daily: cfg.DefaultDailyLimit, Monthly: cfg.DefaultMonthlyLimit}
	identitySvc := identity.NewService(st.users, ledgerSvc, defaults, logger)
	authSvc := auth.NewService(auth.Config{
		AccessSecret:  []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.AppName,
	}, st.users)

	engine := transfer.NewEngine(transfer.Config{
		Bounds:          cfg.Bounds(),
		SecureThreshold: cfg.SecureThreshold,
		Retry:           transfer.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
	}, transfer.Deps{
		Store:       st.tx,
		Ledger:      ledgerSvc,
		Limits:      tracker,
		OTP:         gate,
		Directory:   identitySvc,
		Credentials: identitySvc,
		Notifier:    notifier,
		Logger:      logger,
	})
	requestSvc := moneyrequest.NewService(moneyrequest.Config{
		Bounds:     cfg.Bounds(),
		DefaultTTL: cfg.RequestDefaultTTL,
		MaxTTL:     cfg.RequestMaxTTL,
	}, st.requests, engine, identitySvc, notifier, logger, nil)
	fundingSvc := funding.NewService(ledgerSvc, acquirer, cfg.Bounds(), logger)
	walletSvc := wallet.NewService(identitySvc, ledgerSvc, tracker, defaults)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	authHandler := auth.NewHandler(identitySvc, authSvc)
	api.Post("/identity/register", identity.NewHandler(identitySvc).Register)
	api.Post("/auth/login", middleware.LoginRateLimit(d.Cache, cfg.LoginRateLimit, logger), authHandler.Login)
	api.Post("/auth/refresh", authHandler.Refresh)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{TTL: cfg.IdempotencyTTL}, logger))
	}
	protected.Post("/auth/logout", authHandler.Logout)
	RegisterAccountRoutes(protected, wallet.NewHandler(walletSvc), funding.NewHandler(fundingSvc))
	RegisterTransferRoutes(protected, transfer.NewHandler(engine))
	RegisterRequestRoutes(protected, moneyrequest.NewHandler(requestSvc))

	return &Services{Requests: requestSvc}, nil
}
