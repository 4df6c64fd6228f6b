package main

import (
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/catalog"
	"github.com/thekamyabsagar/kamyabvcffile/convert"
	"github.com/thekamyabsagar/kamyabvcffile/db"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	"github.com/thekamyabsagar/kamyabvcffile/external"
	"github.com/thekamyabsagar/kamyabvcffile/identity"
	"github.com/thekamyabsagar/kamyabvcffile/payment"
	"github.com/thekamyabsagar/kamyabvcffile/ratelimit"
	"github.com/thekamyabsagar/kamyabvcffile/usage"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	dbConn, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	authManager, err := auth.New(auth.Options{
		Redis:  rdb,
		Logger: logger,

		JWTSigningKey: os.Getenv("JWT_SECRET"),

		Environment: authEnvironment,
	})
	if err != nil {
		logger.Fatal("Cannot initialize AuthManager",
			zap.Error(err),
		)
	}

	entitlementManager, err := entitlement.NewManager(entitlement.ManagerOptions{
		DB:     dbConn,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize EntitlementManager",
			zap.Error(err),
		)
	}

	catalogManager, err := catalog.NewManager(catalog.ManagerOptions{
		Logger:         logger,
		PathToPlanJSON: "plans.json",
	})
	if err != nil {
		logger.Fatal("Cannot initialize CatalogManager",
			zap.Error(err),
		)
	}

	identityManager, err := identity.NewManager(logger, dbConn)
	if err != nil {
		logger.Fatal("Cannot initialize IdentityManager",
			zap.Error(err),
		)
	}

	razorpayClient := external.NewRazorpayClient(os.Getenv("RAZORPAY_KEY_ID"), os.Getenv("RAZORPAY_KEY_SECRET"))

	paymentManager, err := payment.NewManager(payment.ManagerOptions{
		RazorpayClient:     razorpayClient,
		EntitlementManager: entitlementManager,
		DB:                 dbConn,
		Logger:             logger,
		KeyID:              os.Getenv("RAZORPAY_KEY_ID"),
		KeySecret:          os.Getenv("RAZORPAY_KEY_SECRET"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize PaymentManager",
			zap.Error(err),
		)
	}

	webhook, err := convert.NewWebhook(convert.WebhookOptions{
		SingleSidedURL: os.Getenv("WEBHOOK_URL_SINGLE"),
		DoubleSidedURL: os.Getenv("WEBHOOK_URL_DOUBLE"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize conversion Webhook",
			zap.Error(err),
		)
	}

	identityRouter, err := identity.NewService(identity.ServiceOptions{
		Auth:               authManager,
		IdentityManager:    identityManager,
		EntitlementManager: entitlementManager,
		PaymentManager:     paymentManager,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Identity Service Router",
			zap.Error(err),
		)
	}

	catalogRouter, err := catalog.NewService(catalog.ServiceOptions{
		CatalogManager:     catalogManager,
		EntitlementManager: entitlementManager,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Catalog Service Router",
			zap.Error(err),
		)
	}

	entitlementRouter, err := entitlement.NewService(entitlement.ServiceOptions{
		EntitlementManager: entitlementManager,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Entitlement Service Router",
			zap.Error(err),
		)
	}

	usageRouter, err := usage.NewService(usage.ServiceOptions{
		EntitlementManager: entitlementManager,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Usage Service Router",
			zap.Error(err),
		)
	}

	paymentRouter, err := payment.NewService(payment.ServiceOptions{
		PaymentManager: paymentManager,
		CatalogManager: catalogManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Payment Service Router",
			zap.Error(err),
		)
	}

	convertRouter, err := convert.NewService(convert.ServiceOptions{
		Webhook:            webhook,
		EntitlementManager: entitlementManager,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Convert Service Router",
			zap.Error(err),
		)
	}

	authLimiter, err := ratelimit.New(logger, "20-M")
	if err != nil {
		logger.Fatal("Cannot initialize rate limiter",
			zap.Error(err),
		)
	}
	paymentLimiter, err := ratelimit.New(logger, "30-M")
	if err != nil {
		logger.Fatal("Cannot initialize rate limiter",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("CORS_ORIGIN")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Group(func(r chi.Router) {
		r.Use(authLimiter)
		r.Mount("/identities", identityRouter.Router())
	})

	rootRouter.Group(func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(authManager.ClaimCheck())

		r.Mount("/packages", catalogRouter.Router())
		r.Mount("/entitlements", entitlementRouter.Router())
		r.Mount("/usage", usageRouter.Router())
		r.Mount("/convert", convertRouter.Router())

		r.Group(func(r chi.Router) {
			r.Use(paymentLimiter)
			r.Mount("/payment", paymentRouter.Router())
		})
	})

	rootRouter.Mount("/admin", identityRouter.AdminRouter())

	rootRouter.HandleFunc("/pprof/*", pprof.Index)
	rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
	rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
	rootRouter.HandleFunc("/pprof/trace", pprof.Trace)

	rootRouter.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok")
	})

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    ":" + port(),
	}

	logger.Info("API server starting",
		zap.String("Addr", srv.Addr),
	)

	log.Fatalln(srv.ListenAndServe())
}

func port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}
