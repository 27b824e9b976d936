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

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	authhandler "github.com/vendapro/vendapro-saas/domains/auth/be/handler"
	authrepo "github.com/vendapro/vendapro-saas/domains/auth/be/repo"
	authservice "github.com/vendapro/vendapro-saas/domains/auth/be/service"
	tenantshandler "github.com/vendapro/vendapro-saas/domains/tenants/be/handler"
	tenantsservice "github.com/vendapro/vendapro-saas/domains/tenants/be/service"
	platformauth "github.com/vendapro/vendapro-saas/platform/go/auth"
	platformlogging "github.com/vendapro/vendapro-saas/platform/go/logging"
	platformmiddleware "github.com/vendapro/vendapro-saas/platform/go/middleware"
	"github.com/vendapro/vendapro-saas/platform/go/obs"
	"github.com/vendapro/vendapro-saas/platform/go/persistence"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/poolcache"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/registry"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	MasterDatabaseURL string `env:"MASTER_DATABASE_URL,required"`

	ResolveTimeout  time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"10s"`
	PoolMaxConns    int32         `env:"POOL_MAX_CONNS" envDefault:"4"`
	PoolIdleTimeout time.Duration `env:"POOL_IDLE_TIMEOUT" envDefault:"15m"`
	PoolDrainGrace  time.Duration `env:"POOL_DRAIN_GRACE" envDefault:"5s"`

	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"8h"`
	AdminToken    string        `env:"ADMIN_TOKEN,required"`

	LoginRateRPS   float64 `env:"LOGIN_RATE_RPS" envDefault:"5"`
	LoginRateBurst int     `env:"LOGIN_RATE_BURST" envDefault:"10"`

	WarmPoolsOnStart bool `env:"WARM_POOLS_ON_START" envDefault:"false"`
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	obs.Init()

	masterPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.MasterDatabaseURL})
	if err != nil {
		logger.Fatal("connect master database", zap.Error(err))
	}
	defer persistence.ClosePool(masterPool)

	reg, err := registry.NewPostgres(masterPool)
	if err != nil {
		logger.Fatal("init tenant registry", zap.Error(err))
	}

	pools := poolcache.New(persistence.NewTenantOpener(cfg.PoolMaxConns), poolcache.Config{
		IdleTimeout:     cfg.PoolIdleTimeout,
		DrainGrace:      cfg.PoolDrainGrace,
		MaxConnsPerPool: cfg.PoolMaxConns,
	}, logger)

	res := resolver.New(reg, pools, authrepo.NewUserAuthenticator(), logger)

	sessions, err := platformauth.NewManager(cfg.SessionSecret, "vendapro-api", cfg.SessionTTL)
	if err != nil {
		logger.Fatal("init session manager", zap.Error(err))
	}

	authSvc := authservice.New(res, sessions, cfg.ResolveTimeout, logger)
	authHTTPHandler := authhandler.New(authSvc, logger)

	tenantSvc := tenantsservice.New(reg, pools, logger)
	tenantHTTPHandler := tenantshandler.New(tenantSvc, logger)

	if cfg.WarmPoolsOnStart {
		go func() {
			warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			result, err := tenantSvc.WarmPools(warmCtx)
			if err != nil {
				logger.Warn("pool warm-up aborted", zap.Error(err))
				return
			}
			logger.Info("pool warm-up finished",
				zap.Int("warmed", result.Warmed),
				zap.Int("failed", len(result.Failed)))
		}()
	}

	purgeDone := make(chan struct{})
	go purgeSessionsLoop(sessions, logger, purgeDone)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", obs.Handler())

	loginLimit := platformmiddleware.RateLimit(cfg.LoginRateRPS, cfg.LoginRateBurst)

	rootRouter.Route("/v1/auth", func(r chi.Router) {
		r.With(loginLimit, instrument("/v1/auth/login")).Post("/login", authHTTPHandler.Login)
		r.With(instrument("/v1/auth/logout")).Post("/logout", authHTTPHandler.Logout)
		r.Group(func(r chi.Router) {
			r.Use(requireSession(sessions))
			r.With(instrument("/v1/auth/me")).Get("/me", authHTTPHandler.Me)
		})
	})

	rootRouter.Route("/v1/admin", func(r chi.Router) {
		r.Use(requireAdminToken(cfg.AdminToken))
		r.With(instrument("/v1/admin/tenants")).Get("/tenants", tenantHTTPHandler.List)
		r.With(instrument("/v1/admin/tenants/invalidate")).
			Post("/tenants/{tenantID}/invalidate", tenantHTTPHandler.Invalidate)
		r.With(instrument("/v1/admin/pools/warm")).Post("/pools/warm", tenantHTTPHandler.WarmPools)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	close(purgeDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	pools.Close(shutdownCtx)
}

// instrument adapts obs.Instrument to chi's middleware shape so each route is
// recorded under its pattern instead of the raw request path.
func instrument(path string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return obs.Instrument(path, next)
	}
}

func purgeSessionsLoop(sessions *platformauth.Manager, logger *zap.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if purged := sessions.PurgeExpired(now); purged > 0 {
				logger.Debug("purged expired sessions", zap.Int("count", purged))
			}
		}
	}
}
