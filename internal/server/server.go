package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"allhall/internal/audit"
	"allhall/internal/blobstore"
	"allhall/internal/broker"
	"allhall/internal/cache"
	"allhall/internal/config"
	"allhall/internal/database"
	"allhall/internal/identity"
	custommiddleware "allhall/internal/middleware"
	"allhall/internal/realtime"
	"allhall/internal/repository"
	"allhall/internal/service"
	"allhall/internal/storecall"
	"allhall/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	roleCacheTTL      = 5 * time.Minute
	identityTimeout   = 5 * time.Second
	connectTimeout    = 10 * time.Second
	livePathPrefix    = "/api/live/"
	rateLimitKeyspace = "allhall:ratelimit:auth"
)

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	db        database.Service
	redis     *redis.Client
	mongo     *mongo.Client
	publisher broker.Publisher
	hub       *realtime.Hub
}

// NewServer connects the optional backends, builds every service and mounts the routes.
// PostgreSQL and Redis are required; MongoDB and Kafka degrade to in-process fallbacks.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db database.Service) (*Server, error) {
	s := &Server{config: cfg, logger: logger, db: db}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := s.redis.Ping(pingCtx).Err(); err != nil {
		s.redis.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.hub = realtime.NewHub(s.redis, logger)

	var (
		auditLog audit.Log
		blobs    blobstore.Store
	)
	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(pingCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		s.mongo = client
		mdb := client.Database(cfg.Mongo.Database)
		auditLog = audit.NewMongoLog(mdb)
		if blobs, err = blobstore.NewGridFS(mdb, cfg.Server.PublicBaseURL); err != nil {
			s.Close()
			return nil, err
		}
	} else {
		logger.Warn("MONGO_URI not set; audit trail and images are kept in memory")
		auditLog = audit.NewMemory()
		blobs = blobstore.NewMemory(cfg.Server.PublicBaseURL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		s.publisher = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	} else {
		logger.Info("KAFKA_BROKERS not set; domain events are not published")
		s.publisher = broker.Nop{}
	}

	verifiers := map[string]identity.Verifier{}
	if cfg.Federated.GoogleClientID != "" {
		verifiers["google"] = identity.NewGoogleVerifier(cfg.Federated.GoogleClientID, &http.Client{Timeout: identityTimeout})
	}

	deps := service.Deps{
		Store: storecall.Policy{
			Timeout:     cfg.Store.Timeout,
			MaxAttempts: cfg.Store.RetryAttempts,
			BaseDelay:   cfg.Store.RetryBaseDelay,
		},
		Publisher: s.publisher,
		Audit:     auditLog,
		Live:      s.hub,
		Logger:    logger,
	}

	sqlDB := db.DB()
	userRepo := repository.NewUserRepository(sqlDB)
	productRepo := repository.NewProductRepository(sqlDB)

	roleService := service.NewRoleService(repository.NewRoleRepository(sqlDB), cache.NewRoleCache(s.redis, roleCacheTTL), deps)
	authService := service.NewAuthService(
		userRepo,
		repository.NewRefreshTokenRepository(sqlDB),
		repository.NewPasswordResetRepository(sqlDB),
		verifiers,
		service.AuthConfig{
			Secret:        cfg.JWT.Secret,
			AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
			RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
		},
		deps,
	)
	authService.OnAuthStateChange(roleBootstrap(roleService))

	catalogService := service.NewCatalogService(productRepo, blobs, roleService, deps)
	cartService := service.NewCartService(repository.NewCartRepository(sqlDB), productRepo, cfg.Shop.ShippingFlatFee, deps)
	orderService := service.NewOrderService(repository.NewOrderRepository(sqlDB), service.OrderPolicy{
		FlatShipping: cfg.Shop.ShippingFlatFee,
		CancelWindow: cfg.Shop.CancelWindow,
	}, deps)

	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.MetricsMiddleware)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	guards := transport.Guards{
		Auth:         custommiddleware.AuthMiddleware(authService, roleService, logger),
		OptionalAuth: custommiddleware.OptionalAuthMiddleware(authService, roleService, logger),
		Logger:       logger,
	}
	authLimiter := custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         rateLimitKeyspace,
	}, logger)

	transport.NewAuthHandler(authService, logger).RegisterRoutes(router, guards, authLimiter)
	transport.NewRoleHandler(roleService, logger).RegisterRoutes(router, guards)
	transport.NewProductHandler(catalogService, logger).RegisterRoutes(router, guards)
	transport.NewCartHandler(cartService, logger).RegisterRoutes(router, guards)
	transport.NewOrderHandler(orderService, logger).RegisterRoutes(router, guards)
	transport.NewAuditHandler(auditLog, logger).RegisterRoutes(router, guards)
	transport.NewLiveHandler(catalogService, cartService, orderService, logger).RegisterRoutes(router, guards)
	transport.NewMediaHandler(blobs, logger).RegisterRoutes(router)

	// Event streams bypass the tracing wrapper, which would hide the write deadline control they need.
	handler := otelhttp.NewHandler(router, "allhall",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, livePathPrefix)
		}),
	)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// roleBootstrap gives every signed-in account a role record and drops cached
// roles on sign-out.
func roleBootstrap(roles service.RoleService) service.AuthListener {
	return func(ctx context.Context, event service.AuthEvent) error {
		switch event.Type {
		case service.AuthSignedIn:
			_, err := roles.EnsureRole(ctx, event.User.ID, event.User.Email)
			return err
		case service.AuthSignedOut:
			roles.Forget(ctx, event.User.ID)
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbHealth := s.db.Health()
	report := map[string]interface{}{"database": dbHealth}
	report["live_subscriptions"] = s.hub.Active()

	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		report["redis"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		report["redis"] = "up"
	}
	if dbHealth["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusOK {
		report["status"] = "ok"
	} else {
		report["status"] = "degraded"
	}
	custommiddleware.RespondWithJSON(w, status, report)
}

// Close releases every backend connection. It is safe on a partly built server.
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.mongo.Disconnect(ctx))
		cancel()
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("Failed to close server resources", zap.Error(err))
	}
	return err
}
