// Package server assembles the auth stack into a fiber application.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/django/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/activitymap"
	"github.com/goliatone/go-auth-bridge/config"
	"github.com/goliatone/go-auth-bridge/persistence"
)

// Deps are the collaborators the server is built from. Redis and Registry
// are optional.
type Deps struct {
	Config   *config.Config
	DB       *bun.DB
	Redis    redis.UniversalClient
	Logger   auth.Logger
	Registry *prometheus.Registry
	Clock    func() time.Time
	// Sinks receive activity events next to the metrics sink
	Sinks []auth.ActivitySink
}

// Server is the assembled application.
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	db        *bun.DB
	auther    *auth.Auther
	users     *auth.UserRepository
	http      *auth.HTTPAuthenticator
	metrics   *auth.MetricsSink
	registry  *prometheus.Registry
	blacklist auth.Blacklist
	logger    auth.Logger
}

// New wires repositories, services, middleware and routes.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("server: database is required")
	}

	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = auth.NewZapLogger(nil)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	metrics, err := auth.NewMetricsSink(registry)
	if err != nil {
		return nil, err
	}
	sinks := []auth.ActivitySink{metrics}
	if cfg.Log.Audit {
		sinks = append(sinks, activitymap.NewLogSink(logger, activitymap.WithClock(clock)))
	}
	sink := auth.MultiActivitySink(append(sinks, deps.Sinks...))

	var (
		redisBlacklist auth.Blacklist
		storage        fiber.Storage
	)
	if deps.Redis != nil {
		redisBlacklist = auth.NewRedisBlacklist(deps.Redis,
			auth.WithRedisBlacklistPrefix(cfg.Redis.Prefix),
			auth.WithRedisBlacklistClock(clock),
		)
		storage = persistence.NewRedisStorage(deps.Redis)
	}

	repos := auth.NewRepositoryManager(deps.DB,
		auth.WithRepositoryBlacklist(redisBlacklist),
		auth.WithRepositoryUsersOptions(
			auth.WithUsersClock(clock),
			auth.WithUsersStateMachineOptions(
				auth.WithStateMachineClock(clock),
				auth.WithStateMachineActivitySink(sink),
				auth.WithStateMachineLogger(logger),
			),
		),
	)
	if err := repos.Validate(); err != nil {
		return nil, err
	}
	users, blacklist := repos.Users(), repos.Blacklist()

	tokens := auth.NewTokenService(cfg, users, blacklist,
		auth.WithTokenClock(clock),
		auth.WithTokenLogger(logger),
	)

	auther := auth.NewAuthenticator(users, tokens, auth.NewBcryptHasher(cfg.GetBcryptCost()), cfg).
		WithLogger(logger).
		WithActivitySink(sink).
		WithClock(clock)

	sessions := auth.NewSessions(auth.NewSessionStore(cfg, storage))

	httpAuth := auth.NewHTTPAuthenticator(auther, sessions, cfg,
		auth.WithHTTPLogger(logger),
		auth.WithRoutes(auth.Routes{APIPrefix: cfg.HTTP.APIPrefix}),
	)

	engine := django.NewFileSystem(http.FS(auth.GetViewsFS()), ".html")

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		Immutable:             true,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		ErrorHandler:          auth.ErrorHandler(logger),
		Views:                 engine,
	})

	s := &Server{
		app:       app,
		cfg:       cfg,
		db:        deps.DB,
		auther:    auther,
		users:     users,
		http:      httpAuth,
		metrics:   metrics,
		registry:  registry,
		blacklist: blacklist,
		logger:    logger,
	}
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.http.Install(s.app)

	s.app.Get("/healthz", s.health).Name("healthz")
	if path := s.cfg.HTTP.MetricsPath; path != "" {
		s.app.Get(path, adaptor.HTTPHandler(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}),
		)).Name("metrics")
	}

	s.http.RegisterRoutes(s.app)
	if s.cfg.HTTP.Pages {
		s.http.RegisterPages(s.app)
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.db.PingContext(c.UserContext()); err != nil {
		s.logger.Error("health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) App() *fiber.App { return s.app }
func (s *Server) Auther() *auth.Auther { return s.auther }
func (s *Server) Users() *auth.UserRepository { return s.users }
func (s *Server) HTTP() *auth.HTTPAuthenticator { return s.http }
func (s *Server) Metrics() *auth.MetricsSink { return s.metrics }
func (s *Server) Registry() *prometheus.Registry { return s.registry }
func (s *Server) Blacklist() auth.Blacklist { return s.blacklist }

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.HTTP.Addr)
		errc <- s.app.Listen(s.cfg.HTTP.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
