package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/portfolio/internal/config"
	"github.com/totegamma/portfolio/internal/infra/cache"
	"github.com/totegamma/portfolio/internal/infra/database"
	"github.com/totegamma/portfolio/internal/infra/repository"
	"github.com/totegamma/portfolio/internal/logger"
	"github.com/totegamma/portfolio/internal/metrics"
	"github.com/totegamma/portfolio/internal/present/rest"
	authmw "github.com/totegamma/portfolio/internal/present/rest/middleware"
	"github.com/totegamma/portfolio/internal/service"
	"github.com/totegamma/portfolio/internal/tracing"
	"github.com/totegamma/portfolio/internal/usecase"
)

const serviceName = "portfolio"

func main() {
	configPath := flag.String("config", os.Getenv("PORTFOLIO_CONFIG"), "path to the yaml config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{Level: conf.Log.Level, Pretty: conf.Log.Pretty})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		shutdown, err := tracing.Setup(ctx, conf.Server.TraceEndpoint, serviceName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up tracing")
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Warn().Err(err).Msg("failed to flush spans")
			}
		}()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	repoOpts := []repository.Option{repository.WithLogger(log)}
	if conf.Server.ReplicaDsn != "" {
		replica, err := database.NewPostgres(conf.Server.ReplicaDsn, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect replica")
		}
		repoOpts = append(repoOpts, repository.WithReader(replica))
	}
	repo := repository.NewCaseStudyRepository(db, repoOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ucOpts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithMetrics(metrics.New(reg)),
		usecase.WithWriteOptions(usecase.WriteOptions{
			StorageAttempts: conf.Write.StorageAttempts,
			ConfirmAttempts: conf.Write.ConfirmAttempts,
			ConfirmTimeout:  conf.Write.ConfirmTimeout,
			BackoffInitial:  conf.Write.BackoffInitial,
		}),
	}

	if conf.Server.MemcachedAddr != "" {
		mc := database.NewMemcached(conf.Server.MemcachedAddr)
		ucOpts = append(ucOpts, usecase.WithCache(cache.NewMemcache(mc, conf.Cache.TTL)))
	} else {
		ucOpts = append(ucOpts, usecase.WithCache(cache.NewLocal(conf.Cache.TTL)))
	}

	var signalService *service.SignalService
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
		defer rdb.Close()
		signalService = service.NewSignalService(rdb, log)
		ucOpts = append(ucOpts, usecase.WithNotifier(signalService))
	}

	uc := usecase.NewCaseStudyUsecase(repo, ucOpts...)

	authService := service.NewAuthService(conf.Auth)
	authMiddleware := authmw.NewAuthMiddleware(authService)
	handler := rest.NewHandler(uc, signalService, reg, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
	}
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(authMiddleware.IdentifyIdentity)
	handler.RegisterRoutes(e)

	go func() {
		log.Info().Str("listen", conf.Server.Listen).Msg("starting server")
		if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
				event = event.Str("trace_id", sc.TraceID().String())
			}
			event.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
