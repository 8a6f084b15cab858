package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/trialsite/siteaccess/pkg/access"
	"github.com/trialsite/siteaccess/pkg/api"
	"github.com/trialsite/siteaccess/pkg/audit"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/config"
	"github.com/trialsite/siteaccess/pkg/fixture"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
	"github.com/trialsite/siteaccess/pkg/middleware"
	"github.com/trialsite/siteaccess/pkg/observability"
	"github.com/trialsite/siteaccess/pkg/signatures"
	"github.com/trialsite/siteaccess/pkg/storage"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", "", "Load configuration from this env file instead of ./.env")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *envFile != "" {
		cfg, err = config.LoadConfigFile(*envFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("trialsite stopped with an error")
		os.Exit(1)
	}
}

// stores are the backends selected by the storage driver
type stores struct {
	db         *sql.DB
	index      hierarchy.Index
	grants     grants.Store
	signatures signatures.Store
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer func() {
		if err := shutdown.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("shutdown finished with errors")
		}
	}()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	if providers != nil {
		shutdown.Register("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, providers) })
	}

	st, err := openStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		shutdown.Register("database", func(context.Context) error { return st.db.Close() })
	}

	index := st.index
	var cached *hierarchy.CachedIndex
	if cfg.Cache.Size > 0 {
		cached = hierarchy.NewCachedIndex(index, cfg.Cache)
		index = cached
	}

	directory := auth.NewStaticDirectory()
	if cfg.FixturePath != "" {
		f, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			return err
		}
		applied, err := f.Apply(ctx, index, st.grants, directory)
		if err != nil {
			return fmt.Errorf("failed to apply fixture: %w", err)
		}
		logger.WithFields(map[string]interface{}{
			"path":      cfg.FixturePath,
			"folders":   len(applied.Folders),
			"documents": len(applied.Documents),
			"grants":    applied.Grants,
		}).Info("fixture loaded")
	}

	auditLogger, err := newAuditLogger(cfg.Audit, logger)
	if err != nil {
		return err
	}
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	sinks := recorders{metrics}
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return err
		}
		sinks = append(sinks, otelMetrics)
	}

	authz := access.NewAuthorizer(st.grants, index,
		access.WithAuditLogger(auditLogger),
		access.WithRecorder(sinks),
		access.WithLogger(logger),
	)
	sigService := signatures.NewService(st.signatures, authz, directory,
		signatures.WithAuditLogger(auditLogger),
		signatures.WithRecorder(sinks),
		signatures.WithLogger(logger),
		signatures.WithTTL(cfg.Signatures.TTL),
	)

	redisClient, err := newRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	rateLimit := cfg.RateLimit
	limiter := middleware.NewRateLimitMiddleware(redisClient, &rateLimit, logger)
	limiter.SetRecorder(metrics)

	handler := api.NewRouter(api.Deps{
		Catalog:       access.NewCatalog(index, authz),
		Authz:         authz,
		Signatures:    sigService,
		Tokens:        auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		Directory:     directory,
		RateLimit:     limiter,
		Metrics:       metrics,
		Logger:        logger,
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		WebhookSecret: cfg.Signatures.WebhookSecret,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: api.NewHealthRouter(observability.NewHealthChecker(st.db, redisClient, version), registry),
	}

	sweeper, err := signatures.NewSweeper(sigService, cfg.Signatures.SweepSchedule, logger)
	if err != nil {
		return err
	}

	sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, "api", logger) })
	g.Go(func() error { return serve(healthServer, "health", logger) })
	if st.db != nil && cfg.Observability.MetricsEnabled {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.ObserveDBStats(st.db.Stats())
					if cached != nil {
						logger.WithField("cache", cached.Stats()).Debug("hierarchy cache stats")
					}
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			apiServer.Shutdown(stopCtx),
			healthServer.Shutdown(stopCtx),
			sweeper.Stop(stopCtx),
		)
	})

	logger.WithFields(map[string]interface{}{
		"addr":        apiServer.Addr,
		"health_addr": healthServer.Addr,
		"driver":      cfg.Storage.Driver,
		"version":     version,
	}).Info("trialsite access service started")

	return g.Wait()
}

func serve(srv *http.Server, name string, logger *observability.Logger) error {
	logger.WithField("server", name).Infof("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func openStores(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*stores, error) {
	if !cfg.UsesDatabase() {
		logger.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			index:      hierarchy.NewMemoryIndex(),
			grants:     grants.NewMemoryStore(),
			signatures: signatures.NewMemoryStore(),
		}, nil
	}

	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	applied, err := storage.Migrate(ctx, db, cfg.Dialect(),
		hierarchy.Migrations(),
		grants.Migrations(),
		signatures.Migrations(),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Infof("applied migrations %v", applied)
	}

	return &stores{
		db:         db,
		index:      hierarchy.NewSQLIndex(db, cfg.Dialect()),
		grants:     grants.NewSQLStore(db),
		signatures: signatures.NewSQLStore(db),
	}, nil
}

func newAuditLogger(cfg config.AuditConfig, logger *observability.Logger) (audit.Logger, error) {
	slogAudit := audit.NewSlogLogger(logger)
	if cfg.Dir == "" {
		return slogAudit, nil
	}

	fileCfg := audit.DefaultFileLoggerConfig()
	fileCfg.BasePath = filepath.Clean(cfg.Dir)
	if cfg.MaxFileSize > 0 {
		fileCfg.MaxSize = cfg.MaxFileSize
	}
	fileAudit, err := audit.NewFileLogger(fileCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return audit.NewMultiLogger(fileAudit, slogAudit), nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

// recorder is the union of the metric sinks the services report to
type recorder interface {
	access.Recorder
	signatures.Recorder
}

// recorders fans out to Prometheus and, when enabled, OpenTelemetry
type recorders []recorder

func (rs recorders) RecordDecision(ctx context.Context, level, outcome string, elapsed time.Duration) {
	for _, r := range rs {
		r.RecordDecision(ctx, level, outcome, elapsed)
	}
}

func (rs recorders) RecordGrantMutation(ctx context.Context, operation, outcome string) {
	for _, r := range rs {
		r.RecordGrantMutation(ctx, operation, outcome)
	}
}

func (rs recorders) RecordSignatureTransition(ctx context.Context, status string) {
	for _, r := range rs {
		r.RecordSignatureTransition(ctx, status)
	}
}
