// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup and health checks.
//
// # Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("document_id", id).Info("document deleted")
//
// Request handlers should use FromContext, which adds the request ID and
// the active trace and span IDs.
//
// # Metrics
//
// Metrics registers trialsite_* collectors on a caller-supplied registry.
// Both Metrics and OTelMetrics implement the decision recorder used by
// the access package, so permission decisions can be exported either way.
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Tracing
//
// InitOTel installs OTLP/gRPC exporters when enabled. Until then Tracer
// returns a no-op tracer, so instrumented code needs no conditionals.
package observability
