// Package observability provides logrus-backed structured logging,
// Prometheus HTTP metrics, OpenTelemetry tracing and health checks.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, observability.JSONFormat, os.Stdout)
//	logger.WithField("account_id", id).Info("account initialized")
//
// Components that take a logrus.FieldLogger get logger.FieldLogger().
// Request-scoped loggers travel in the context:
//
//	observability.FromContext(r.Context()).WithError(err).Error("request failed")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("postgres", true, db.PingContext)
//
// # OpenTelemetry
//
//	tel, err := observability.InitOTel(ctx, cfg, logger)
//	defer tel.Shutdown(ctx)
package observability
