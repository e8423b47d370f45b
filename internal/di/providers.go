package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
	dsvc "SalesPulse/internal/domain/service"
	"SalesPulse/internal/handler/api"
	mid "SalesPulse/internal/middleware"
	internalrepo "SalesPulse/internal/repository"
	"SalesPulse/internal/service/alertstream"
	"SalesPulse/internal/service/ratelimit"
	"SalesPulse/internal/services/analytics"
	"SalesPulse/internal/services/forecast"
	"SalesPulse/internal/usecase"
	"SalesPulse/pkg/cache"
	pkgch "SalesPulse/pkg/clickhouse"
	"SalesPulse/pkg/config"
	xhttp "SalesPulse/pkg/http"
	pkgkafka "SalesPulse/pkg/kafka"
	applogger "SalesPulse/pkg/logger"
	"SalesPulse/pkg/metrics"
	"SalesPulse/pkg/queue"
	"SalesPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const (
	streamBuffer   = 64
	startupTimeout = 10 * time.Second
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("service", "salespulse")), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideDetector creates the anomaly detector from the detector section.
func ProvideDetector(cfg *config.Config) dsvc.AnomalyDetector {
	return analytics.NewAnomalyDetector(models.DetectorThresholds{
		ZThreshold:           cfg.Detector.ZThreshold,
		IQRMultiplier:        cfg.Detector.IQRMultiplier,
		ChangeThreshold:      cfg.Detector.ChangeThresholdPct / 100,
		OpportunityThreshold: cfg.Detector.OpportunityThresholdPct / 100,
		AnomalyRateThreshold: cfg.Detector.AnomalyRateThresholdPct / 100,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and the series schema.
// Returns nil when clickhouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SeriesSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSeriesStore wraps the ClickHouse client. Returns nil without a client.
func ProvideSeriesStore(ch *pkgch.Client, l *applogger.Logger) domrepo.SeriesStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHSeriesStore(ch, l)
}

// ProvideKafkaProducer creates a Kafka producer and, when a collector topic is
// configured, ships aggregated error logs through it.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID("salespulse"),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Logging.CollectorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.FlushInterval,
			CountThreshold: cfg.Logging.FlushCount,
			Topic:          cfg.Logging.CollectorTopic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

// ProvideAlertPublisher publishes alerts to the alerts topic. Returns nil without a producer.
func ProvideAlertPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.AlertPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic)
}

// ProvideRedisCache connects to Redis. Returns nil when redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix("salespulse"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache returns the Redis cache, or a process-local cache without Redis.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache(
		cache.WithMemoryMaxSize(1000),
		cache.WithMemoryCleanup(time.Minute),
	)
}

// ProvideThresholdStore persists thresholds in the cache. Returns nil when
// persistence is disabled.
func ProvideThresholdStore(cfg *config.Config, c cache.Service) domrepo.ThresholdStore {
	if !cfg.Detector.PersistThresholds {
		return nil
	}
	return internalrepo.NewCacheThresholdStore(c)
}

// ProvideThresholdService restores persisted thresholds into the detector.
// A failed restore keeps the configured values.
func ProvideThresholdService(detector dsvc.AnomalyDetector, store domrepo.ThresholdStore, m domrepo.Metrics, l *applogger.Logger) *usecase.ThresholdService {
	svc := usecase.NewThresholdService(detector, store, m, l)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := svc.Restore(ctx); err != nil {
		l.Warn("threshold restore failed, using configured values", applogger.Error(err))
	}
	return svc
}

// ProvideForecaster returns the forecast service client. Returns nil when no URL is set.
func ProvideForecaster(cfg *config.Config) dsvc.Forecaster {
	if cfg.Analytics.ForecastServiceURL == "" {
		return nil
	}
	return forecast.NewHTTPForecaster(cfg)
}

// ProvideHub creates the WebSocket alert hub.
func ProvideHub(l *applogger.Logger) *alertstream.Hub {
	return alertstream.NewHub(l, streamBuffer)
}

// ProvideAlertDispatcher applies the alerts section to findings before fan-out.
func ProvideAlertDispatcher(cfg *config.Config, pub domrepo.AlertPublisher, hub *alertstream.Hub, m domrepo.Metrics, l *applogger.Logger) (*usecase.AlertDispatcher, error) {
	sev, err := models.ParseSeverity(strings.ToLower(cfg.Alerts.MinSeverity))
	if err != nil {
		return nil, fmt.Errorf("alerts.min_severity: %w", err)
	}
	var b usecase.Broadcaster
	if hub != nil {
		b = hub
	}
	return usecase.NewAlertDispatcher(pub, b, m, l, usecase.AlertPolicy{
		MinSeverity:    sev,
		MaxPerAnalysis: cfg.Alerts.MaxPerAnalysis,
	}), nil
}

// ProvideSeriesAnalysis creates the analysis use case with the optional
// collaborators that are available.
func ProvideSeriesAnalysis(
	cfg *config.Config,
	detector dsvc.AnomalyDetector,
	m domrepo.Metrics,
	l *applogger.Logger,
	store domrepo.SeriesStore,
	forecaster dsvc.Forecaster,
	c cache.Service,
	alerts *usecase.AlertDispatcher,
) *usecase.SeriesAnalysisUseCase {
	opts := []usecase.SeriesAnalysisOption{
		usecase.WithReportCache(c, cfg.Analytics.CacheTTL),
		usecase.WithAlerts(alerts),
	}
	if store != nil {
		opts = append(opts, usecase.WithSeriesStore(store))
	}
	if forecaster != nil {
		opts = append(opts, usecase.WithForecaster(forecaster))
	}
	return usecase.NewSeriesAnalysisUseCase(detector, m, l, opts...)
}

// ProvideQueue creates the analysis job queue on the Redis client. Returns nil
// when the queue is disabled.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, uc *usecase.SeriesAnalysisUseCase, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   cfg.Queue.MaxRetries,
		PollInterval: cfg.Queue.PollInterval,
		JobTimeout:   cfg.Queue.JobTimeout,
	}, rc.Client(), queue.WithKeyPrefix("salespulse:queue:"+cfg.Queue.Name))
	q.RegisterJob(usecase.NewAnalysisJob(uc, l))
	return q
}

// ProvideObservationPipeline builds the baseline check behind validation and
// throttling. Returns nil unless both Kafka and the series store are available.
func ProvideObservationPipeline(
	cfg *config.Config,
	detector dsvc.AnomalyDetector,
	store domrepo.SeriesStore,
	alerts *usecase.AlertDispatcher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *mid.ObservationPipeline {
	if !cfg.Kafka.Enabled || store == nil {
		return nil
	}
	checker := usecase.NewBaselineChecker(detector, store, alerts, m, l, cfg.Alerts.BaselineWindow)
	return mid.NewObservationPipeline(checker, m,
		mid.WithMaxRPS(cfg.Alerts.MaxPerSecond),
		mid.WithBufferSize(cfg.Kafka.Consumer.BufferSize*4),
	)
}

// ProvideKafkaConsumer creates the observations consumer. Returns nil without a pipeline.
func ProvideKafkaConsumer(cfg *config.Config, pipeline *mid.ObservationPipeline, m domrepo.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if pipeline == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
				l.Warn("observation handling failed",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.Int64("offset", km.Offset),
					applogger.String("trace_id", pkgkafka.TraceID(ctx)),
					applogger.Error(err),
				)
			},
		},
	))
	consumer.RegisterHandler(usecase.NewObservationHandler(cfg.Kafka.ObservationsTopic, pipeline, m, l))
	return consumer, nil
}

// ProvideHandler creates the anomaly API handler.
func ProvideHandler(
	l *applogger.Logger,
	uc *usecase.SeriesAnalysisUseCase,
	thresholds *usecase.ThresholdService,
	q *queue.RedisQueue,
	hub *alertstream.Hub,
) xhttp.Handler {
	opts := []api.HandlerOption{api.WithStream(hub)}
	if q != nil {
		opts = append(opts, api.WithJobs(q))
	}
	return api.NewAnomalyEchoHandler(l, uc, thresholds, opts...)
}

// ProvideHTTPServer creates the echo server with rate limiting and health checks.
func ProvideHTTPServer(
	cfg *config.Config,
	h xhttp.Handler,
	l *applogger.Logger,
	ch *pkgch.Client,
	rc *cache.RedisCache,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	}
	if cfg.RateLimit.Enabled {
		lim := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		opts = append(opts, xhttp.WithMiddleware(lim.Middleware("/api/anomaly/stream", "/healthz", cfg.Metrics.Path)))
	}
	if ch != nil {
		opts = append(opts, xhttp.WithHealthCheck("clickhouse", ch.Health))
	}
	if rc != nil {
		opts = append(opts, xhttp.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	pipeline *mid.ObservationPipeline,
	q *queue.RedisQueue,
	hub *alertstream.Hub,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	return server.New(cfg, l, srv,
		server.WithConsumer(consumer),
		server.WithPipeline(pipeline),
		server.WithQueue(q),
		server.WithHub(hub),
		server.WithProducer(producer),
		server.WithClickHouse(ch),
		server.WithCache(c),
	)
}
