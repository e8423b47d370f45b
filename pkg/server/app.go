package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "SalesPulse/internal/middleware"
	"SalesPulse/internal/service/alertstream"
	"SalesPulse/pkg/cache"
	pkgch "SalesPulse/pkg/clickhouse"
	"SalesPulse/pkg/config"
	xhttp "SalesPulse/pkg/http"
	pkgkafka "SalesPulse/pkg/kafka"
	applogger "SalesPulse/pkg/logger"
	"SalesPulse/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	pipeline   *mid.ObservationPipeline
	queue      *queue.RedisQueue
	hub        *alertstream.Hub
	producer   *pkgkafka.Producer
	chClient   *pkgch.Client
	cache      cache.Service
}

// Option attaches an optional component. Nil components are skipped at run time.
type Option func(*App)

func WithConsumer(c *pkgkafka.Consumer) Option { return func(a *App) { a.consumer = c } }

func WithPipeline(p *mid.ObservationPipeline) Option { return func(a *App) { a.pipeline = p } }

func WithQueue(q *queue.RedisQueue) Option { return func(a *App) { a.queue = q } }

func WithHub(h *alertstream.Hub) Option { return func(a *App) { a.hub = h } }

func WithProducer(p *pkgkafka.Producer) Option { return func(a *App) { a.producer = p } }

func WithClickHouse(c *pkgch.Client) Option { return func(a *App) { a.chClient = c } }

func WithCache(c cache.Service) Option { return func(a *App) { a.cache = c } }

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		cfg:        cfg,
		log:        l,
		httpServer: srv,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
		backlog, err := a.queue.Stats(ctx)
		if err != nil {
			a.log.Warn("queue stats unavailable", applogger.Error(err))
		}
		a.log.Info("analysis queue started",
			applogger.String("queue", a.cfg.Queue.Name),
			applogger.Any("backlog", backlog),
		)
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("observation consumer started",
			applogger.String("topic", a.cfg.Kafka.ObservationsTopic),
			applogger.Strings("brokers", a.cfg.Kafka.Brokers),
		)
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

// shutdown stops intake first, then drains workers, then closes clients.
func (a *App) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.log.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
		if n := a.pipeline.Buffered(); n > 0 {
			a.log.Warn("observations left in pipeline buffer", applogger.Int("count", n))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}

	// Flush collected logs while the producer is still open.
	a.log.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
