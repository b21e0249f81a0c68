package http

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/warehouse-ops/ntconsole/internal/application/reconcile"
	"github.com/warehouse-ops/ntconsole/internal/domain/shared/events"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/cache"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/config"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/entitystore"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/filestore"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/metrics"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/pubsub"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/repository"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/scheduler"
	tickethandlers "github.com/warehouse-ops/ntconsole/internal/interfaces/http/handlers/ticket"
	"github.com/warehouse-ops/ntconsole/internal/shared/goroutine"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

const (
	QueueBackendRedis = "redis"
	QueueBackendFile  = "file"

	dispatcherBufferSize = 256
)

// Container holds every component of a running console and owns their
// start and shutdown order.
type Container struct {
	cfg   *config.Config
	log   logger.Interface
	db    *gorm.DB
	redis *redis.Client

	feedBus    *pubsub.RedisFeedBus
	dispatcher *events.InMemoryEventDispatcher
	recorder   *metrics.Recorder

	store      *entitystore.Store
	backend    ticket.Remote
	tracker    *reconcile.Tracker
	reconciler *reconcile.Reconciler
	sequencer  *reconcile.Sequencer

	schedulerManager *scheduler.SchedulerManager
	overdue          *scheduler.OverdueScheduler

	ticketHandler *tickethandlers.TicketHandler
	router        *Router

	// Background work started by Start.
	runCtx        context.Context
	cancel        context.CancelFunc
	bg            sync.WaitGroup
	subscriptions []*pubsub.Subscription
	shutdownOnce  sync.Once
}

// NewContainer wires the console over an open backend database and Redis
// client. Nothing runs until Start.
func NewContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log logger.Interface) (*Container, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Container{
		cfg:    cfg,
		log:    log,
		db:     db,
		redis:  redisClient,
		runCtx: runCtx,
		cancel: cancel,
	}

	queue, err := c.newQueueStore()
	if err != nil {
		cancel()
		return nil, err
	}

	c.recorder = metrics.NewRecorder()
	c.feedBus = pubsub.NewRedisFeedBus(redisClient, log)
	c.dispatcher = events.NewInMemoryEventDispatcher(dispatcherBufferSize, log)
	if err := registerNotificationLoggers(c.dispatcher, log); err != nil {
		cancel()
		return nil, err
	}

	c.store = entitystore.New()
	c.backend = metrics.NewInstrumentedRemote(repository.NewWarehouseBackend(db, c.feedBus, log))

	c.tracker = reconcile.NewTracker(c.store, c.backend, cfg.Reconcile.SuppressionTTL(), log)
	c.tracker.SetMetrics(c.recorder)

	c.reconciler = reconcile.NewReconciler(c.store, c.tracker, c.backend, c.dispatcher, cfg.Reconcile.FetchPageSize, log)
	c.reconciler.SetMetrics(c.recorder)

	c.sequencer = reconcile.NewSequencer(c.tracker, queue, cfg.Reconcile.BulkInsertDelay(), log)
	c.sequencer.SetMetrics(c.recorder)

	c.schedulerManager, err = scheduler.NewSchedulerManager(log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	c.overdue = scheduler.NewOverdueScheduler(
		c.store,
		cache.NewAlertDeduplicator(redisClient),
		c.dispatcher,
		cfg.Reconcile.OverdueAlertCooldown(),
		log,
	)
	c.overdue.SetGauge(c.recorder)
	if err := c.schedulerManager.RegisterOverdueJob(c.overdue, cfg.Reconcile.OverdueCheckInterval()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register overdue job: %w", err)
	}

	c.ticketHandler = tickethandlers.NewTicketHandler(runCtx, c.tracker, c.sequencer, c.store, log)
	c.router = NewRouter(c.ticketHandler, log)
	c.router.SetupRoutes(cfg.Server.AllowedOrigins)

	return c, nil
}

func (c *Container) newQueueStore() (reconcile.QueueStore, error) {
	switch c.cfg.Queue.Backend {
	case QueueBackendRedis, "":
		return cache.NewRedisBulkQueueStore(c.redis), nil
	case QueueBackendFile:
		return filestore.NewFileBulkQueueStore(c.cfg.Queue.FilePath), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", c.cfg.Queue.Backend)
	}
}

// Start subscribes to the change feed, loads the snapshot, resumes an
// interrupted bulk insert and starts the overdue monitor. Subscribing
// before hydrating means no change committed in between is missed; an
// event that the snapshot already reflects is applied idempotently.
func (c *Container) Start(ctx context.Context) error {
	if err := c.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}

	for _, table := range ticket.Tables {
		sub, err := c.feedBus.Subscribe(c.runCtx, table, c.reconciler.HandleFeedEvent)
		if err != nil {
			return err
		}
		c.subscriptions = append(c.subscriptions, sub)
	}

	if err := c.reconciler.Hydrate(ctx); err != nil {
		return err
	}

	goroutine.SafeGoWG(&c.bg, c.log, "bulk-insert-resume", func() {
		if _, err := c.sequencer.Resume(c.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Errorw("failed to resume bulk insert", "error", err)
		}
	})

	c.schedulerManager.Start()
	return nil
}

// Engine returns the HTTP handler of the console API.
func (c *Container) Engine() *gin.Engine {
	return c.router.GetEngine()
}

// Store exposes the entity store, mainly for diagnostics.
func (c *Container) Store() *entitystore.Store {
	return c.store
}

// Shutdown stops background work in reverse start order. A bulk insert in
// progress stops before its next item; its remaining items stay queued.
func (c *Container) Shutdown() {
	c.shutdownOnce.Do(func() {
		if err := c.schedulerManager.Stop(); err != nil {
			c.log.Warnw("failed to stop scheduler", "error", err)
		}

		c.cancel()
		c.ticketHandler.Wait()
		c.bg.Wait()

		for _, sub := range c.subscriptions {
			if err := sub.Close(); err != nil {
				c.log.Warnw("failed to close feed subscription", "table", sub.Table(), "error", err)
			}
		}

		if err := c.dispatcher.Stop(); err != nil {
			c.log.Warnw("failed to stop event dispatcher", "error", err)
		}
		c.log.Infow("console stopped")
	})
}
