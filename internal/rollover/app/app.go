// Package app wires the rollover components from configuration. The server
// and the operator CLI build the same graph, so a CLI reconciliation pass
// takes the same locks and writes the same ledger as the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"trustrails/internal/platform/config"
	"trustrails/internal/platform/kafka"
	"trustrails/internal/platform/postgres"
	platformredis "trustrails/internal/platform/redis"
	"trustrails/internal/rollover/cache"
	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/contract/rpc"
	"trustrails/internal/rollover/contract/simulated"
	"trustrails/internal/rollover/cooldown"
	"trustrails/internal/rollover/eventlog"
	"trustrails/internal/rollover/eventlog/store/memory"
	pgstore "trustrails/internal/rollover/eventlog/store/postgres"
	"trustrails/internal/rollover/feed"
	"trustrails/internal/rollover/lock"
	"trustrails/internal/rollover/metrics"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	"trustrails/internal/rollover/reconciliation/ledger"
	"trustrails/internal/rollover/service"
	id "trustrails/pkg/domain"
	"trustrails/pkg/platform/circuit"
)

// Contract versions accepted in CONTRACT_VERSION.
const (
	ContractSimulated = "simulated"
	ContractV1        = "v1"
)

type transferLister interface {
	Transfers(ctx context.Context) ([]id.TransferID, error)
}

// App is the wired component graph.
type App struct {
	Service    *service.Service
	Reconciler *reconciliation.Service
	Log        *eventlog.Log
	Metrics    *metrics.Metrics

	transfers transferLister
	relay     *feed.Relay
	consumer  *feed.Consumer
	checks    map[string]func(context.Context) error
	closers   []func()
	logger    *slog.Logger
}

type options struct {
	contract  contract.Client
	withFeeds bool
}

type Option func(*options)

// WithContractClient bypasses the adapter registry.
func WithContractClient(c contract.Client) Option {
	return func(o *options) { o.contract = c }
}

// WithoutFeeds skips the change-feed sinks and consumer. The CLI uses it so a
// one-off command does not join the consumer group.
func WithoutFeeds() Option {
	return func(o *options) { o.withFeeds = false }
}

// Registry returns the contract adapter registry with every built-in version.
func Registry() *contract.Registry {
	r := contract.NewRegistry()
	r.Register(ContractSimulated, simulated.Factory)
	r.Register(ContractV1, rpc.Factory)
	return r
}

// Build connects to the configured backends and wires the graph. Empty
// DATABASE_URL and REDIS_URL select in-process implementations.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer, opts ...Option) (*App, error) {
	o := options{withFeeds: true}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		Metrics: metrics.New(reg),
		checks:  make(map[string]func(context.Context) error),
		logger:  logger,
	}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	store, subs, outbox, err := a.storage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	locker, gate, cacheStore, err := a.coordination(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var publisher feed.Publisher
	if o.withFeeds {
		if publisher, err = a.publisher(ctx, cfg); err != nil {
			return nil, err
		}
	}

	var svc *service.Service
	states, err := cache.NewStateCache(cacheStore,
		func(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error) {
			return svc.ComputeState(ctx, transferID)
		},
		cache.WithLogger(logger),
		cache.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, err
	}

	logOpts := []eventlog.Option{
		eventlog.WithLogger(logger),
		eventlog.WithMetrics(a.Metrics),
		eventlog.WithListener(states),
	}
	switch {
	case publisher != nil && outbox != nil:
		a.relay, err = feed.NewRelay(outbox, publisher,
			feed.WithInterval(cfg.Reconciliation.OutboxInterval),
			feed.WithBatchSize(cfg.Reconciliation.OutboxBatchSize),
			feed.WithRelayLogger(logger),
			feed.WithRelayMetrics(a.Metrics),
		)
		if err != nil {
			return nil, err
		}
	case publisher != nil:
		direct, err := feed.NewDirect(publisher, feed.WithDirectLogger(logger), feed.WithDirectMetrics(a.Metrics))
		if err != nil {
			return nil, err
		}
		logOpts = append(logOpts, eventlog.WithListener(direct))
	case outbox != nil && o.withFeeds:
		logger.WarnContext(ctx, "no change-feed sink configured; outbox rows will accumulate")
	}

	if a.Log, err = eventlog.New(store, logOpts...); err != nil {
		return nil, err
	}

	client := o.contract
	if client == nil {
		client, err = Registry().New(cfg.Contract.Version, contract.AdapterConfig{
			GatewayURL: cfg.Contract.GatewayURL,
			Address:    cfg.Contract.Address,
		})
		if err != nil {
			return nil, fmt.Errorf("contract adapter: %w", err)
		}
		if c, ok := client.(interface{ Close() }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	a.Reconciler, err = reconciliation.New(a.Log, client, locker, gate,
		reconciliation.ConfigFrom(cfg.Reconciliation),
		reconciliation.WithLogger(logger),
		reconciliation.WithMetrics(a.Metrics),
		reconciliation.WithLedger(subs),
		reconciliation.WithAlerter(reconciliation.NewLogAlerter(logger, a.Metrics)),
		reconciliation.WithBreaker(circuit.New("contract-oracle")),
	)
	if err != nil {
		return nil, err
	}

	svc, err = service.New(a.Log, a.Reconciler, locker,
		service.WithStateReader(states),
		service.WithLedger(subs),
		service.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.Service = svc

	if o.withFeeds && len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.ConsumerGroup != "" {
		kc, err := kafka.NewConsumer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		a.closers = append(a.closers, kc.Close)
		a.consumer, err = feed.NewConsumer(kc, feed.ListenerHandler{Listener: states, Logger: logger}, logger)
		if err != nil {
			return nil, err
		}
	}
	built = true
	return a, nil
}

func (a *App) storage(ctx context.Context, cfg config.Config) (eventlog.Store, ledger.Store, feed.Outbox, error) {
	if cfg.Database.URL == "" {
		mem := memory.NewInMemoryStore()
		a.transfers = mem
		return mem, ledger.NewInMemoryStore(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := postgres.OpenPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	a.closers = append(a.closers, pool.Close)
	a.checks["postgres"] = db.PingContext

	events := pgstore.New(db)
	a.transfers = events
	return events, ledger.NewPostgresStore(pool), feed.NewPostgresOutbox(db), nil
}

func (a *App) coordination(ctx context.Context, cfg config.Config) (lock.Locker, cooldown.Gate, cache.Store, error) {
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if rc == nil {
		return lock.NewKeyedMutex(), cooldown.NewInMemoryGate(), cache.NewInMemoryStore(cfg.Redis.StateTTL), nil
	}
	a.closers = append(a.closers, func() { _ = rc.Close() })
	a.checks["redis"] = rc.Health
	return lock.NewRedisLease(rc.Client, cfg.Reconciliation.LockTTL, lock.WithLeaseLogger(a.logger)),
		cooldown.NewRedisGate(rc.Client),
		cache.NewRedisStore(rc.Client, cfg.Redis.StateTTL),
		nil
}

func (a *App) publisher(ctx context.Context, cfg config.Config) (feed.Publisher, error) {
	var sinks feed.Fanout
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka, a.logger); err != nil {
			return nil, err
		}
		a.checks["kafka"] = producer.Ping
		k, err := feed.NewKafka(producer, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, k)
	}
	if cfg.AMQP.URL != "" {
		amqp, err := feed.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, a.logger)
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		a.closers = append(a.closers, amqp.Close)
		sinks = append(sinks, amqp)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// Transfers lists every transfer with events.
func (a *App) Transfers(ctx context.Context) ([]id.TransferID, error) {
	return a.transfers.Transfers(ctx)
}

// RunBackground runs the outbox relay and feed consumer until ctx ends.
func (a *App) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(ctx) })
	}
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Health pings every remote backend.
func (a *App) Health(ctx context.Context) map[string]error {
	out := make(map[string]error, len(a.checks))
	for name, check := range a.checks {
		out[name] = check(ctx)
	}
	return out
}

// Close releases backends in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
