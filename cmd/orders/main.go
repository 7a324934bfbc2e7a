package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/idempotency"
	applogging "gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/order"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/outbox"
	"gitea.xscloud.ru/xscloud/orders/pkg/common/io"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/amqp"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/config"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/httpapi"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/logging"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/memcache"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/migrations"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/mysql"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/orderstore"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/outboxstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSONLogger(&logging.Config{AppName: cfg.AppID})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, logger); err != nil {
		logger.FatalError(err, "service terminated")
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger applogging.MainLogger) (err error) {
	closers := io.NewMultiCloser()
	defer func() {
		err = stderrors.Join(err, closers.Close())
	}()

	client, pool, err := openDatabase(ctx, cfg, logger, closers)
	if err != nil {
		return err
	}

	appCache := memcache.New()

	uow := mysql.NewUnitOfWork[order.Repositories](pool, func(client mysql.ClientContext) order.Repositories {
		return order.Repositories{
			Orders: orderstore.NewRepository(client),
			Outbox: outboxstore.NewRepository(client),
		}
	})

	service := order.NewService(uow, orderstore.NewRepository(client), appCache, logger)

	outboxStore := outboxstore.NewStore(pool)

	connection := amqp.NewAMQPConnection(cfg.AppID, &amqp.ConnectionConfig{
		User:           cfg.Broker.User,
		Password:       cfg.Broker.Password,
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		Vhost:          cfg.Broker.Vhost,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
	}, logger.WithField("component", "amqp"))

	producer := connection.Producer(&amqp.ExchangeConfig{
		Name:    cfg.Broker.Exchange,
		Kind:    "topic",
		Durable: true,
	}, nil, nil)

	relay := outbox.NewRelay(
		outboxStore,
		amqp.NewEventPublisher(producer),
		idempotency.NewLock(appCache, cfg.Relay.LockName, cfg.Relay.LockTTL),
		idempotency.NewGuard(appCache, cfg.Relay.IdempotencyTTL, "relay", logger),
		outbox.RelayConfig{
			BatchSize:       cfg.Relay.BatchSize,
			Interval:        cfg.Relay.Interval,
			ProcessingGrace: cfg.Relay.ProcessingGrace,
		},
		logger,
	)

	dispatcher := order.NewDispatcher(
		appCache,
		idempotency.NewGuard(appCache, cfg.Consumer.IdempotencyTTL, "consumer", logger),
		logger,
	)
	connection.Consumer(
		ctx,
		func(ctx context.Context, delivery amqp.Delivery) error {
			return dispatcher.Dispatch(ctx, delivery.RoutingKey, delivery.Body)
		},
		&amqp.QueueConfig{Name: cfg.Broker.Queue, Durable: true},
		&amqp.BindConfig{
			QueueName:    cfg.Broker.Queue,
			ExchangeName: cfg.Broker.Exchange,
			RoutingKeys: []string{
				strings.ToLower(order.MessageTypeOrderCreated),
				strings.ToLower(order.MessageTypeOrderStatusUpdated),
				strings.ToLower(order.MessageTypeOrderDeleted),
			},
		},
		&amqp.QoSConfig{PrefetchCount: cfg.Consumer.PrefetchCount},
	)

	if err = connection.Start(); err != nil {
		return err
	}
	closers.AddCloser(io.CloserFunc(connection.Stop))
	logger.Info("AMQP connection established")

	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddress,
		Handler: httpapi.NewHandler(service, outboxStore, appCache, logger),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return relay.Run(groupCtx)
	})
	group.Go(func() error {
		logger.WithField("address", cfg.HTTP.ListenAddress).Info("HTTP server started")
		serveErr := server.ListenAndServe()
		if stderrors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func openDatabase(
	ctx context.Context,
	cfg *config.Config,
	logger applogging.Logger,
	closers io.MultiCloser,
) (client mysql.TransactionalClient, pool mysql.ConnectionPool, err error) {
	connector := mysql.NewConnector()
	err = connector.Open(cfg.Database.DSN, mysql.Config{
		MaxConnections:        cfg.Database.MaxOpenConns,
		ConnectionMaxLifeTime: cfg.Database.ConnMaxLifetime,
		ConnectionMaxIdleTime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	closers.AddCloser(io.CloserFunc(connector.Close))

	client = connector.TransactionalClient()
	pool = mysql.NewConnectionPool(client)

	migrator, release, err := migrations.NewOrdersMigrator(ctx, pool, logger)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		err = stderrors.Join(err, release())
	}()
	if err = migrator.Migrate(); err != nil {
		return nil, nil, err
	}
	logger.Info("database migrated")

	return client, pool, nil
}
