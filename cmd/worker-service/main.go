package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/simulation-jobs/internal/artifact"
	"github.com/cuongbtq/simulation-jobs/internal/config"
	"github.com/cuongbtq/simulation-jobs/internal/gateway"
	"github.com/cuongbtq/simulation-jobs/internal/jobstore"
	"github.com/cuongbtq/simulation-jobs/internal/queue"
	"github.com/cuongbtq/simulation-jobs/internal/worker"
	"github.com/cuongbtq/simulation-jobs/migrations"
	"github.com/cuongbtq/simulation-jobs/shared/awsclient"
	"github.com/cuongbtq/simulation-jobs/shared/logger"
	"github.com/cuongbtq/simulation-jobs/shared/postgresql"
	"github.com/cuongbtq/simulation-jobs/shared/rabbitmq"
	"github.com/cuongbtq/simulation-jobs/shared/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_backend", cfg.Queue.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := initPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := dbClient.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	jobQueue, closeQueue, err := initQueue(&cfg.Queue, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer closeQueue()

	gw, fetcher, err := initAWS(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize AWS clients: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clk := clock.New()
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		Store:             jobstore.NewPostgresStore(dbClient.GetDB(), appLogger.Logger, clk),
		Queue:             jobQueue,
		Gateway:           gw,
		Fetcher:           fetcher,
		Metrics:           worker.NewMetrics(registry),
		Clock:             clk,
		PollInterval:      cfg.Worker.PollInterval,
		ReconcileInterval: cfg.Worker.ReconcileInterval,
		MaxStoreFailures:  cfg.Worker.MaxStoreFailures,
		RecordTimeout:     cfg.Worker.RecordTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	if cfg.Worker.MetricsPort != 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           metricsMux(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			appLogger.Info("Serving metrics", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// the worker loop returns on its own only when the store is gone;
	// stop the metrics server along with it
	g.Go(func() error {
		<-gctx.Done()
		workerInstance.Stop()
		return nil
	})

	appLogger.Info("Worker service started successfully")

	if err := g.Wait(); err != nil {
		appLogger.Error("Worker service failed", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

func metricsMux(registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectRetries:  cfg.ConnectRetries,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, logger)
}

func initQueue(cfg *config.QueueConfig, logger *slog.Logger) (queue.Queue, func(), error) {
	switch cfg.Backend {
	case queue.BackendRedis:
		client, err := redis.NewClient(&redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewRedisQueue(client.GetClient(), cfg.Key, logger), func() { client.Close() }, nil

	case queue.BackendRabbitMQ:
		mq := cfg.RabbitMQ
		client, err := rabbitmq.NewClient(&rabbitmq.Config{
			Host:               mq.Host,
			Port:               mq.Port,
			User:               mq.User,
			Password:           mq.Password,
			VHost:              mq.VHost,
			ExchangeName:       mq.Exchange.Name,
			ExchangeType:       mq.Exchange.Type,
			ExchangeDurable:    mq.Exchange.Durable,
			QueueName:          mq.Queue.Name,
			QueueDurable:       mq.Queue.Durable,
			RoutingKey:         mq.RoutingKey,
			RetryAttempts:      mq.Connection.RetryAttempts,
			RetryInterval:      mq.Connection.RetryInterval,
			Heartbeat:          mq.Connection.Heartbeat,
			PublishRetries:     mq.Publish.RetryAttempts,
			PublishRetryDelay:  mq.Publish.RetryInterval,
			PublishBackoffMult: mq.Publish.BackoffMultiplier,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewRabbitQueue(client), func() { client.Close() }, nil

	default:
		logger.Warn("Using in-process memory queue, only requeued messages will be seen")
		return queue.NewMemoryQueue(), func() {}, nil
	}
}

// initAWS builds the Batch gateway and the S3 artifact store
func initAWS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gateway.BatchGateway, *artifact.S3Store, error) {
	clientCfg := awsclient.Config{
		Region:          cfg.AWS.Region,
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.Endpoint,
		ForcePathStyle:  cfg.AWS.ForcePathStyle,
	}

	awsCfg, err := awsclient.LoadConfig(ctx, clientCfg)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("AWS clients configured",
		slog.String("region", awsCfg.Region),
		slog.String("job_queue", cfg.AWS.Batch.JobQueue),
		slog.String("output_bucket", cfg.AWS.OutputBucket),
	)

	gw := gateway.NewBatchGateway(awsclient.NewBatch(awsCfg, clientCfg), gateway.BatchConfig{
		JobQueue:      cfg.AWS.Batch.JobQueue,
		JobDefinition: cfg.AWS.Batch.JobDefinition,
		InputBucket:   cfg.AWS.InputBucket,
		OutputBucket:  cfg.AWS.OutputBucket,
	}, logger)

	maxBytes := cfg.Worker.LogMaxBytes
	if maxBytes == 0 {
		maxBytes = artifact.DefaultMaxBytes
	}
	fetcher := artifact.NewS3Store(awsclient.NewS3(awsCfg, clientCfg), cfg.AWS.OutputBucket, maxBytes, logger)

	return gw, fetcher, nil
}
