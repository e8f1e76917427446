package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/experiment"
	"CoinCast/internal/feature"
	"CoinCast/internal/handler/api"
	"CoinCast/internal/indicator"
	mid "CoinCast/internal/middleware"
	internalrepo "CoinCast/internal/repository"
	"CoinCast/internal/sentiment"
	"CoinCast/internal/train"
	"CoinCast/internal/usecase"
	pkgcache "CoinCast/pkg/cache"
	pkgch "CoinCast/pkg/clickhouse"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
	"CoinCast/pkg/metrics"
	"CoinCast/pkg/queue"
	"CoinCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level, format := "info", "json"
	if cfg.Environment == "development" {
		level, format = "debug", "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisClient creates a Redis client, nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideObservationStore creates the ClickHouse observation store.
func ProvideObservationStore(ch *pkgch.Client, l *applogger.Logger) repository.ObservationStore {
	store := internalrepo.NewCHObservationStore(ch)
	store.SetLogger(l)
	return store
}

// ProvideFeatureStore creates the ClickHouse feature snapshot store.
func ProvideFeatureStore(ch *pkgch.Client, l *applogger.Logger) repository.FeatureStore {
	store := internalrepo.NewCHFeatureStore(ch)
	store.SetLogger(l)
	return store
}

// ProvideRunStore creates the ClickHouse experiment run store.
func ProvideRunStore(ch *pkgch.Client, l *applogger.Logger) repository.RunStore {
	store := internalrepo.NewCHRunStore(ch)
	store.SetLogger(l)
	return store
}

// ProvideRegistry creates the configured model registry backend.
func ProvideRegistry(cfg *config.Config, rdb *redis.Client) (repository.Registry, error) {
	switch cfg.Registry.Backend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("registry backend redis requires redis to be enabled")
		}
		return internalrepo.NewRedisRegistry(rdb), nil
	default:
		return internalrepo.NewMemoryRegistry(), nil
	}
}

// ProvideIndicatorEngine creates the indicator engine from config.
func ProvideIndicatorEngine(cfg *config.Config) (*indicator.Engine, error) {
	specs := make([]indicator.Spec, 0, len(cfg.Indicators))
	for _, s := range cfg.Indicators {
		specs = append(specs, indicator.Spec{Kind: indicator.Kind(s.Kind), Window: s.Window})
	}
	if len(specs) == 0 {
		specs = []indicator.Spec{
			{Kind: indicator.KindSMA, Window: 20},
			{Kind: indicator.KindEMA, Window: 12},
			{Kind: indicator.KindRSI, Window: 14},
		}
	}
	return indicator.NewEngine(specs)
}

// ProvideScorer creates the configured sentiment scorer with a per-call
// deadline.
func ProvideScorer(cfg *config.Config) (domsvc.SentimentScorer, error) {
	scorer, err := sentiment.NewScorer(cfg)
	if err != nil {
		return nil, err
	}
	return sentiment.WithTimeout(scorer, cfg.Sentiment.ScoreTimeout), nil
}

// ProvideBucketer creates the sentiment bucketer.
func ProvideBucketer(scorer domsvc.SentimentScorer, cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*sentiment.Bucketer, error) {
	return sentiment.NewBucketer(scorer, cfg.Sentiment.BucketWidth, cfg.Sentiment.Reducer, m, l)
}

// ProvideMerger creates the feature merger.
func ProvideMerger(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*feature.Merger, error) {
	return feature.NewMerger(
		cfg.Pipeline.Frequency,
		feature.Tolerances{
			Price:     cfg.Pipeline.PriceStaleness,
			Indicator: cfg.Pipeline.IndicatorStaleness,
			Sentiment: cfg.Pipeline.SentimentStaleness,
		},
		cfg.Pipeline.MaxFillGap,
		m,
		l,
	)
}

// ProvideDatasetBuilder creates the dataset builder use case.
func ProvideDatasetBuilder(
	obs repository.ObservationStore,
	features repository.FeatureStore,
	engine *indicator.Engine,
	bucketer *sentiment.Bucketer,
	merger *feature.Merger,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.DatasetBuilder {
	return usecase.NewDatasetBuilder(obs, features, engine, bucketer, merger,
		cfg.Pipeline.Frequency, cfg.Sentiment.BucketWidth, m, l)
}

// ProvideArtifactStore creates the model artifact store.
func ProvideArtifactStore(cfg *config.Config) (*train.ArtifactStore, error) {
	return train.NewArtifactStore(cfg.ModelDir)
}

// ProvideTracker creates the experiment tracker.
func ProvideTracker(runs repository.RunStore, m repository.Metrics, l *applogger.Logger) *experiment.Tracker {
	return experiment.NewTracker(runs, m, l)
}

// ProvideTraining creates the training use case.
func ProvideTraining(
	builder *usecase.DatasetBuilder,
	tracker *experiment.Tracker,
	artifacts *train.ArtifactStore,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Training {
	return usecase.NewTraining(builder, tracker, artifacts, cfg, m, l)
}

// ProvideForecastCache creates the serving cache: memory-backed by
// default, layered over Redis when Redis is enabled.
func ProvideForecastCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	host, port, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(portNum),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, err
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvidePredictor creates the forecasting use case.
func ProvidePredictor(
	features repository.FeatureStore,
	registry repository.Registry,
	runs repository.RunStore,
	artifacts *train.ArtifactStore,
	forecastCache pkgcache.Service,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Predictor {
	return usecase.NewPredictor(features, registry, runs, artifacts,
		forecastCache, cfg.Serving.CacheTTL, cfg.Pipeline.Frequency, m, l)
}

// ProvideIngestPipeline creates the batching ingest pipeline.
func ProvideIngestPipeline(obs repository.ObservationStore, m repository.Metrics, cfg *config.Config) *mid.IngestPipeline {
	return mid.NewIngestPipeline(obs, m,
		mid.WithBatchSize(cfg.Pipeline.BatchSize),
		mid.WithBatchTimeout(cfg.Pipeline.BatchTimeout),
	)
}

// ProvideIngestHandler registers the handler for the observation topic.
func ProvideIngestHandler(pipeline *mid.IngestPipeline, m repository.Metrics, cfg *config.Config) *usecase.IngestHandler {
	return usecase.NewIngestHandler(cfg.Kafka.Topic, pipeline, m)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTrainJob creates the queued training job.
func ProvideTrainJob(training *usecase.Training, l *applogger.Logger) *usecase.TrainJob {
	return usecase.NewTrainJob(training, l)
}

// ProvideJobQueue creates the background job queue: Redis-backed when
// Redis is enabled, in-process otherwise.
func ProvideJobQueue(cfg *config.Config, l *applogger.Logger, trainJob *usecase.TrainJob, rdb *redis.Client) server.JobQueue {
	if rdb != nil {
		return queue.NewRedisQueue(l, &queue.QueueConfig{
			Workers:    cfg.Queue.Workers,
			RetryLimit: cfg.Queue.RetryLimit,
			RetryDelay: cfg.Queue.RetryDelay,
		}, rdb, queue.ModeProducerConsumer,
			queue.WithKeyPrefix("coincast:queue"),
		)
	}
	return queue.NewInlineQueue(l, []queue.Job{trainJob})
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	registry repository.Registry,
	runs repository.RunStore,
	predictor *usecase.Predictor,
	jobs server.JobQueue,
	m repository.Metrics,
) xhttp.Handler {
	return api.NewRegistryEchoHandler(l, registry, runs, predictor, jobs, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	chClient *pkgch.Client,
	consumer *pkgkafka.Consumer,
	ih *usecase.IngestHandler,
	pipeline *mid.IngestPipeline,
	jobs server.JobQueue,
	trainJob *usecase.TrainJob,
	handler xhttp.Handler,
) *server.App {
	if rq, ok := jobs.(*queue.RedisQueue); ok {
		rq.RegisterJob(trainJob)
	}
	return server.New(cfg, l, chClient, consumer, ih, pipeline, jobs, handler)
}
